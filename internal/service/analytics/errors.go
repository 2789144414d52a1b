package analytics

import (
	"fmt"

	"github.com/ignite/engage/internal/domain"
)

// ErrEventNotFound is returned by FindByMessageID when nothing matches.
var ErrEventNotFound = fmt.Errorf("event %w", domain.ErrNotFound)
