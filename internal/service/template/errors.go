package template

import (
	"fmt"

	"github.com/ignite/engage/internal/domain"
)

// ErrNotFound is returned by repositories for unknown or foreign templates.
var ErrNotFound = fmt.Errorf("template %w", domain.ErrNotFound)
