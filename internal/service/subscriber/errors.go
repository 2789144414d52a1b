package subscriber

import (
	"fmt"

	"github.com/ignite/engage/internal/domain"
)

// Sentinel errors for the subscriber service layer.
var (
	ErrNotFound = fmt.Errorf("subscriber %w", domain.ErrNotFound)
	ErrExists   = fmt.Errorf("subscriber email %w", domain.ErrDuplicate)
)
