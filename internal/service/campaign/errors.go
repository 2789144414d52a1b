package campaign

import (
	"fmt"

	"github.com/ignite/engage/internal/domain"
)

// ErrNotFound is returned by repositories for unknown or foreign campaigns.
// errors.Is(ErrNotFound, domain.ErrNotFound) holds.
var ErrNotFound = fmt.Errorf("campaign %w", domain.ErrNotFound)

// InvalidState is what a repository returns when a status guard rejects op.
func InvalidState(op string, status domain.CampaignStatus) error {
	return &domain.InvalidStateError{Op: op, Status: status}
}

// ContentLocked is what a repository returns when a content edit hits a
// sending or sent campaign.
func ContentLocked(status domain.CampaignStatus) error {
	return &domain.ImmutableFieldError{Field: "content", Status: status}
}

// Ops named in InvalidState errors.
const (
	OpDelete    = "delete"
	OpBeginSend = "send"
	OpFinish    = "finish"
)

// TransitionOp names the operation guarded by a transition into to.
func TransitionOp(to domain.CampaignStatus) string {
	if to == domain.CampaignSending {
		return OpBeginSend
	}
	return OpFinish
}
