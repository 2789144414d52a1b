package reconcile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ignite/engage/internal/pkg/httpretry"
)

// Confirmer visits an SNS SubscribeURL to activate a topic subscription.
type Confirmer struct {
	client httpretry.HTTPDoer
	// anyHost disables the amazonaws.com host check.
	anyHost bool
}

// NewConfirmer wraps client (nil for a default) in the retrying HTTP client.
// A client that already retries is used as is.
func NewConfirmer(client httpretry.HTTPDoer) *Confirmer {
	if rc, ok := client.(*httpretry.RetryClient); ok {
		return &Confirmer{client: rc}
	}
	return &Confirmer{client: httpretry.NewRetryClient(client, 3)}
}

// Confirm GETs subscribeURL. Only https URLs on an amazonaws.com host are
// followed.
func (c *Confirmer) Confirm(ctx context.Context, subscribeURL string) error {
	u, err := url.Parse(subscribeURL)
	if err != nil {
		return fmt.Errorf("parse SubscribeURL: %w", err)
	}
	if !c.anyHost && (u.Scheme != "https" || !strings.HasSuffix(u.Hostname(), ".amazonaws.com")) {
		return fmt.Errorf("refusing SubscribeURL host %q", u.Host)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("confirm subscription: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("confirm subscription: status %d", resp.StatusCode)
	}
	return nil
}
