// Package resend delivers campaign mail through the Resend API.
package resend

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/resend/resend-go/v3"

	"github.com/ignite/engage/internal/pkg/logger"
	"github.com/ignite/engage/internal/service/sending"
)

var log = logger.With("resend")

// Emails is the slice of the Resend emails service the transport needs.
type Emails interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Client implements sending.Transport over Resend.
type Client struct {
	emails Emails
}

// NewClient creates a Resend transport using apiKey.
func NewClient(apiKey string) *Client {
	return NewClientWithEmails(resend.NewClient(apiKey).Emails)
}

// NewClientWithEmails wraps an existing emails service.
func NewClientWithEmails(emails Emails) *Client {
	return &Client{emails: emails}
}

var _ sending.Transport = (*Client)(nil)

func (c *Client) Send(ctx context.Context, msg *sending.Message) (*sending.Receipt, error) {
	req := &resend.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Tags:    convertTags(msg.Tags),
	}

	resp, err := c.emails.SendWithContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("resend: failed to send email: %w", err)
	}
	if resp == nil || resp.Id == "" {
		return nil, errors.New("resend: empty message id")
	}

	log.Debug("sent", "recipient", msg.To, "message_id", resp.Id)
	return &sending.Receipt{MessageID: resp.Id}, nil
}

func convertTags(tags map[string]string) []resend.Tag {
	if len(tags) == 0 {
		return nil
	}
	result := make([]resend.Tag, 0, len(tags))
	for name, value := range tags {
		if value == "" {
			continue
		}
		result = append(result, resend.Tag{Name: name, Value: value})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}
