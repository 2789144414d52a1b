package resend

import (
	"context"
	"errors"
	"testing"

	"github.com/resend/resend-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/engage/internal/service/sending"
)

type fakeEmails struct {
	req  *resend.SendEmailRequest
	resp *resend.SendEmailResponse
	err  error
}

func (f *fakeEmails) SendWithContext(_ context.Context, req *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestSend(t *testing.T) {
	emails := &fakeEmails{resp: &resend.SendEmailResponse{Id: "re-123"}}

	receipt, err := NewClientWithEmails(emails).Send(context.Background(), &sending.Message{
		To:      "a@x.com",
		From:    "news@example.com",
		Subject: "Hello",
		HTML:    "<p>Hi</p>",
		Tags:    map[string]string{"owner_id": "o1", "campaign_id": "c1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "re-123", receipt.MessageID)

	require.NotNil(t, emails.req)
	assert.Equal(t, []string{"a@x.com"}, emails.req.To)
	assert.Equal(t, "news@example.com", emails.req.From)
	assert.Equal(t, "<p>Hi</p>", emails.req.Html)
	assert.Equal(t, []resend.Tag{{Name: "campaign_id", Value: "c1"}, {Name: "owner_id", Value: "o1"}}, emails.req.Tags)
}

func TestSendFailure(t *testing.T) {
	emails := &fakeEmails{err: errors.New("validation_error: invalid from")}
	_, err := NewClientWithEmails(emails).Send(context.Background(), &sending.Message{To: "a@x.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid from")
}

func TestSendEmptyID(t *testing.T) {
	emails := &fakeEmails{resp: &resend.SendEmailResponse{}}
	_, err := NewClientWithEmails(emails).Send(context.Background(), &sending.Message{To: "a@x.com"})
	assert.Error(t, err)
}
