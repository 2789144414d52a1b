// Package ses delivers campaign mail through the AWS SES v2 API.
package ses

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	appconfig "github.com/ignite/engage/internal/config"
	"github.com/ignite/engage/internal/pkg/logger"
	"github.com/ignite/engage/internal/service/sending"
)

var log = logger.With("ses")

// API is the slice of the SES v2 client the transport needs.
type API interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Client sends one email per SendEmail call.
type Client struct {
	api              API
	configurationSet string
}

// NewClient creates an SES transport. Static credentials are used when
// both keys are set; otherwise the default AWS credential chain applies.
func NewClient(ctx context.Context, cfg appconfig.SESConfig) (*Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return NewClientWithAPI(sesv2.NewFromConfig(awsCfg), cfg.ConfigurationSet), nil
}

// NewClientWithAPI wraps an existing SES API implementation.
func NewClientWithAPI(api API, configurationSet string) *Client {
	return &Client{api: api, configurationSet: configurationSet}
}

var _ sending.Transport = (*Client)(nil)

// Send submits msg and returns the SES message id.
func (c *Client) Send(ctx context.Context, msg *sending.Message) (*sending.Receipt, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: messageTags(msg.Tags),
	}
	if c.configurationSet != "" {
		input.ConfigurationSetName = aws.String(c.configurationSet)
	}

	out, err := c.api.SendEmail(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("ses send email: %w", err)
	}
	if out == nil || aws.ToString(out.MessageId) == "" {
		return nil, errors.New("ses send email: empty message id")
	}

	log.Debug("sent", "recipient", msg.To, "message_id", *out.MessageId)
	return &sending.Receipt{MessageID: *out.MessageId}, nil
}

// messageTags converts tags in name order so requests are reproducible.
func messageTags(tags map[string]string) []types.MessageTag {
	if len(tags) == 0 {
		return nil
	}
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]types.MessageTag, 0, len(names))
	for _, name := range names {
		if tags[name] == "" {
			continue
		}
		out = append(out, types.MessageTag{Name: aws.String(name), Value: aws.String(tags[name])})
	}
	return out
}
