package reconcile

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/ignite/engage/internal/domain"
)

// Kind discriminates a parsed notification.
type Kind string

const (
	KindSubscriptionConfirmation Kind = "SubscriptionConfirmation"
	KindBounce                   Kind = "Bounce"
	KindComplaint                Kind = "Complaint"
	KindDelivery                 Kind = "Delivery"
	KindOpen                     Kind = "Open"
	KindClick                    Kind = "Click"
	KindUnknown                  Kind = "Unknown"
)

// Notification is one validated provider message.
type Notification struct {
	Kind Kind

	// SNS envelope fields. Empty for raw (unwrapped) SES messages.
	SNSMessageID string
	TopicARN     string
	SubscribeURL string

	// RawType is the provider's type name, kept for logging unknown kinds.
	RawType string

	Mail       Mail
	Bounce     *Bounce
	Complaint  *Complaint
	Delivery   *Delivery
	Engagement *Engagement
}

// Mail is the common description of the original message.
type Mail struct {
	MessageID   string
	Source      string
	Destination []string
	Timestamp   time.Time
	// Tags holds message tags set at send time. SES reports each tag as a list.
	Tags map[string][]string
}

// Tag returns the first value of a message tag.
func (m Mail) Tag(name string) string {
	if v := m.Tags[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Bounce describes a hard or soft bounce.
type Bounce struct {
	BounceType    string
	BounceSubType string
	FeedbackID    string
	ReportingMTA  string
	Timestamp     time.Time
	Recipients    []BouncedRecipient
}

// BouncedRecipient carries the per-address diagnostic.
type BouncedRecipient struct {
	Email          string
	Action         string
	Status         string
	DiagnosticCode string
}

// Complaint describes a feedback-loop complaint.
type Complaint struct {
	FeedbackType string
	FeedbackID   string
	UserAgent    string
	Timestamp    time.Time
	Recipients   []string
}

// Delivery describes a successful hand-off to the recipient's server.
type Delivery struct {
	ProcessingTimeMillis int64
	SMTPResponse         string
	ReportingMTA         string
	Timestamp            time.Time
	Recipients           []string
}

// Engagement describes an open or click.
type Engagement struct {
	IPAddress string
	UserAgent string
	Link      string
	Timestamp time.Time
}

type snsEnvelope struct {
	Type         string `json:"Type"`
	MessageID    string `json:"MessageId"`
	TopicArn     string `json:"TopicArn"`
	Message      string `json:"Message"`
	SubscribeURL string `json:"SubscribeURL"`
}

type sesMessage struct {
	EventType        string `json:"eventType"`
	NotificationType string `json:"notificationType"`
	Mail             struct {
		MessageID   string              `json:"messageId"`
		Source      string              `json:"source"`
		Destination []string            `json:"destination"`
		Timestamp   string              `json:"timestamp"`
		Tags        map[string][]string `json:"tags"`
	} `json:"mail"`
	Bounce *struct {
		BounceType        string `json:"bounceType"`
		BounceSubType     string `json:"bounceSubType"`
		FeedbackID        string `json:"feedbackId"`
		ReportingMTA      string `json:"reportingMTA"`
		Timestamp         string `json:"timestamp"`
		BouncedRecipients []struct {
			EmailAddress   string `json:"emailAddress"`
			Action         string `json:"action"`
			Status         string `json:"status"`
			DiagnosticCode string `json:"diagnosticCode"`
		} `json:"bouncedRecipients"`
	} `json:"bounce"`
	Complaint *struct {
		ComplaintFeedbackType string `json:"complaintFeedbackType"`
		FeedbackID            string `json:"feedbackId"`
		UserAgent             string `json:"userAgent"`
		Timestamp             string `json:"timestamp"`
		ComplainedRecipients  []struct {
			EmailAddress string `json:"emailAddress"`
		} `json:"complainedRecipients"`
	} `json:"complaint"`
	Delivery *struct {
		ProcessingTimeMillis int64    `json:"processingTimeMillis"`
		SMTPResponse         string   `json:"smtpResponse"`
		ReportingMTA         string   `json:"reportingMTA"`
		Timestamp            string   `json:"timestamp"`
		Recipients           []string `json:"recipients"`
	} `json:"delivery"`
	Open *struct {
		IPAddress string `json:"ipAddress"`
		UserAgent string `json:"userAgent"`
		Timestamp string `json:"timestamp"`
	} `json:"open"`
	Click *struct {
		IPAddress string `json:"ipAddress"`
		UserAgent string `json:"userAgent"`
		Link      string `json:"link"`
		Timestamp string `json:"timestamp"`
	} `json:"click"`
}

// Parse validates a webhook or queue body. It accepts an SNS envelope or a
// bare SES message (SNS raw message delivery). A body that is not a JSON
// object is a ValidationError. A well-formed envelope whose inner message
// cannot be understood parses as KindUnknown so the sender is acked rather
// than retried forever.
func Parse(body []byte) (*Notification, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, &domain.ValidationError{Field: "body", Message: "not a JSON object"}
	}

	if _, isEnvelope := probe["Type"]; !isEnvelope {
		return parseSES(body), nil
	}

	var env snsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &domain.ValidationError{Field: "body", Message: "malformed SNS envelope"}
	}

	switch env.Type {
	case "SubscriptionConfirmation":
		if env.SubscribeURL == "" {
			return nil, domain.Required("SubscribeURL")
		}
		return &Notification{
			Kind:         KindSubscriptionConfirmation,
			RawType:      env.Type,
			SNSMessageID: env.MessageID,
			TopicARN:     env.TopicArn,
			SubscribeURL: env.SubscribeURL,
		}, nil
	case "Notification":
		n := parseSES([]byte(env.Message))
		n.SNSMessageID = env.MessageID
		n.TopicARN = env.TopicArn
		return n, nil
	}
	return &Notification{Kind: KindUnknown, RawType: env.Type, SNSMessageID: env.MessageID, TopicARN: env.TopicArn}, nil
}

func parseSES(raw []byte) *Notification {
	var m sesMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return &Notification{Kind: KindUnknown, RawType: "malformed"}
	}

	typ := m.EventType
	if typ == "" {
		typ = m.NotificationType
	}
	n := &Notification{
		Kind:    KindUnknown,
		RawType: typ,
		Mail: Mail{
			MessageID:   m.Mail.MessageID,
			Source:      m.Mail.Source,
			Destination: m.Mail.Destination,
			Timestamp:   parseTime(m.Mail.Timestamp),
			Tags:        m.Mail.Tags,
		},
	}

	switch typ {
	case "Bounce":
		if m.Bounce == nil {
			return n
		}
		b := &Bounce{
			BounceType:    m.Bounce.BounceType,
			BounceSubType: m.Bounce.BounceSubType,
			FeedbackID:    m.Bounce.FeedbackID,
			ReportingMTA:  m.Bounce.ReportingMTA,
			Timestamp:     parseTime(m.Bounce.Timestamp),
		}
		for _, r := range m.Bounce.BouncedRecipients {
			b.Recipients = append(b.Recipients, BouncedRecipient{
				Email:          r.EmailAddress,
				Action:         r.Action,
				Status:         r.Status,
				DiagnosticCode: r.DiagnosticCode,
			})
		}
		n.Kind, n.Bounce = KindBounce, b
	case "Complaint":
		if m.Complaint == nil {
			return n
		}
		c := &Complaint{
			FeedbackType: m.Complaint.ComplaintFeedbackType,
			FeedbackID:   m.Complaint.FeedbackID,
			UserAgent:    m.Complaint.UserAgent,
			Timestamp:    parseTime(m.Complaint.Timestamp),
		}
		for _, r := range m.Complaint.ComplainedRecipients {
			c.Recipients = append(c.Recipients, r.EmailAddress)
		}
		n.Kind, n.Complaint = KindComplaint, c
	case "Delivery":
		d := &Delivery{}
		if m.Delivery != nil {
			d.ProcessingTimeMillis = m.Delivery.ProcessingTimeMillis
			d.SMTPResponse = m.Delivery.SMTPResponse
			d.ReportingMTA = m.Delivery.ReportingMTA
			d.Timestamp = parseTime(m.Delivery.Timestamp)
			d.Recipients = m.Delivery.Recipients
		}
		n.Kind, n.Delivery = KindDelivery, d
	case "Open":
		e := &Engagement{}
		if m.Open != nil {
			e.IPAddress, e.UserAgent, e.Timestamp = m.Open.IPAddress, m.Open.UserAgent, parseTime(m.Open.Timestamp)
		}
		n.Kind, n.Engagement = KindOpen, e
	case "Click":
		e := &Engagement{}
		if m.Click != nil {
			e.IPAddress, e.UserAgent, e.Link, e.Timestamp = m.Click.IPAddress, m.Click.UserAgent, m.Click.Link, parseTime(m.Click.Timestamp)
		}
		n.Kind, n.Engagement = KindClick, e
	}
	return n
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
