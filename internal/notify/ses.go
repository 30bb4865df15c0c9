package notify

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig holds the sender identity. ConfigurationSet is optional and
// routes delivery events to whatever the set publishes to.
type SESConfig struct {
	FromEmail        string
	FromName         string
	ConfigurationSet string
}

// SESSender delivers handoff emails through SES v2.
type SESSender struct {
	client sesAPI
	cfg    SESConfig
	logger *logging.Logger
}

// SES tag values allow only ASCII letters, digits, '_', '-', '.' and '@'.
var sesTagUnsafe = regexp.MustCompile(`[^A-Za-z0-9_\-.@]`)

// NewSESSender returns nil without a client.
func NewSESSender(client sesAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = DefaultFromName
	}
	return &SESSender{client: client, cfg: cfg, logger: logger}
}

func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: SES client not configured")
	}
	if err := msg.validate(); err != nil {
		return err
	}

	output, err := s.client.SendEmail(ctx, s.build(msg))
	if err != nil {
		s.logger.Error("SES send failed", "error", err, "to", msg.To, "enquiry_id", msg.EnquiryID)
		return fmt.Errorf("notify: SES send failed: %w", err)
	}

	s.logger.Info("handoff email sent via SES", "to", msg.To, "enquiry_id", msg.EnquiryID, "message_id", aws.ToString(output.MessageId))
	return nil
}

func (s *SESSender) build(msg EmailMessage) *sesv2.SendEmailInput {
	body := &types.Body{}
	if msg.Body != "" {
		body.Text = utf8Content(msg.Body)
	}
	if msg.HTML != "" {
		body.Html = utf8Content(msg.HTML)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{Subject: utf8Content(msg.Subject), Body: body},
		},
		EmailTags: []types.MessageTag{{Name: aws.String("category"), Value: aws.String(handoffCategory)}},
	}
	if reply := msg.replyTo(); reply != "" {
		input.ReplyToAddresses = []string{reply}
	}
	if msg.EnquiryID != "" {
		input.EmailTags = append(input.EmailTags, types.MessageTag{
			Name:  aws.String("enquiry_id"),
			Value: aws.String(sesTagUnsafe.ReplaceAllString(msg.EnquiryID, "_")),
		})
	}
	if msg.Reason != "" {
		input.EmailTags = append(input.EmailTags, types.MessageTag{
			Name:  aws.String("reason"),
			Value: aws.String(sesTagUnsafe.ReplaceAllString(msg.Reason, "_")),
		})
	}
	if s.cfg.ConfigurationSet != "" {
		input.ConfigurationSetName = aws.String(s.cfg.ConfigurationSet)
	}
	return input
}

func utf8Content(data string) *types.Content {
	return &types.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
}

var _ EmailSender = (*SESSender)(nil)
