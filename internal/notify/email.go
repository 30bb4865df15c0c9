package notify

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

// DefaultFromName is the sender name when none is configured.
const DefaultFromName = "JET A FLY Tours & Travels"

// EmailSender delivers one email. SendGrid, SES and the stub implement it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is one handoff email to one sales desk address.
type EmailMessage struct {
	To      string
	Subject string
	Body    string
	HTML    string

	// ReplyTo is the customer's address when they shared one, so the desk
	// can answer straight from the alert.
	ReplyTo string
	// EnquiryID and Reason travel as provider tags for delivery reports.
	EnquiryID string
	Reason    string
}

var errNoRecipient = errors.New("notify: email recipient required")

func (m EmailMessage) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errNoRecipient
	}
	if m.Body == "" && m.HTML == "" {
		return errors.New("notify: email body required")
	}
	return nil
}

// replyTo returns the reply address only when it parses.
func (m EmailMessage) replyTo() string {
	addr, err := mail.ParseAddress(strings.TrimSpace(m.ReplyTo))
	if err != nil {
		return ""
	}
	return addr.Address
}

// StubEmailSender logs instead of sending, for local runs.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.logger.Info("handoff email (not sent)", "to", msg.To, "subject", msg.Subject, "enquiry_id", msg.EnquiryID, "reason", msg.Reason)
	return nil
}
