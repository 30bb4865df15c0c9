// Package notify alerts the sales desk when an enquiry is handed off to a human.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wolfman30/travel-enquiry-bot/internal/enquiry"
	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

// TextSender pushes a short alert to an operator's phone.
type TextSender interface {
	SendText(ctx context.Context, to, body string) error
}

// Config lists who hears about handoffs.
type Config struct {
	SalesEmails []string
	SalesPhones []string
}

// Service sends handoff notifications to the sales desk.
type Service struct {
	email  EmailSender
	text   TextSender
	cfg    Config
	logger *logging.Logger
	now    func() time.Time
}

// NewService creates a notification service. Either sender may be nil.
func NewService(email EmailSender, text TextSender, cfg Config, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:  email,
		text:   text,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// NotifyHandoff tells the sales desk an enquiry is ready for a callback.
func (s *Service) NotifyHandoff(ctx context.Context, e *enquiry.Enquiry, reason string) error {
	if e == nil {
		return errors.New("notify: enquiry cannot be nil")
	}

	rows := summaryRows(e)
	name := displayName(e)
	var errs []error

	if s.email != nil && len(s.cfg.SalesEmails) > 0 {
		msg := EmailMessage{
			Subject: fmt.Sprintf("%s %s - %s", reasonIcon(reason), reasonTitle(reason), name),
			Body:    plainBody(name, reason, rows, s.now()),
			HTML:    htmlBody(name, reason, rows),

			EnquiryID: e.ID,
			Reason:    reason,
		}
		if e.Email != nil {
			msg.ReplyTo = *e.Email
		}
		for _, recipient := range s.cfg.SalesEmails {
			msg.To = recipient
			if err := s.email.Send(ctx, msg); err != nil {
				s.logger.Error("notify: failed to send handoff email", "error", err, "to", recipient, "enquiry_id", e.ID)
				errs = append(errs, err)
				continue
			}
			s.logger.Info("notify: handoff email sent", "to", recipient, "enquiry_id", e.ID, "reason", reason)
		}
	}

	if s.text != nil && len(s.cfg.SalesPhones) > 0 {
		body := textBody(name, reason, e)
		for _, recipient := range s.cfg.SalesPhones {
			if err := s.text.SendText(ctx, recipient, body); err != nil {
				s.logger.Error("notify: failed to send handoff alert", "error", err, "to", recipient, "enquiry_id", e.ID)
				errs = append(errs, err)
				continue
			}
			s.logger.Info("notify: handoff alert sent", "to", recipient, "enquiry_id", e.ID)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d notification(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

type row struct {
	label string
	value string
}

func summaryRows(e *enquiry.Enquiry) []row {
	rows := []row{{"Phone", e.PhoneNumber}}
	add := func(label string, v *string) {
		if v != nil && strings.TrimSpace(*v) != "" {
			rows = append(rows, row{label, *v})
		}
	}
	add("Name", e.ClientName)
	add("Email", e.Email)
	add("Destination", e.Destination)
	add("Departure City", e.DepartureCity)
	add("Travel Dates", e.PreferredTravelDates)
	add("Duration", e.NumberOfDaysNights)
	add("Travel Mode", e.TravelType)
	add("Trip Type", e.TripType)
	add("Budget", e.ApproximateBudget)
	add("Hotel", e.HotelCategory)
	add("Special Requirements", e.SpecialRequirements)
	if e.NumberOfPeople > 0 {
		rows = append(rows, row{"Travellers", fmt.Sprintf("%d", e.NumberOfPeople)})
	}
	if e.CallbackRequested {
		when := "ASAP"
		if e.PreferredCallbackTime != nil && *e.PreferredCallbackTime != "" {
			when = *e.PreferredCallbackTime
		}
		rows = append(rows, row{"Callback", when})
	}
	if len(e.Tags) > 0 {
		rows = append(rows, row{"Tags", strings.Join(e.Tags, ", ")})
	}
	return rows
}

func displayName(e *enquiry.Enquiry) string {
	if e.ClientName != nil && strings.TrimSpace(*e.ClientName) != "" {
		return *e.ClientName
	}
	return e.PhoneNumber
}

func reasonTitle(reason string) string {
	switch reason {
	case "lead_complete":
		return "New Qualified Lead"
	case "callback_requested":
		return "Callback Requested"
	case "disengaged":
		return "Customer Went Quiet"
	default:
		return "Enquiry Handoff"
	}
}

func reasonIcon(reason string) string {
	switch reason {
	case "lead_complete":
		return "✈️"
	case "callback_requested":
		return "📞"
	default:
		return "🔔"
	}
}

func plainBody(name, reason string, rows []row, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n\n", reasonTitle(reason), name)
	for _, r := range rows {
		fmt.Fprintf(&b, "%s: %s\n", r.label, r.value)
	}
	fmt.Fprintf(&b, "\nHanded off %s. Please call the customer back.\n", now.Format("January 2, 2006 at 3:04 PM"))
	return b.String()
}

func htmlBody(name, reason string, rows []row) string {
	var b strings.Builder
	b.WriteString(`<div style="font-family: sans-serif; max-width: 600px;">`)
	fmt.Fprintf(&b, `<h2 style="color: #0ea5e9;">%s</h2>`, html.EscapeString(reasonTitle(reason)))
	fmt.Fprintf(&b, `<p><strong>%s</strong> is ready for a call.</p>`, html.EscapeString(name))
	b.WriteString(`<table style="border-collapse: collapse; margin: 20px 0;">`)
	for _, r := range rows {
		fmt.Fprintf(&b, `<tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>%s:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>`,
			html.EscapeString(r.label), html.EscapeString(r.value))
	}
	b.WriteString(`</table>`)
	fmt.Fprintf(&b, `<p style="color: #6b7280; font-size: 12px;">%s</p></div>`, html.EscapeString(DefaultFromName))
	return b.String()
}

func textBody(name, reason string, e *enquiry.Enquiry) string {
	parts := []string{fmt.Sprintf("%s %s: %s (%s)", reasonIcon(reason), reasonTitle(reason), name, e.PhoneNumber)}
	if e.Destination != nil && *e.Destination != "" {
		parts = append(parts, "to "+*e.Destination)
	}
	if e.PreferredTravelDates != nil && *e.PreferredTravelDates != "" {
		parts = append(parts, *e.PreferredTravelDates)
	}
	return strings.Join(parts, ", ") + ". Please call back."
}
