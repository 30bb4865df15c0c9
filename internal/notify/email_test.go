package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type fakeSendGrid struct {
	status int
	err    error
	got    *mail.SGMailV3
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.got = email
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status}, nil
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func handoffMessage() EmailMessage {
	return EmailMessage{
		To:        "sales@jetafly.test",
		Subject:   "New Qualified Lead - Krish",
		Body:      "plain",
		HTML:      "<p>html</p>",
		ReplyTo:   "Krish <krish@example.com>",
		EnquiryID: "enq-42",
		Reason:    "lead_complete",
	}
}

func TestEmailMessageValidate(t *testing.T) {
	tests := []struct {
		name string
		msg  EmailMessage
		ok   bool
	}{
		{"complete", handoffMessage(), true},
		{"html only", EmailMessage{To: "a@b.test", HTML: "<p>x</p>"}, true},
		{"no recipient", EmailMessage{Body: "x"}, false},
		{"no body", EmailMessage{To: "a@b.test"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.msg.validate(); (err == nil) != tt.ok {
				t.Fatalf("validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestEmailMessageReplyTo(t *testing.T) {
	if got := handoffMessage().replyTo(); got != "krish@example.com" {
		t.Fatalf("expected bare address, got %q", got)
	}
	if got := (EmailMessage{ReplyTo: "not an address"}).replyTo(); got != "" {
		t.Fatalf("expected unparsable reply-to dropped, got %q", got)
	}
}

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	if sender := NewSendGridSender(SendGridConfig{FromEmail: "desk@jetafly.test"}, nil); sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
	sender := NewSendGridSender(SendGridConfig{APIKey: "key", FromEmail: "desk@jetafly.test"}, nil)
	if sender == nil || sender.fromName != DefaultFromName {
		t.Fatalf("expected default from name, got %+v", sender)
	}
}

func TestSendGridSender_SendTagsHandoff(t *testing.T) {
	fake := &fakeSendGrid{status: 202}
	sender := newSendGridSender(fake, SendGridConfig{FromEmail: "desk@jetafly.test"}, nil)

	if err := sender.Send(context.Background(), handoffMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := fake.got
	if got == nil || got.Subject != "New Qualified Lead - Krish" {
		t.Fatalf("expected mail to be built, got %+v", got)
	}
	if len(got.Content) != 2 {
		t.Errorf("expected plain and html content, got %d parts", len(got.Content))
	}
	if got.ReplyTo == nil || got.ReplyTo.Address != "krish@example.com" {
		t.Errorf("expected reply-to customer, got %+v", got.ReplyTo)
	}
	if len(got.Categories) != 2 || got.Categories[0] != handoffCategory || got.Categories[1] != "lead_complete" {
		t.Errorf("unexpected categories %v", got.Categories)
	}
	if got.CustomArgs["enquiry_id"] != "enq-42" {
		t.Errorf("expected enquiry id custom arg, got %v", got.CustomArgs)
	}
}

func TestSendGridSender_Failures(t *testing.T) {
	tests := []struct {
		name   string
		sender *SendGridSender
		msg    EmailMessage
	}{
		{"error status", newSendGridSender(&fakeSendGrid{status: 401}, SendGridConfig{}, nil), handoffMessage()},
		{"transport error", newSendGridSender(&fakeSendGrid{err: errors.New("dial")}, SendGridConfig{}, nil), handoffMessage()},
		{"nil client", &SendGridSender{}, handoffMessage()},
		{"invalid message", newSendGridSender(&fakeSendGrid{status: 202}, SendGridConfig{}, nil), EmailMessage{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.sender.Send(context.Background(), tt.msg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSESSender_SendTagsHandoff(t *testing.T) {
	fake := &fakeSES{}
	sender := NewSESSender(fake, SESConfig{FromEmail: "desk@jetafly.test", ConfigurationSet: "handoffs"}, nil)

	if err := sender.Send(context.Background(), handoffMessage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in := fake.input
	if got := aws.ToString(in.FromEmailAddress); got != DefaultFromName+" <desk@jetafly.test>" {
		t.Errorf("unexpected from address %q", got)
	}
	if body := in.Content.Simple.Body; body.Text == nil || body.Html == nil {
		t.Fatal("expected both text and html bodies")
	}
	if in.Destination.ToAddresses[0] != "sales@jetafly.test" {
		t.Errorf("unexpected destination %v", in.Destination.ToAddresses)
	}
	if len(in.ReplyToAddresses) != 1 || in.ReplyToAddresses[0] != "krish@example.com" {
		t.Errorf("unexpected reply-to %v", in.ReplyToAddresses)
	}
	if aws.ToString(in.ConfigurationSetName) != "handoffs" {
		t.Errorf("expected configuration set, got %v", in.ConfigurationSetName)
	}
	tags := map[string]string{}
	for _, tag := range in.EmailTags {
		tags[aws.ToString(tag.Name)] = aws.ToString(tag.Value)
	}
	if tags["category"] != handoffCategory || tags["enquiry_id"] != "enq-42" || tags["reason"] != "lead_complete" {
		t.Errorf("unexpected tags %v", tags)
	}
}

func TestSESSender_SanitisesTagValues(t *testing.T) {
	fake := &fakeSES{}
	sender := NewSESSender(fake, SESConfig{FromEmail: "desk@jetafly.test"}, nil)
	msg := handoffMessage()
	msg.EnquiryID = "enq 42/x"
	msg.ReplyTo = ""

	if err := sender.Send(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.input.ReplyToAddresses != nil {
		t.Errorf("expected no reply-to, got %v", fake.input.ReplyToAddresses)
	}
	for _, tag := range fake.input.EmailTags {
		if aws.ToString(tag.Name) == "enquiry_id" && aws.ToString(tag.Value) != "enq_42_x" {
			t.Errorf("expected sanitised tag, got %q", aws.ToString(tag.Value))
		}
	}
}

func TestSESSender_Error(t *testing.T) {
	sender := NewSESSender(&fakeSES{err: errors.New("throttled")}, SESConfig{FromEmail: "desk@jetafly.test"}, nil)
	if err := sender.Send(context.Background(), handoffMessage()); err == nil {
		t.Fatal("expected error")
	}
	if NewSESSender(nil, SESConfig{}, nil) != nil {
		t.Error("expected nil sender without client")
	}
}

func TestStubEmailSender_Send(t *testing.T) {
	stub := NewStubEmailSender(nil)
	if err := stub.Send(context.Background(), handoffMessage()); err != nil {
		t.Errorf("stub sender should not fail, got: %v", err)
	}
	if err := stub.Send(context.Background(), EmailMessage{}); !errors.Is(err, errNoRecipient) {
		t.Errorf("expected missing recipient error, got %v", err)
	}
}
