package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/travel-enquiry-bot/internal/archive"
	"github.com/wolfman30/travel-enquiry-bot/internal/contacts"
	"github.com/wolfman30/travel-enquiry-bot/internal/enquiry"
	"github.com/wolfman30/travel-enquiry-bot/internal/llm"
	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

var engineTracer = otel.Tracer("travel-enquiry-bot/internal/conversation/engine")

// Handoff reasons passed to notifiers and the archive.
const (
	HandoffLeadComplete      = "lead_complete"
	HandoffCallbackRequested = "callback_requested"
	HandoffDisengaged        = "disengaged"
)

const (
	defaultHistoryTurns = 5
	defaultReplyTimeout = 20 * time.Second
	replyMaxTokens      = 500
	replyTemperature    = 0.7
)

// EnquiryReconciler merges a turn into the enquiry record.
type EnquiryReconciler interface {
	ReconcileTurn(ctx context.Context, turn enquiry.Turn) (*enquiry.Result, error)
	CreateCallbackRequest(ctx context.Context, phone, preferredTime string) (*enquiry.Enquiry, error)
}

// ContactRecorder keeps the dashboard contact log.
type ContactRecorder interface {
	Touch(ctx context.Context, phone string) error
	SaveExchange(ctx context.Context, ex contacts.Exchange) error
}

// HandoffNotifier tells the sales desk about a handed-off enquiry.
type HandoffNotifier interface {
	NotifyHandoff(ctx context.Context, e *enquiry.Enquiry, reason string) error
}

// HandoffArchiver stores handed-off enquiries for later review.
type HandoffArchiver interface {
	ArchiveHandoff(ctx context.Context, e *enquiry.Enquiry, reason string, transcript []archive.Message) error
}

// TurnObserver receives per-turn outcomes for metrics.
type TurnObserver interface {
	ObserveDisengagement()
	ObserveReply(outcome string)
}

// Engine runs one inbound WhatsApp message through the full turn.
type Engine struct {
	reconciler   EnquiryReconciler
	history      HistoryStore
	replies      llm.Client
	replyModel   string
	contacts     ContactRecorder
	notifier     HandoffNotifier
	archiver     HandoffArchiver
	observer     TurnObserver
	logger       *logging.Logger
	historyTurns int
	replyTimeout time.Duration
	now          func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithReplyClient sets the LLM used to write replies. Without one every
// reply is the fallback acknowledgement.
func WithReplyClient(client llm.Client, model string) EngineOption {
	return func(e *Engine) {
		e.replies = client
		e.replyModel = model
	}
}

// WithContacts records contacts and exchanges for the dashboard.
func WithContacts(rec ContactRecorder) EngineOption {
	return func(e *Engine) { e.contacts = rec }
}

// WithHandoffNotifier sets who is told about handoffs.
func WithHandoffNotifier(n HandoffNotifier) EngineOption {
	return func(e *Engine) { e.notifier = n }
}

// WithHandoffArchiver sets where handoffs are archived.
func WithHandoffArchiver(a HandoffArchiver) EngineOption {
	return func(e *Engine) { e.archiver = a }
}

// WithTurnObserver sets the metrics sink.
func WithTurnObserver(o TurnObserver) EngineOption {
	return func(e *Engine) { e.observer = o }
}

// WithHistoryTurns bounds how many prior turns are loaded.
func WithHistoryTurns(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.historyTurns = n
		}
	}
}

// WithReplyTimeout bounds reply generation.
func WithReplyTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.replyTimeout = d
		}
	}
}

// WithEngineClock overrides time.Now.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine wires the turn pipeline.
func NewEngine(reconciler EnquiryReconciler, history HistoryStore, logger *logging.Logger, opts ...EngineOption) *Engine {
	if reconciler == nil {
		panic("conversation: reconciler cannot be nil")
	}
	if history == nil {
		history = NewMemoryHistoryStore()
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		reconciler:   reconciler,
		history:      history,
		logger:       logger,
		historyTurns: defaultHistoryTurns,
		replyTimeout: defaultReplyTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleInbound processes one message and returns the reply to send. When
// reconciliation fails the response still carries the fallback reply and
// the error is returned alongside it.
func (e *Engine) HandleInbound(ctx context.Context, msg InboundMessage) (*Response, error) {
	phone := strings.TrimSpace(msg.From)
	body := strings.TrimSpace(msg.Body)
	if phone == "" || body == "" {
		return nil, ErrEmptyMessage
	}

	ctx, span := engineTracer.Start(ctx, "conversation.handle_inbound")
	defer span.End()
	span.SetAttributes(attribute.String("whatsapp.message_id", msg.MessageID))

	if e.contacts != nil {
		if err := e.contacts.Touch(ctx, phone); err != nil {
			e.logger.Warn("failed to record contact", "error", err, "message_id", msg.MessageID)
		}
	}

	history, err := e.history.Recent(ctx, phone, e.historyTurns)
	if err != nil {
		e.logger.Warn("failed to load history", "error", err, "message_id", msg.MessageID)
		history = nil
	}

	if IsDisengaged(body, history) {
		return e.handleDisengaged(ctx, phone, body, history)
	}

	result, err := e.reconciler.ReconcileTurn(ctx, enquiry.Turn{Phone: phone, Text: body, MessageID: msg.MessageID})
	if err != nil {
		span.RecordError(err)
		resp := &Response{Reply: fallbackReply, Fallback: true}
		resp.InputTokens = contacts.EstimateTokens(body)
		resp.OutputTokens = contacts.EstimateTokens(resp.Reply)
		e.record(ctx, phone, body, resp)
		e.observeReply("reconcile_error")
		return resp, fmt.Errorf("conversation: reconcile: %w", err)
	}

	pc := NextPromptContext(result.Enquiry)
	resp := &Response{
		EnquiryID:         result.Enquiry.ID,
		Stage:             result.Enquiry.ConversationStage,
		AllPrimaryPresent: result.AllPrimaryPresent,
	}
	for _, f := range result.MissingPrimaryFields {
		resp.MissingFields = append(resp.MissingFields, string(f))
	}
	span.SetAttributes(
		attribute.String("enquiry.id", resp.EnquiryID),
		attribute.String("enquiry.stage", string(resp.Stage)),
	)

	e.generateReply(ctx, pc, history, body, resp)
	e.record(ctx, phone, body, resp)

	if reason := handoffReason(result); reason != "" {
		e.handoff(ctx, result.Enquiry, reason, history, body, resp.Reply)
	}
	return resp, nil
}

func (e *Engine) handleDisengaged(ctx context.Context, phone, body string, history []Message) (*Response, error) {
	e.logger.Info("user disengaged, scheduling callback")
	if e.observer != nil {
		e.observer.ObserveDisengagement()
	}

	resp := &Response{Reply: farewellReply, Disengaged: true}
	resp.InputTokens = contacts.EstimateTokens(body)
	resp.OutputTokens = contacts.EstimateTokens(resp.Reply)

	enq, err := e.reconciler.CreateCallbackRequest(ctx, phone, "ASAP")
	e.record(ctx, phone, body, resp)
	if err != nil {
		return resp, fmt.Errorf("conversation: callback request: %w", err)
	}
	resp.EnquiryID = enq.ID
	resp.Stage = enq.ConversationStage
	resp.AllPrimaryPresent = enq.AllPrimaryPresent()
	e.handoff(ctx, enq, HandoffDisengaged, history, body, resp.Reply)
	return resp, nil
}

func (e *Engine) generateReply(ctx context.Context, pc PromptContext, history []Message, body string, resp *Response) {
	fallback := func(outcome string) {
		resp.Reply = fallbackReply
		resp.Fallback = true
		resp.InputTokens = contacts.EstimateTokens(body)
		resp.OutputTokens = contacts.EstimateTokens(resp.Reply)
		e.observeReply(outcome)
	}
	if e.replies == nil {
		fallback("no_client")
		return
	}

	system := []string{SystemPrompt(pc)}
	if summary := ConversationContext(pc.Fields); summary != "" {
		system = append(system, summary)
	}
	messages := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: body})

	replyCtx, cancel := context.WithTimeout(ctx, e.replyTimeout)
	defer cancel()
	out, err := e.replies.Complete(replyCtx, llm.Request{
		Model:       e.replyModel,
		System:      system,
		Messages:    messages,
		MaxTokens:   replyMaxTokens,
		Temperature: replyTemperature,
	})
	if err != nil {
		e.logger.Warn("reply generation failed", "error", err, "stage", string(pc.Stage))
		fallback("llm_error")
		return
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		e.logger.Warn("reply generation returned empty text", "stage", string(pc.Stage), "stop_reason", out.StopReason)
		fallback("llm_empty")
		return
	}

	resp.Reply = text
	resp.InputTokens = int(out.Usage.Input)
	if resp.InputTokens <= 0 {
		resp.InputTokens = contacts.EstimateTokens(body)
	}
	resp.OutputTokens = int(out.Usage.Output)
	if resp.OutputTokens <= 0 {
		resp.OutputTokens = contacts.EstimateTokens(text)
	}
	e.observeReply("generated")
}

// record appends the exchange to history and the dashboard log. Failures
// are logged; the user still gets the reply.
func (e *Engine) record(ctx context.Context, phone, body string, resp *Response) {
	now := e.now()
	if err := e.history.Append(ctx, phone,
		Message{Role: RoleUser, Content: body, Timestamp: now},
		Message{Role: RoleAssistant, Content: resp.Reply, Timestamp: now},
	); err != nil {
		e.logger.Warn("failed to append history", "error", err)
	}
	if e.contacts == nil {
		return
	}
	if err := e.contacts.SaveExchange(ctx, contacts.Exchange{
		Phone:        phone,
		UserMessage:  body,
		Reply:        resp.Reply,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		At:           now,
	}); err != nil {
		e.logger.Warn("failed to save conversation", "error", err, "enquiry_id", resp.EnquiryID)
	}
}

func handoffReason(result *enquiry.Result) string {
	switch {
	case result.BecameComplete:
		return HandoffLeadComplete
	case result.Applied.WantsCallback != nil && *result.Applied.WantsCallback && result.Enquiry.CallbackRequested:
		return HandoffCallbackRequested
	default:
		return ""
	}
}

func (e *Engine) handoff(ctx context.Context, enq *enquiry.Enquiry, reason string, history []Message, body, reply string) {
	if enq == nil {
		return
	}
	e.logger.Info("handing off enquiry", "enquiry_id", enq.ID, "reason", reason)

	var errs []error
	if e.notifier != nil {
		if err := e.notifier.NotifyHandoff(ctx, enq, reason); err != nil {
			errs = append(errs, err)
		}
	}
	if e.archiver != nil {
		now := e.now()
		transcript := make([]archive.Message, 0, len(history)+2)
		for _, m := range history {
			transcript = append(transcript, archive.Message{Role: m.Role, Content: m.Content, Timestamp: m.Timestamp})
		}
		transcript = append(transcript,
			archive.Message{Role: RoleUser, Content: body, Timestamp: now},
			archive.Message{Role: RoleAssistant, Content: reply, Timestamp: now},
		)
		if err := e.archiver.ArchiveHandoff(ctx, enq, reason, transcript); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		e.logger.Error("handoff side effects failed", "error", err, "enquiry_id", enq.ID, "reason", reason)
	}
}

func (e *Engine) observeReply(outcome string) {
	if e.observer != nil {
		e.observer.ObserveReply(outcome)
	}
}
