package enquiry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

var tracer = otel.Tracer("travel-enquiry-bot/internal/enquiry")

// Strategy selects how the heuristic extractor reads a message.
type Strategy string

const (
	// StrategyComprehensive parses every message for every field.
	StrategyComprehensive Strategy = "comprehensive"
	// StrategyStaged asks one question per turn and parses only its answer.
	StrategyStaged Strategy = "staged"
)

// ParseStrategy maps config values onto a Strategy, defaulting to comprehensive.
func ParseStrategy(raw string) Strategy {
	if Strategy(strings.ToLower(strings.TrimSpace(raw))) == StrategyStaged {
		return StrategyStaged
	}
	return StrategyComprehensive
}

// HeuristicExtractor is the pattern-based parser. It must not fail.
type HeuristicExtractor interface {
	Extract(stage Stage, text string) Fields
}

// SemanticExtractor is the LLM-backed parser. It degrades to empty Fields on
// any failure instead of returning an error.
type SemanticExtractor interface {
	ExtractSemantic(ctx context.Context, text string, hint *Enquiry) Fields
}

// Turn is one inbound message.
type Turn struct {
	Phone string
	Text  string
	// MessageID keys the audit entry when set so redelivered messages overwrite.
	MessageID string
}

// Result describes the outcome of one reconciled turn.
type Result struct {
	Enquiry              *Enquiry
	Applied              Fields
	IsReset              bool
	MissingPrimaryFields []PrimaryField
	AllPrimaryPresent    bool
	// BecameComplete is true on the turn the last primary field arrived.
	BecameComplete bool
	// Created is true when this turn opened a new enquiry.
	Created bool
}

// Observer receives reconcile outcomes for metrics.
type Observer interface {
	ObserveReconcile(outcome string, duration time.Duration)
	ObserveSemanticEmpty()
}

// Reconciler merges per-turn extractions into the persisted enquiry.
type Reconciler struct {
	repo                   Repository
	heuristic              HeuristicExtractor
	semantic               SemanticExtractor
	locker                 KeyedLocker
	logger                 *logging.Logger
	observer               Observer
	now                    func() time.Time
	newID                  func() string
	strategy               Strategy
	autoCallback           bool
	resetClearsContactInfo bool
	semanticTimeout        time.Duration
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithAutoCallback flags a callback as soon as any primary field is known.
func WithAutoCallback(enabled bool) ReconcilerOption {
	return func(r *Reconciler) { r.autoCallback = enabled }
}

// WithResetClearsContactInfo makes a new-trip reset also clear name and email.
func WithResetClearsContactInfo(enabled bool) ReconcilerOption {
	return func(r *Reconciler) { r.resetClearsContactInfo = enabled }
}

// WithSemanticTimeout bounds the semantic extractor call.
func WithSemanticTimeout(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.semanticTimeout = d
		}
	}
}

// WithLocker replaces the in-process per-phone lock.
func WithLocker(l KeyedLocker) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.locker = l
		}
	}
}

// WithStrategy selects comprehensive or staged extraction.
func WithStrategy(s Strategy) ReconcilerOption {
	return func(r *Reconciler) { r.strategy = s }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator overrides enquiry id generation.
func WithIDGenerator(fn func() string) ReconcilerOption {
	return func(r *Reconciler) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObserver records reconcile metrics.
func WithObserver(o Observer) ReconcilerOption {
	return func(r *Reconciler) { r.observer = o }
}

// NewReconciler wires the reconciler. The semantic extractor may be nil.
func NewReconciler(repo Repository, heuristic HeuristicExtractor, semantic SemanticExtractor, opts ...ReconcilerOption) *Reconciler {
	if repo == nil {
		panic("enquiry: repository cannot be nil")
	}
	if heuristic == nil {
		panic("enquiry: heuristic extractor cannot be nil")
	}
	r := &Reconciler{
		repo:            repo,
		heuristic:       heuristic,
		semantic:        semantic,
		locker:          NewMemoryLocker(),
		logger:          logging.Default(),
		now:             func() time.Time { return time.Now().UTC() },
		newID:           uuid.NewString,
		strategy:        StrategyComprehensive,
		autoCallback:    true,
		semanticTimeout: 8 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile applies one message to the phone's active enquiry.
func (r *Reconciler) Reconcile(ctx context.Context, phone, text string) (*Result, error) {
	return r.ReconcileTurn(ctx, Turn{Phone: phone, Text: text})
}

// ReconcileTurn loads or creates the active enquiry, merges the heuristic and
// semantic extractions, advances status and stage, and persists the result.
// Turns for the same phone are serialised.
func (r *Reconciler) ReconcileTurn(ctx context.Context, turn Turn) (*Result, error) {
	if strings.TrimSpace(turn.Phone) == "" {
		return nil, ErrMissingPhone
	}
	ctx, span := tracer.Start(ctx, "enquiry.reconcile")
	defer span.End()
	start := time.Now()

	unlock, err := r.locker.Lock(ctx, turn.Phone)
	if err != nil {
		span.RecordError(err)
		r.observe("lock_failed", start)
		return nil, fmt.Errorf("enquiry: lock %s: %w", turn.Phone, err)
	}
	defer unlock()

	e, created, err := r.loadOrCreate(ctx, turn.Phone)
	if err != nil {
		span.RecordError(err)
		r.observe("error", start)
		return nil, err
	}
	wasComplete := e.AllPrimaryPresent()

	heuristic, semantic := r.extract(ctx, e, turn.Text)
	now := r.now()

	if semantic.Intent.IsReset() {
		r.reset(e)
		r.audit(e, turn, Fields{Intent: semantic.Intent}, now)
		if err := r.persist(ctx, e, now); err != nil {
			span.RecordError(err)
			r.observe("error", start)
			return nil, err
		}
		r.logger.Info("enquiry reset", "phone", turn.Phone, "enquiry_id", e.ID, "intent", string(semantic.Intent))
		r.observe("reset", start)
		return r.result(e, Fields{Intent: semantic.Intent}, true, false, created), nil
	}

	merged := Merge(heuristic, semantic)
	merged.Intent = IntentNone
	applied := r.apply(e, merged)

	if e.HasAnyPrimary() {
		e.Status = StatusInProgress
		if r.autoCallback && !e.CallbackRequested {
			e.CallbackRequested = true
			e.PreferredCallbackTime = Ptr("ASAP")
		}
	}
	e.ConversationStage = r.nextStage(e, applied)

	r.audit(e, turn, merged, now)
	if err := r.persist(ctx, e, now); err != nil {
		span.RecordError(err)
		r.observe("error", start)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("enquiry.stage", string(e.ConversationStage)),
		attribute.Bool("enquiry.complete", e.AllPrimaryPresent()),
	)
	r.observe("applied", start)
	res := r.result(e, applied, false, !wasComplete && e.AllPrimaryPresent(), created)
	return res, nil
}

// CreateCallbackRequest flags the phone's active enquiry for a human callback
// and closes the automated conversation.
func (r *Reconciler) CreateCallbackRequest(ctx context.Context, phone, preferredTime string) (*Enquiry, error) {
	if strings.TrimSpace(phone) == "" {
		return nil, ErrMissingPhone
	}
	unlock, err := r.locker.Lock(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("enquiry: lock %s: %w", phone, err)
	}
	defer unlock()

	e, _, err := r.loadOrCreate(ctx, phone)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(preferredTime) == "" {
		preferredTime = "ASAP"
	}
	e.CallbackRequested = true
	e.PreferredCallbackTime = Ptr(strings.TrimSpace(preferredTime))
	e.Status = StatusInProgress
	e.ConversationStage = StageCompleted
	if err := r.persist(ctx, e, r.now()); err != nil {
		return nil, err
	}
	r.logger.Info("callback request created", "phone", phone, "enquiry_id", e.ID, "preferred_time", preferredTime)
	return e, nil
}

// Current returns the active enquiry for phone, creating one if needed.
func (r *Reconciler) Current(ctx context.Context, phone string) (*Enquiry, error) {
	e, _, err := r.loadOrCreate(ctx, phone)
	return e, err
}

func (r *Reconciler) loadOrCreate(ctx context.Context, phone string) (*Enquiry, bool, error) {
	e, err := r.repo.FindActive(ctx, phone)
	if err == nil {
		if e.CollectedData == nil {
			e.CollectedData = map[string]AuditEntry{}
		}
		return e, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("enquiry: load %s: %w", phone, err)
	}
	e = New(r.newID(), phone, r.now())
	if err := r.repo.Create(ctx, e); err != nil {
		return nil, false, fmt.Errorf("enquiry: create %s: %w", phone, err)
	}
	r.logger.Info("created travel enquiry", "phone", phone, "enquiry_id", e.ID)
	return e, true, nil
}

// extract runs both extractors concurrently and waits for both.
func (r *Reconciler) extract(ctx context.Context, e *Enquiry, text string) (Fields, Fields) {
	var (
		wg        sync.WaitGroup
		heuristic Fields
		semantic  Fields
	)
	stage := e.ConversationStage
	if r.semantic != nil {
		hint := e.Clone()
		wg.Add(1)
		go func() {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, r.semanticTimeout)
			defer cancel()
			semantic = r.semantic.ExtractSemantic(sctx, text, hint)
		}()
	}
	heuristic = r.heuristic.Extract(stage, text)
	wg.Wait()

	if r.semantic != nil && semantic.IsEmpty() && r.observer != nil {
		r.observer.ObserveSemanticEmpty()
	}
	return heuristic, semantic
}

// apply writes merged values through the normaliser. Values that normalise to
// nothing never clear an existing field.
func (r *Reconciler) apply(e *Enquiry, f Fields) Fields {
	var applied Fields
	set := func(dst **string, v *string) *string {
		n := NormalizePtr(v)
		if n == nil {
			return nil
		}
		*dst = n
		return n
	}

	applied.ClientName = set(&e.ClientName, f.ClientName)
	applied.Email = set(&e.Email, f.Email)
	applied.Destination = set(&e.Destination, f.Destination)
	applied.DepartureCity = set(&e.DepartureCity, f.DepartureCity)
	applied.PreferredTravelDates = set(&e.PreferredTravelDates, f.PreferredTravelDates)
	applied.NumberOfDaysNights = set(&e.NumberOfDaysNights, f.NumberOfDaysNights)
	applied.TravelType = set(&e.TravelType, f.TravelType)
	applied.HotelCategory = set(&e.HotelCategory, f.HotelCategory)
	applied.RoomRequirement = set(&e.RoomRequirement, f.RoomRequirement)
	applied.MealPlan = set(&e.MealPlan, f.MealPlan)
	applied.ApproximateBudget = set(&e.ApproximateBudget, f.ApproximateBudget)
	applied.TripType = set(&e.TripType, f.TripType)

	// "None" is a real answer for special requirements, unlike other fields.
	if f.SpecialRequirements != nil {
		if strings.EqualFold(strings.TrimSpace(*f.SpecialRequirements), "none") {
			e.SpecialRequirements = Ptr("None")
			applied.SpecialRequirements = e.SpecialRequirements
		} else {
			applied.SpecialRequirements = set(&e.SpecialRequirements, f.SpecialRequirements)
		}
	}

	if f.Phone != nil {
		if p := NormalizePtr(f.Phone); p != nil && *p != e.PhoneNumber {
			e.AlternatePhone = p
			applied.Phone = p
		}
	}
	if f.TotalTravellers != nil {
		t := *f.TotalTravellers
		if t.Text != "" {
			if s, ok := NormalizeString(t.Text); ok {
				t.Text = s
			} else {
				t.Text = ""
			}
		}
		// Only a positive headcount replaces numberOfPeople.
		if count := DerivePeopleCount(t); count != nil && *count > 0 {
			e.TotalTravellers = &t
			e.NumberOfPeople = *count
			applied.TotalTravellers = &t
		} else if t.Text != "" {
			e.TotalTravellers = &t
			applied.TotalTravellers = &t
		}
	}
	if f.ServicesRequired != nil {
		s := *f.ServicesRequired
		e.ServicesRequired = &s
		applied.ServicesRequired = &s
	}
	if f.PassportDetails != nil {
		p := *f.PassportDetails
		p.PassportNumber = NormalizePtr(p.PassportNumber)
		p.ExpiryDate = NormalizePtr(p.ExpiryDate)
		e.PassportDetails = &p
		applied.PassportDetails = &p
	}
	if f.WantsCallback != nil {
		applied.WantsCallback = f.WantsCallback
		applied.PreferredCallbackTime = NormalizePtr(f.PreferredCallbackTime)
	}
	return applied
}

// nextStage implements the forward-only stage policy: travel_dates while any
// primary field is missing, contact_info once all are present.
func (r *Reconciler) nextStage(e *Enquiry, applied Fields) Stage {
	current := e.ConversationStage
	if current == StageCompleted {
		return StageCompleted
	}

	complete := e.AllPrimaryPresent()
	target := StageTravelDates
	if complete {
		target = StageContactInfo
	}

	if r.strategy == StrategyStaged {
		legacy := LegacyNextStage(current, e)
		if current == StageCallbackOrContact && applied.WantsCallback != nil {
			if *applied.WantsCallback {
				e.CallbackRequested = true
				e.PreferredCallbackTime = applied.PreferredCallbackTime
				if e.PreferredCallbackTime == nil {
					e.PreferredCallbackTime = Ptr("ASAP")
				}
			}
			e.Status = StatusInProgress
			legacy = StageCompleted
		}
		if !complete && legacy.Rank() >= StageContactInfo.Rank() {
			legacy = current
		}
		if legacy.Rank() > target.Rank() {
			target = legacy
		}
	}
	return Advance(current, target)
}

func (r *Reconciler) reset(e *Enquiry) {
	name, email := e.ClientName, e.Email
	fresh := New(e.ID, e.PhoneNumber, e.CreatedAt)
	fresh.CollectedData = e.CollectedData
	if !r.resetClearsContactInfo {
		fresh.ClientName = name
		fresh.Email = email
		fresh.AlternatePhone = e.AlternatePhone
	}
	*e = *fresh
}

func (r *Reconciler) audit(e *Enquiry, turn Turn, parsed Fields, now time.Time) {
	key := turn.MessageID
	if key == "" {
		key = "turn_" + strconv.FormatInt(now.UnixMilli(), 10)
	}
	if e.CollectedData == nil {
		e.CollectedData = map[string]AuditEntry{}
	}
	e.CollectedData[key] = AuditEntry{RawText: turn.Text, ParsedData: parsed, RecordedAt: now}
}

func (r *Reconciler) persist(ctx context.Context, e *Enquiry, now time.Time) error {
	e.refreshTags()
	e.UpdatedAt = now
	if err := r.repo.Save(ctx, e); err != nil {
		return fmt.Errorf("enquiry: save %s: %w", e.ID, err)
	}
	return nil
}

func (r *Reconciler) result(e *Enquiry, applied Fields, isReset, becameComplete, created bool) *Result {
	return &Result{
		Enquiry:              e,
		Applied:              applied,
		IsReset:              isReset,
		MissingPrimaryFields: e.MissingPrimaryFields(),
		AllPrimaryPresent:    e.AllPrimaryPresent(),
		BecameComplete:       becameComplete,
		Created:              created,
	}
}

func (r *Reconciler) observe(outcome string, start time.Time) {
	if r.observer != nil {
		r.observer.ObserveReconcile(outcome, time.Since(start))
	}
}
