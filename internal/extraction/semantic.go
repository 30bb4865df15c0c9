package extraction

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/travel-enquiry-bot/internal/enquiry"
	"github.com/wolfman30/travel-enquiry-bot/internal/llm"
	"github.com/wolfman30/travel-enquiry-bot/internal/phone"
	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

var semanticTracer = otel.Tracer("travel-enquiry-bot/internal/extraction")

const semanticSystemPrompt = `You extract travel enquiry details for a travel agency's WhatsApp assistant.
Read the traveller's message and answer with one JSON object using only these keys:
- destination: city or country they want to visit
- city: the city they depart from
- dates: travel dates as written ("10th March", "next week")
- daysNights: trip length ("5 days 4 nights")
- travellers: number of people, or {"adults": n, "children": [{"age": n}], "infants": n}
- category: hotel category (Budget, 3 Star, 4 Star, 5 Star)
- budget: approximate budget as digits ("1 lakh" is "100000", "50k" is "50000")
- travelType: Flight, Train, Bus or Car
- tripType: Family, Honeymoon, Group, Solo, Corporate or Religious
- name: the traveller's name when they give it
- email: email address
- phone: phone number in the text
- requirements: special requirements or notes
- passport: {"hasPassport": bool, "passportNumber": string, "expiryDate": string}
- intent: "new_trip" when they want to start over or plan a new trip, "cancel" when they cancel

Leave out every key the message does not mention. Never send placeholders such as "null", "N/A" or "None".
"Mumbai to Delhi" means city "Mumbai" and destination "Delhi". "with my wife" means travellers "2".`

// Semantic extracts fields with an LLM. It never fails: transport or decoding
// errors are logged and yield empty Fields so the heuristic result drives the
// turn on its own.
type Semantic struct {
	client      llm.Client
	model       string
	timeout     time.Duration
	temperature float32
	region      string
	logger      *logging.Logger
}

// SemanticOption configures a Semantic extractor.
type SemanticOption func(*Semantic)

// WithSemanticModel overrides the provider's default model.
func WithSemanticModel(model string) SemanticOption {
	return func(s *Semantic) { s.model = model }
}

// WithRequestTimeout bounds each extraction call.
func WithRequestTimeout(d time.Duration) SemanticOption {
	return func(s *Semantic) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSemanticLogger sets the logger used for extraction failures.
func WithSemanticLogger(logger *logging.Logger) SemanticOption {
	return func(s *Semantic) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSemanticPhoneRegion sets the region used for national phone numbers.
func WithSemanticPhoneRegion(region string) SemanticOption {
	return func(s *Semantic) {
		if region != "" {
			s.region = region
		}
	}
}

// NewSemantic creates an LLM-backed extractor.
func NewSemantic(client llm.Client, opts ...SemanticOption) *Semantic {
	if client == nil {
		panic("extraction: llm client cannot be nil")
	}
	s := &Semantic{
		client:      client,
		timeout:     8 * time.Second,
		temperature: 0.1,
		region:      phone.DefaultRegion,
		logger:      logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExtractSemantic asks the model for the fields in text. hint, when set, is
// the enquiry as known so far.
func (s *Semantic) ExtractSemantic(ctx context.Context, text string, hint *enquiry.Enquiry) enquiry.Fields {
	ctx, span := semanticTracer.Start(ctx, "extraction.semantic")
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return enquiry.Fields{}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	system := []string{semanticSystemPrompt}
	if known := hintSummary(hint); known != "" {
		system = append(system, "Already known about this enquiry (use only to resolve references): "+known)
	}

	resp, err := s.client.Complete(ctx, llm.Request{
		Model:       s.model,
		System:      system,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: text}},
		MaxTokens:   400,
		Temperature: s.temperature,
		JSONMode:    true,
	})
	if err != nil {
		s.logger.Warn("semantic extraction failed", "error", err)
		span.SetAttributes(attribute.Bool("extraction.failed", true))
		return enquiry.Fields{}
	}

	fields, err := decodeSemantic(resp.Text, s.region)
	if err != nil {
		s.logger.Warn("semantic extraction returned invalid json", "error", err)
		span.SetAttributes(attribute.Bool("extraction.failed", true))
		return enquiry.Fields{}
	}
	span.SetAttributes(attribute.Int("llm.total_tokens", int(resp.Usage.Total())))
	return fields
}

func hintSummary(e *enquiry.Enquiry) string {
	if e == nil || !e.HasAnyPrimary() {
		return ""
	}
	known := map[string]string{}
	add := func(key string, v *string) {
		if v != nil && *v != "" {
			known[key] = *v
		}
	}
	add("name", e.ClientName)
	add("destination", e.Destination)
	add("city", e.DepartureCity)
	add("dates", e.PreferredTravelDates)
	add("travelType", e.TravelType)
	add("budget", e.ApproximateBudget)
	add("tripType", e.TripType)
	raw, err := json.Marshal(known)
	if err != nil {
		return ""
	}
	return string(raw)
}

// decodeSemantic maps the model's keys onto Fields. Models are loose with
// types, so numbers and strings are both accepted for scalar keys.
func decodeSemantic(content, region string) (enquiry.Fields, error) {
	content = stripCodeFence(content)
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return enquiry.Fields{}, err
	}

	var f enquiry.Fields
	f.Destination = labelDestination(rawString(raw["destination"]))
	f.DepartureCity = rawString(raw["city"])
	f.PreferredTravelDates = rawString(raw["dates"])
	f.NumberOfDaysNights = rawString(raw["daysNights"])
	f.HotelCategory = rawString(raw["category"])
	f.ApproximateBudget = rawString(raw["budget"])
	f.TravelType = rawString(raw["travelType"])
	f.TripType = rawString(raw["tripType"])
	f.ClientName = rawString(raw["name"])
	f.Email = rawString(raw["email"])
	f.SpecialRequirements = rawString(raw["requirements"])
	if p := rawString(raw["phone"]); p != nil {
		f.Phone = enquiry.Ptr(phone.NormalizeE164(*p, region))
	}
	f.TotalTravellers = rawTravellers(raw["travellers"])
	f.PassportDetails = rawPassport(raw["passport"])

	if intent := rawString(raw["intent"]); intent != nil {
		switch enquiry.Intent(strings.ToLower(*intent)) {
		case enquiry.IntentNewTrip:
			f.Intent = enquiry.IntentNewTrip
		case enquiry.IntentCancel:
			f.Intent = enquiry.IntentCancel
		}
	}
	return f, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func rawString(data json.RawMessage) *string {
	if len(data) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	switch val := v.(type) {
	case string:
		return enquiry.NormalizePtr(&val)
	case float64:
		return enquiry.Ptr(strconv.FormatFloat(val, 'f', -1, 64))
	}
	return nil
}

func rawTravellers(data json.RawMessage) *enquiry.Travellers {
	if len(data) == 0 {
		return nil
	}
	var t enquiry.Travellers
	if err := json.Unmarshal(data, &t); err != nil {
		return nil
	}
	if t.Text != "" {
		text, ok := enquiry.NormalizeString(t.Text)
		if !ok {
			return nil
		}
		t.Text = text
	}
	if t.PeopleCount() == nil && t.Text == "" {
		return nil
	}
	return &t
}

func rawPassport(data json.RawMessage) *enquiry.Passport {
	if len(data) == 0 {
		return nil
	}
	var obj struct {
		HasPassport    *bool `json:"hasPassport"`
		PassportNumber any   `json:"passportNumber"`
		ExpiryDate     any   `json:"expiryDate"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		p := &enquiry.Passport{}
		if n, ok := enquiry.Normalize(obj.PassportNumber).(string); ok {
			p.PassportNumber = &n
		}
		if d, ok := enquiry.Normalize(obj.ExpiryDate).(string); ok {
			p.ExpiryDate = &d
		}
		switch {
		case obj.HasPassport != nil:
			p.HasPassport = *obj.HasPassport
		case p.PassportNumber != nil:
			p.HasPassport = true
		default:
			return nil
		}
		return p
	}

	s := rawString(data)
	if s == nil {
		return nil
	}
	return parsePassport("passport "+*s, false)
}
