package enquiry

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of an enquiry.
type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in_progress"
	StatusContacted  Status = "contacted"
	StatusConverted  Status = "converted"
	StatusClosed     Status = "closed"
)

// Statuses lists every accepted status in display order.
var Statuses = []Status{StatusNew, StatusInProgress, StatusContacted, StatusConverted, StatusClosed}

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, allowed := range Statuses {
		if s == allowed {
			return s, nil
		}
	}
	return "", &InvalidStatusError{Value: raw}
}

// IsActive reports whether the status still accepts conversation turns.
func (s Status) IsActive() bool {
	return s == StatusNew || s == StatusInProgress
}

// Intent is a reserved signal returned by the semantic extractor.
type Intent string

const (
	IntentNone    Intent = ""
	IntentNewTrip Intent = "new_trip"
	IntentCancel  Intent = "cancel"
)

// IsReset reports whether the intent discards the current trip.
func (i Intent) IsReset() bool {
	return i == IntentNewTrip || i == IntentCancel
}

// Child is a travelling child. Age 0 means the age was not given.
type Child struct {
	Age int `json:"age"`
}

// Travellers is either a plain headcount (Count or Text) or a structured breakdown.
type Travellers struct {
	Adults   int     `json:"adults"`
	Children []Child `json:"children"`
	Infants  int     `json:"infants"`

	Count *int   `json:"-"`
	Text  string `json:"-"`
}

// IsStructured reports whether the breakdown form is in use.
func (t Travellers) IsStructured() bool {
	return t.Count == nil && t.Text == ""
}

// PeopleCount derives the headcount, nil when unknown.
func (t Travellers) PeopleCount() *int {
	return DerivePeopleCount(t)
}

func (t Travellers) MarshalJSON() ([]byte, error) {
	switch {
	case t.Count != nil:
		return json.Marshal(*t.Count)
	case t.Text != "":
		return json.Marshal(t.Text)
	}
	children := t.Children
	if children == nil {
		children = []Child{}
	}
	return json.Marshal(struct {
		Adults   int     `json:"adults"`
		Children []Child `json:"children"`
		Infants  int     `json:"infants"`
	}{t.Adults, children, t.Infants})
}

func (t *Travellers) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*t = Travellers{}
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Travellers{Text: s}
		return nil
	case '{':
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		parsed, ok := travellersFromMap(raw)
		if !ok {
			return fmt.Errorf("enquiry: unrecognised travellers object")
		}
		*t = parsed
		return nil
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		count := int(n)
		*t = Travellers{Count: &count}
		return nil
	}
}

// Services are the booleans for what the traveller wants booked.
type Services struct {
	Flights         bool `json:"flights"`
	Hotels          bool `json:"hotels"`
	Transfers       bool `json:"transfers"`
	Sightseeing     bool `json:"sightseeing"`
	Visa            bool `json:"visa"`
	TravelInsurance bool `json:"travelInsurance"`
}

// Passport captures passport availability for international trips.
type Passport struct {
	HasPassport    bool    `json:"hasPassport"`
	PassportNumber *string `json:"passportNumber,omitempty"`
	ExpiryDate     *string `json:"expiryDate,omitempty"`
}

// AuditEntry is one turn in the append-only collected data log.
type AuditEntry struct {
	RawText    string    `json:"rawText"`
	ParsedData Fields    `json:"parsedData"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Enquiry is the lead record accumulated across a WhatsApp conversation.
type Enquiry struct {
	ID                    string                `json:"id"`
	PhoneNumber           string                `json:"phoneNumber"`
	ClientName            *string               `json:"clientName"`
	Email                 *string               `json:"email"`
	AlternatePhone        *string               `json:"alternatePhone,omitempty"`
	Destination           *string               `json:"destination"`
	DepartureCity         *string               `json:"departureCity"`
	PreferredTravelDates  *string               `json:"preferredTravelDates"`
	NumberOfDaysNights    *string               `json:"numberOfDaysNights"`
	TravelType            *string               `json:"travelType"`
	TotalTravellers       *Travellers           `json:"totalTravellers"`
	NumberOfPeople        int                   `json:"numberOfPeople"`
	HotelCategory         *string               `json:"hotelCategory"`
	RoomRequirement       *string               `json:"roomRequirement"`
	MealPlan              *string               `json:"mealPlan"`
	ServicesRequired      *Services             `json:"servicesRequired"`
	ApproximateBudget     *string               `json:"approximateBudget"`
	TripType              *string               `json:"tripType"`
	SpecialRequirements   *string               `json:"specialRequirements"`
	PassportDetails       *Passport             `json:"passportDetails"`
	CallbackRequested     bool                  `json:"callbackRequested"`
	PreferredCallbackTime *string               `json:"preferredCallbackTime"`
	Status                Status                `json:"status"`
	ConversationStage     Stage                 `json:"conversationStage"`
	Tags                  []string              `json:"tags"`
	CollectedData         map[string]AuditEntry `json:"collectedData"`
	CreatedAt             time.Time             `json:"createdAt"`
	UpdatedAt             time.Time             `json:"updatedAt"`
}

// New seeds a fresh enquiry for a phone number.
func New(id, phone string, now time.Time) *Enquiry {
	return &Enquiry{
		ID:                id,
		PhoneNumber:       phone,
		NumberOfPeople:    1,
		Status:            StatusNew,
		ConversationStage: StageGreeting,
		Tags:              []string{},
		CollectedData:     map[string]AuditEntry{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Clone returns a deep copy.
func (e *Enquiry) Clone() *Enquiry {
	if e == nil {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		cp := *e
		return &cp
	}
	var out Enquiry
	if err := json.Unmarshal(data, &out); err != nil {
		cp := *e
		return &cp
	}
	if out.CollectedData == nil {
		out.CollectedData = map[string]AuditEntry{}
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	return &out
}

// PrimaryField names a field required before a lead is handed off.
type PrimaryField string

const (
	FieldClientName           PrimaryField = "clientName"
	FieldDestination          PrimaryField = "destination"
	FieldPreferredTravelDates PrimaryField = "preferredTravelDates"
	FieldTravelType           PrimaryField = "travelType"
	FieldApproximateBudget    PrimaryField = "approximateBudget"
)

// PrimaryFields is the fixed handoff set.
var PrimaryFields = []PrimaryField{
	FieldClientName,
	FieldDestination,
	FieldPreferredTravelDates,
	FieldTravelType,
	FieldApproximateBudget,
}

func (e *Enquiry) primaryValue(f PrimaryField) *string {
	switch f {
	case FieldClientName:
		return e.ClientName
	case FieldDestination:
		return e.Destination
	case FieldPreferredTravelDates:
		return e.PreferredTravelDates
	case FieldTravelType:
		return e.TravelType
	case FieldApproximateBudget:
		return e.ApproximateBudget
	}
	return nil
}

// MissingPrimaryFields lists the primary fields still unset, in fixed order.
func (e *Enquiry) MissingPrimaryFields() []PrimaryField {
	missing := make([]PrimaryField, 0, len(PrimaryFields))
	for _, f := range PrimaryFields {
		if e.primaryValue(f) == nil {
			missing = append(missing, f)
		}
	}
	return missing
}

// AllPrimaryPresent reports whether the lead is ready for handoff.
func (e *Enquiry) AllPrimaryPresent() bool {
	return len(e.MissingPrimaryFields()) == 0
}

// HasAnyPrimary reports whether at least one primary field is set.
func (e *Enquiry) HasAnyPrimary() bool {
	return len(e.MissingPrimaryFields()) < len(PrimaryFields)
}
