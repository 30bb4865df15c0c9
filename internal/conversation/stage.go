package conversation

import (
	"strings"

	"github.com/wolfman30/travel-enquiry-bot/internal/enquiry"
)

// PromptFields are the known details handed to reply generation so it does
// not ask for them again. Empty means unknown.
type PromptFields struct {
	ClientName    string
	Destination   string
	Dates         string
	Duration      string
	DepartureCity string
	TripType      string
	Budget        string
	TravelType    string
	International bool
}

// PromptContext selects the reply template and the details it may use.
type PromptContext struct {
	Stage   enquiry.Stage
	Fields  PromptFields
	Missing []enquiry.PrimaryField
}

var promptStages = map[enquiry.Stage]bool{
	enquiry.StageGreeting:          true,
	enquiry.StageTravelDates:       true,
	enquiry.StageContactInfo:       true,
	enquiry.StageCallbackOrContact: true,
	enquiry.StageCompleted:         true,
}

// NextPromptContext picks the prompt key for the enquiry's current stage.
// Question-by-question stages collapse onto travel_dates, which asks for
// everything still missing in one message.
func NextPromptContext(e *enquiry.Enquiry) PromptContext {
	if e == nil {
		return PromptContext{Stage: enquiry.StageGreeting}
	}
	stage := e.ConversationStage
	if !promptStages[stage] {
		if stage.Rank() < enquiry.StageContactInfo.Rank() {
			stage = enquiry.StageTravelDates
		} else {
			stage = enquiry.StageContactInfo
		}
	}
	if stage == enquiry.StageGreeting && e.HasAnyPrimary() {
		stage = enquiry.StageTravelDates
	}

	fields := PromptFields{
		ClientName:    value(e.ClientName),
		Destination:   value(e.Destination),
		Dates:         value(e.PreferredTravelDates),
		Duration:      value(e.NumberOfDaysNights),
		DepartureCity: value(e.DepartureCity),
		TripType:      value(e.TripType),
		Budget:        value(e.ApproximateBudget),
		TravelType:    value(e.TravelType),
	}
	for _, tag := range e.Tags {
		if tag == enquiry.TagInternational {
			fields.International = true
		}
	}

	return PromptContext{Stage: stage, Fields: fields, Missing: e.MissingPrimaryFields()}
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
