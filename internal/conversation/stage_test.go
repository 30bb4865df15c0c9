package conversation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wolfman30/travel-enquiry-bot/internal/enquiry"
)

func stagedEnquiry(stage enquiry.Stage) *enquiry.Enquiry {
	e := enquiry.New("enq-1", "+919876543210", time.Now())
	e.ConversationStage = stage
	return e
}

func TestNextPromptContext_Stages(t *testing.T) {
	tests := []struct {
		stage enquiry.Stage
		want  enquiry.Stage
	}{
		{enquiry.StageGreeting, enquiry.StageGreeting},
		{enquiry.StageTravelDates, enquiry.StageTravelDates},
		{enquiry.StageDestination, enquiry.StageTravelDates},
		{enquiry.StageHotelCategory, enquiry.StageTravelDates},
		{enquiry.StagePassportDetails, enquiry.StageTravelDates},
		{enquiry.StageContactInfo, enquiry.StageContactInfo},
		{enquiry.StageCallbackOrContact, enquiry.StageCallbackOrContact},
		{enquiry.StageCompleted, enquiry.StageCompleted},
	}
	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			assert.Equal(t, tt.want, NextPromptContext(stagedEnquiry(tt.stage)).Stage)
		})
	}
}

func TestNextPromptContext_GreetingWithDetailsMovesOn(t *testing.T) {
	e := stagedEnquiry(enquiry.StageGreeting)
	e.Destination = enquiry.Ptr("Bali")
	e.Tags = []string{enquiry.TagInternational}

	pc := NextPromptContext(e)
	assert.Equal(t, enquiry.StageTravelDates, pc.Stage)
	assert.Equal(t, "Bali", pc.Fields.Destination)
	assert.True(t, pc.Fields.International)
	assert.NotContains(t, pc.Missing, enquiry.FieldDestination)
}

func TestNextPromptContext_NilEnquiry(t *testing.T) {
	assert.Equal(t, enquiry.StageGreeting, NextPromptContext(nil).Stage)
}

func TestSystemPrompt(t *testing.T) {
	travel := SystemPrompt(PromptContext{
		Stage:   enquiry.StageTravelDates,
		Fields:  PromptFields{Destination: "Bali", International: true},
		Missing: []enquiry.PrimaryField{enquiry.FieldClientName, enquiry.FieldApproximateBudget},
	})
	assert.Contains(t, travel, "The user is planning a trip to Bali.")
	assert.Contains(t, travel, "valid passport")
	assert.Contains(t, travel, "Still missing: name, budget")

	domestic := SystemPrompt(PromptContext{Stage: enquiry.StageTravelDates})
	assert.Contains(t, domestic, "The user is planning a trip.")
	assert.NotContains(t, domestic, "passport")
	assert.Contains(t, domestic, "Still missing: nothing essential")

	callback := SystemPrompt(PromptContext{Stage: enquiry.StageCallbackOrContact, Fields: PromptFields{ClientName: "Krish"}})
	assert.Contains(t, callback, "Thank Krish")
	assert.Contains(t, callback, ExecutivePhone)

	done := SystemPrompt(PromptContext{Stage: enquiry.StageCompleted, Fields: PromptFields{TripType: "Honeymoon"}})
	assert.Contains(t, done, "your honeymoon plans")

	unknown := SystemPrompt(PromptContext{Stage: enquiry.Stage("mystery")})
	assert.Equal(t, greetingTemplate, unknown)
	assert.NotContains(t, unknown, "%!")
}

func TestConversationContext(t *testing.T) {
	assert.Empty(t, ConversationContext(PromptFields{}))

	got := ConversationContext(PromptFields{Destination: "Goa", Budget: "50000", ClientName: "Krish"})
	assert.True(t, strings.HasPrefix(got, "COLLECTED INFORMATION:\n"))
	assert.Contains(t, got, "Destination: Goa\nBudget: 50000\nClient Name: Krish")
}
