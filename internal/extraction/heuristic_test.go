package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/travel-enquiry-bot/internal/enquiry"
)

func str(p *string) string {
	if p == nil {
		return "<nil>"
	}
	return *p
}

func TestHeuristicParse_Places(t *testing.T) {
	h := NewHeuristic(enquiry.StrategyComprehensive)

	tests := []struct {
		name        string
		text        string
		wantCity    string
		wantDest    string
		wantDates   string
		wantDaysNts string
	}{
		{
			name:      "destination before origin",
			text:      "I want to go to Goa from Mumbai for 3 days",
			wantCity:  "Mumbai",
			wantDest:  "Domestic - Goa",
			wantDates: "<nil>", wantDaysNts: "<nil>",
		},
		{
			name:      "domestic pair",
			text:      "Mumbai to Delhi",
			wantCity:  "Mumbai",
			wantDest:  "Domestic - Delhi",
			wantDates: "<nil>", wantDaysNts: "<nil>",
		},
		{
			name:      "international pair",
			text:      "Mumbai to Dubai",
			wantCity:  "Mumbai",
			wantDest:  "International - Dubai",
			wantDates: "<nil>", wantDaysNts: "<nil>",
		},
		{
			name:      "name then pair",
			text:      "Krish, Mumbai to Delhi, 3 march to 10 march",
			wantCity:  "Mumbai",
			wantDest:  "Domestic - Delhi",
			wantDates: "<nil>", wantDaysNts: "<nil>",
		},
		{
			name:        "numeric date range and duration",
			text:        "Trip dates 12/03/2025 to 18/03/2025, 7 days 6 nights",
			wantCity:    "<nil>",
			wantDest:    "<nil>",
			wantDates:   "12/03/2025 to 18/03/2025",
			wantDaysNts: "7 days / 6 nights",
		},
		{
			name:        "loose date with month",
			text:        "planning to travel on 15th March",
			wantCity:    "<nil>",
			wantDest:    "<nil>",
			wantDates:   "15th March",
			wantDaysNts: "<nil>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := h.Parse(tt.text)
			assert.Equal(t, tt.wantCity, str(f.DepartureCity), "departure city")
			assert.Equal(t, tt.wantDest, str(f.Destination), "destination")
			assert.Equal(t, tt.wantDates, str(f.PreferredTravelDates), "dates")
			assert.Equal(t, tt.wantDaysNts, str(f.NumberOfDaysNights), "days/nights")
		})
	}
}

func TestHeuristicParse_SingleDestinationIsUntagged(t *testing.T) {
	f := NewHeuristic(enquiry.StrategyComprehensive).Parse("Hi, I am Krish and I want to visit Dubai")
	assert.Equal(t, "Dubai", str(f.Destination))
	assert.Equal(t, "Krish", str(f.ClientName))
	assert.Nil(t, f.DepartureCity)
}

func TestHeuristicParse_Budget(t *testing.T) {
	h := NewHeuristic(enquiry.StrategyComprehensive)

	tests := []struct {
		text string
		want string
	}{
		{"budget 50000 INR", "50000 INR"},
		{"Budget is 20k", "<nil>"},
		{"around Rs. 1,50,000 for everyone", "150000 INR"},
		{"we can spend 75000 rupees", "75000 INR"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			f := h.Parse(tt.text)
			assert.Equal(t, tt.want, str(f.ApproximateBudget))
			assert.Nil(t, f.HotelCategory, "an amount after budget is not a hotel category")
		})
	}
}

func TestHeuristicParse_Travellers(t *testing.T) {
	f := NewHeuristic(enquiry.StrategyComprehensive).Parse("2 adults and 1 child aged 5 years")
	require.NotNil(t, f.TotalTravellers)
	assert.Equal(t, 2, f.TotalTravellers.Adults)
	require.Len(t, f.TotalTravellers.Children, 1)
	assert.Equal(t, 5, f.TotalTravellers.Children[0].Age)
	require.NotNil(t, f.TotalTravellers.PeopleCount())
	assert.Equal(t, 3, *f.TotalTravellers.PeopleCount())

	none := NewHeuristic(enquiry.StrategyComprehensive).Parse("hello there")
	assert.Nil(t, none.TotalTravellers)
}

func TestHeuristicParse_HotelMealServices(t *testing.T) {
	h := NewHeuristic(enquiry.StrategyComprehensive)

	tests := []struct {
		text     string
		category string
		meal     string
	}{
		{"5 star hotel with breakfast", "5 Star", "Breakfast (CP)"},
		{"a cheap place, room only", "Budget", "Room Only"},
		{"something luxury, all inclusive", "5 Star", "All Inclusive"},
		{"4-star and half board", "4 Star", "Half Board / MAP"},
		{"three star stay", "3 Star", "<nil>"},
		{"hotel category: 4", "4 Star", "<nil>"},
		{"Category 3, breakfast please", "3 Star", "Breakfast (CP)"},
		{"hotel - five", "5 Star", "<nil>"},
		{"5 days 4 nights in Goa", "<nil>", "<nil>"},
		{"hotel: 4 rooms", "<nil>", "<nil>"},
		{"budget is 20000 for two", "<nil>", "<nil>"},
		{"on a budget, 3 star is fine", "Budget", "<nil>"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			f := h.Parse(tt.text)
			assert.Equal(t, tt.category, str(f.HotelCategory))
			assert.Equal(t, tt.meal, str(f.MealPlan))
		})
	}

	f := h.Parse("need flights and hotels with visa")
	require.NotNil(t, f.ServicesRequired)
	assert.Equal(t, enquiry.Services{Flights: true, Hotels: true, Visa: true}, *f.ServicesRequired)

	all := h.Parse("please arrange everything")
	require.NotNil(t, all.ServicesRequired)
	assert.True(t, all.ServicesRequired.TravelInsurance)
	assert.True(t, all.ServicesRequired.Sightseeing)

	assert.Nil(t, h.Parse("I want to go to Goa").ServicesRequired)
}

func TestHeuristicParse_ContactAndMode(t *testing.T) {
	f := NewHeuristic(enquiry.StrategyComprehensive).Parse("My name is Asha, reach me at asha@example.com or 9876543210, prefer train")
	assert.Equal(t, "Asha", str(f.ClientName))
	assert.Equal(t, "asha@example.com", str(f.Email))
	assert.Equal(t, "+919876543210", str(f.Phone))
	assert.Equal(t, "Train", str(f.TravelType))
}

func TestParseTravelModePriority(t *testing.T) {
	assert.Equal(t, "Flight", str(parseTravelMode("by train or flight")))
	assert.Equal(t, "Car", str(parseTravelMode("self drive car")))
	assert.Nil(t, parseTravelMode("no preference"))
}

func TestParseTripType(t *testing.T) {
	assert.Equal(t, "Honeymoon", str(parseTripType("our honeymoon trip")))
	assert.Equal(t, "Family", str(parseTripType("family holiday with a group of cousins")))
	assert.Nil(t, parseTripType("just me"))
}

func TestParseRequirements(t *testing.T) {
	assert.Equal(t, "wheelchair access", str(parseRequirements("special requirements: wheelchair access")))
	assert.Equal(t, "None", str(parseRequirements("no special requirements")))
	assert.Equal(t, "None", str(parseRequirements("requirements: none")))
	assert.Nil(t, parseRequirements("just a quiet room"))
}

func TestParsePassport(t *testing.T) {
	p := parsePassport("passport number A1234567 expiry 12/05/2030", false)
	require.NotNil(t, p)
	assert.True(t, p.HasPassport)
	assert.Equal(t, "A1234567", str(p.PassportNumber))
	assert.Equal(t, "12/05/2030", str(p.ExpiryDate))

	neg := parsePassport("I don't have a passport yet", false)
	require.NotNil(t, neg)
	assert.False(t, neg.HasPassport)

	// A number wins over a stray negation word.
	withNo := parsePassport("no worries, passport A7654321", false)
	require.NotNil(t, withNo)
	assert.True(t, withNo.HasPassport)

	yes := parsePassport("yes I have a passport", false)
	require.NotNil(t, yes)
	assert.Nil(t, yes.PassportNumber)

	// Only a direct answer to the passport question falls back to the raw text.
	inline := NewHeuristic(enquiry.StrategyComprehensive).Parse("passport yes")
	require.NotNil(t, inline.PassportDetails)
	assert.True(t, inline.PassportDetails.HasPassport)
	assert.Nil(t, inline.PassportDetails.PassportNumber)

	raw := parsePassport("passport: applied, waiting", true)
	require.NotNil(t, raw)
	assert.Equal(t, "passport: applied, waiting", str(raw.PassportNumber))

	assert.Nil(t, parsePassport("no documents", false))
}

func TestParseDatesLooseForm(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"we fly on 15th March", "15th March"},
		{"leaving from next week", "next week"},
		{"dates: 10/12/2025 to 15/12/2025", "10/12/2025 to 15/12/2025"},
		{"we are on the way to Goa", "<nil>"},
		{"from Mumbai please", "<nil>"},
		{"between us two", "<nil>"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, str(parseDates(tt.text)))
		})
	}
}

func TestParseSelfIntroductionRejectsFillers(t *testing.T) {
	assert.Nil(t, parseSelfIntroduction("I am planning a trip"))
	assert.Nil(t, parseSelfIntroduction("I'm looking for a package"))
	assert.Equal(t, "Rahul Verma", str(parseSelfIntroduction("I'm Rahul Verma")))
}
