package extraction

import (
	"regexp"
	"strings"

	"github.com/wolfman30/travel-enquiry-bot/internal/enquiry"
	"github.com/wolfman30/travel-enquiry-bot/internal/phone"
)

var (
	hotelFive          = regexp.MustCompile(`(?i)5|\bfive\b|\bluxury\b`)
	hotelFour          = regexp.MustCompile(`(?i)4|\bfour\b`)
	hotelThree         = regexp.MustCompile(`(?i)3|\bthree\b`)
	hotelBudget        = regexp.MustCompile(`(?i)\b(?:budget|cheap|economy)\b`)
	noneWord           = regexp.MustCompile(`(?i)\b(?:none|no|nothing)\b`)
	budgetTripRequests = regexp.MustCompile(`(?is)\b(?:requirements?|special|preferences?)\b[\s:]*(.+?)(?:\n|passport|budget|$)`)
	callbackNo         = regexp.MustCompile(`(?i)option\s*1|\bcall\b|\btalk\b`)
	callbackYes        = regexp.MustCompile(`(?i)option\s*2|\bcallback\b|\bcall\s+back\b`)
	callbackTime       = regexp.MustCompile(`(?i)(\d{1,2}:\d{2}|morning|afternoon|evening|asap|now|today|tomorrow)`)
	internationalWords = regexp.MustCompile(`(?i)\b(?:international|abroad|foreign)\b`)
	domesticWords      = regexp.MustCompile(`(?i)\b(?:domestic|india|within)\b`)
)

// Extract is the stage-keyed dispatcher. With the comprehensive strategy, or
// for the greeting and travel_dates stages, the whole message is parsed;
// legacy narrow stages run only the parser for the question just asked.
func (h *Heuristic) Extract(stage enquiry.Stage, text string) enquiry.Fields {
	if h.strategy != enquiry.StrategyStaged {
		return h.Parse(text)
	}
	switch stage {
	case enquiry.StageDestination:
		return enquiry.Fields{Destination: ParseDestination(text)}
	case enquiry.StageHotelDetails:
		s := parseServices(text)
		return enquiry.Fields{MealPlan: ParseMealPlan(text), ServicesRequired: &s}
	case enquiry.StageBudgetTripType:
		return parseBudgetTripType(text)
	case enquiry.StageDaysNights:
		return enquiry.Fields{NumberOfDaysNights: trimmed(text)}
	case enquiry.StageTravellers, enquiry.StageNumberOfPeople:
		t := parseTravellers(text)
		return enquiry.Fields{TotalTravellers: &t}
	case enquiry.StageDepartureCity:
		return enquiry.Fields{DepartureCity: trimmed(text)}
	case enquiry.StageHotelCategory:
		return enquiry.Fields{HotelCategory: ParseHotelCategory(text)}
	case enquiry.StageRoomRequirement:
		return enquiry.Fields{RoomRequirement: trimmed(text)}
	case enquiry.StageMealPlan:
		return enquiry.Fields{MealPlan: ParseMealPlan(text)}
	case enquiry.StageServices:
		s := parseServices(text)
		return enquiry.Fields{ServicesRequired: &s}
	case enquiry.StageBudget:
		return enquiry.Fields{ApproximateBudget: trimmed(text)}
	case enquiry.StageTripType:
		return enquiry.Fields{TripType: parseTripType(text)}
	case enquiry.StageSpecialRequirements:
		return enquiry.Fields{SpecialRequirements: ParseSpecialRequirements(text)}
	case enquiry.StagePassportDetails:
		return enquiry.Fields{PassportDetails: parsePassport(text, true)}
	case enquiry.StageContactInfo:
		return h.ParseContactInfo(text)
	case enquiry.StageCallbackOrContact:
		wants, at := ParseCallbackPreference(text)
		f := enquiry.Fields{WantsCallback: &wants}
		if wants {
			f.PreferredCallbackTime = &at
		}
		return f
	default:
		return h.Parse(text)
	}
}

// ParseDestination answers "where would you like to go?".
func ParseDestination(text string) *string {
	switch {
	case internationalWords.MatchString(text):
		return enquiry.Ptr("International")
	case domesticWords.MatchString(text):
		return enquiry.Ptr("Domestic")
	}
	return trimmed(text)
}

// ParseHotelCategory answers the hotel category question. Budget keywords win
// over star tiers, and the tiers are tried from five down.
func ParseHotelCategory(text string) *string {
	switch {
	case hotelBudget.MatchString(text):
		return enquiry.Ptr("Budget")
	case hotelFive.MatchString(text):
		return enquiry.Ptr("5 Star")
	case hotelFour.MatchString(text):
		return enquiry.Ptr("4 Star")
	case hotelThree.MatchString(text):
		return enquiry.Ptr("3 Star")
	}
	return nil
}

// ParseMealPlan maps a meal plan answer, echoing the text when no keyword matches.
func ParseMealPlan(text string) *string {
	if plan := matchMealPlan(text); plan != nil {
		return plan
	}
	return trimmed(text)
}

// ParseSpecialRequirements maps none/no/nothing to "None".
func ParseSpecialRequirements(text string) *string {
	if noneWord.MatchString(text) {
		return enquiry.Ptr("None")
	}
	return trimmed(text)
}

func parseBudgetTripType(text string) enquiry.Fields {
	f := enquiry.Fields{
		ApproximateBudget: parseBudget(text),
		TripType:          parseTripType(text),
		PassportDetails:   parsePassport(text, false),
	}
	if strings.Contains(strings.ToLower(text), "none") {
		f.SpecialRequirements = enquiry.Ptr("None")
	} else if m := budgetTripRequests.FindStringSubmatch(text); m != nil {
		f.SpecialRequirements = trimmed(m[1])
	}
	return f
}

// ParseContactInfo reads email and phone, and takes the name from whatever
// precedes the first of them.
func (h *Heuristic) ParseContactInfo(text string) enquiry.Fields {
	var f enquiry.Fields
	emailLoc := emailPattern.FindStringSubmatchIndex(text)
	phoneLoc := phonePattern.FindStringSubmatchIndex(text)

	if emailLoc != nil {
		f.Email = enquiry.Ptr(text[emailLoc[2]:emailLoc[3]])
	}
	if phoneLoc != nil {
		f.Phone = enquiry.Ptr(phone.NormalizeE164(text[phoneLoc[2]:phoneLoc[3]], h.region))
	}

	nameText := text
	switch {
	case phoneLoc != nil:
		nameText = text[:phoneLoc[0]]
	case emailLoc != nil:
		nameText = text[:emailLoc[0]]
	}
	nameText = strings.NewReplacer(",", " ", "\n", " ").Replace(nameText)
	f.ClientName = trimmed(strings.Join(strings.Fields(nameText), " "))
	return f
}

// ParseCallbackPreference reads the answer to "call now or call back later?".
// It reports whether a callback is wanted and the preferred time.
func ParseCallbackPreference(text string) (bool, string) {
	switch {
	case callbackYes.MatchString(text):
		if m := callbackTime.FindString(text); m != "" {
			return true, m
		}
		return true, "ASAP"
	case callbackNo.MatchString(text):
		return false, ""
	}
	if t := strings.TrimSpace(text); t != "" {
		return true, t
	}
	return true, "ASAP"
}
