package enquiry

import "strings"

// Stage labels which information the conversation is still soliciting.
type Stage string

const (
	StageGreeting            Stage = "greeting"
	StageDestination         Stage = "destination"
	StageTravelDates         Stage = "travel_dates"
	StageDaysNights          Stage = "days_nights"
	StageTravellers          Stage = "travellers"
	StageDepartureCity       Stage = "departure_city"
	StageHotelDetails        Stage = "hotel_details"
	StageHotelCategory       Stage = "hotel_category"
	StageRoomRequirement     Stage = "room_requirement"
	StageMealPlan            Stage = "meal_plan"
	StageServices            Stage = "services"
	StageBudgetTripType      Stage = "budget_triptype"
	StageNumberOfPeople      Stage = "number_of_people"
	StageBudget              Stage = "budget"
	StageTripType            Stage = "trip_type"
	StageSpecialRequirements Stage = "special_requirements"
	StagePassportDetails     Stage = "passport_details"
	StageContactInfo         Stage = "contact_info"
	StageCallbackOrContact   Stage = "callback_or_contact"
	StageCompleted           Stage = "completed"
)

var stageSequence = []Stage{
	StageGreeting,
	StageDestination,
	StageTravelDates,
	StageDaysNights,
	StageTravellers,
	StageDepartureCity,
	StageHotelDetails,
	StageHotelCategory,
	StageRoomRequirement,
	StageMealPlan,
	StageServices,
	StageBudgetTripType,
	StageNumberOfPeople,
	StageBudget,
	StageTripType,
	StageSpecialRequirements,
	StagePassportDetails,
	StageContactInfo,
	StageCallbackOrContact,
	StageCompleted,
}

var stageRank = func() map[Stage]int {
	m := make(map[Stage]int, len(stageSequence))
	for i, s := range stageSequence {
		m[s] = i
	}
	return m
}()

// Rank is the position of s in the stage sequence; unknown stages rank first.
func (s Stage) Rank() int {
	return stageRank[s]
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := stageRank[s]
	return ok
}

// Advance returns target unless it would move the conversation backwards.
func Advance(current, target Stage) Stage {
	if target.Rank() < current.Rank() {
		return current
	}
	return target
}

// LegacyNextStage is the one-question-per-turn transition table: each narrow
// stage moves to the next question once it has been answered.
func LegacyNextStage(current Stage, e *Enquiry) Stage {
	switch current {
	case StageGreeting, StageDestination:
		return StageTravelDates
	case StageTravelDates:
		return StageHotelDetails
	case StageHotelDetails:
		return StageBudgetTripType
	case StageBudgetTripType:
		return StageContactInfo
	case StageDaysNights:
		return StageTravellers
	case StageTravellers:
		return StageDepartureCity
	case StageDepartureCity:
		return StageHotelCategory
	case StageHotelCategory:
		return StageRoomRequirement
	case StageRoomRequirement:
		return StageMealPlan
	case StageMealPlan:
		return StageServices
	case StageServices:
		return StageBudget
	case StageBudget:
		return StageTripType
	case StageTripType:
		return StageSpecialRequirements
	case StageSpecialRequirements:
		if strings.Contains(strings.ToLower(deref(e.Destination)), TagInternational) {
			return StagePassportDetails
		}
		return StageContactInfo
	case StagePassportDetails:
		return StageContactInfo
	case StageContactInfo:
		return StageCallbackOrContact
	case StageCallbackOrContact, StageCompleted:
		return StageCompleted
	default:
		return current
	}
}
