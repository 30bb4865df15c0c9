package enquiry

// Fields is a partial extraction from one message. A nil pointer means the
// extractor found nothing for that field; a non-nil pointer is an explicit value.
type Fields struct {
	ClientName            *string     `json:"clientName,omitempty"`
	Email                 *string     `json:"email,omitempty"`
	Phone                 *string     `json:"phone,omitempty"`
	Destination           *string     `json:"destination,omitempty"`
	DepartureCity         *string     `json:"departureCity,omitempty"`
	PreferredTravelDates  *string     `json:"preferredTravelDates,omitempty"`
	NumberOfDaysNights    *string     `json:"numberOfDaysNights,omitempty"`
	TravelType            *string     `json:"travelType,omitempty"`
	TotalTravellers       *Travellers `json:"totalTravellers,omitempty"`
	HotelCategory         *string     `json:"hotelCategory,omitempty"`
	RoomRequirement       *string     `json:"roomRequirement,omitempty"`
	MealPlan              *string     `json:"mealPlan,omitempty"`
	ServicesRequired      *Services   `json:"servicesRequired,omitempty"`
	ApproximateBudget     *string     `json:"approximateBudget,omitempty"`
	TripType              *string     `json:"tripType,omitempty"`
	SpecialRequirements   *string     `json:"specialRequirements,omitempty"`
	PassportDetails       *Passport   `json:"passportDetails,omitempty"`
	WantsCallback         *bool       `json:"wantsCallback,omitempty"`
	PreferredCallbackTime *string     `json:"preferredCallbackTime,omitempty"`
	Intent                Intent      `json:"intent,omitempty"`
}

// IsEmpty reports whether no field and no intent was extracted.
func (f Fields) IsEmpty() bool {
	return f == Fields{}
}

// Merge overlays override on base field by field. Fields absent from override
// keep the base value; the intent always comes from override.
func Merge(base, override Fields) Fields {
	out := base
	pick(&out.ClientName, override.ClientName)
	pick(&out.Email, override.Email)
	pick(&out.Phone, override.Phone)
	pick(&out.Destination, override.Destination)
	pick(&out.DepartureCity, override.DepartureCity)
	pick(&out.PreferredTravelDates, override.PreferredTravelDates)
	pick(&out.NumberOfDaysNights, override.NumberOfDaysNights)
	pick(&out.TravelType, override.TravelType)
	pick(&out.TotalTravellers, override.TotalTravellers)
	pick(&out.HotelCategory, override.HotelCategory)
	pick(&out.RoomRequirement, override.RoomRequirement)
	pick(&out.MealPlan, override.MealPlan)
	pick(&out.ServicesRequired, override.ServicesRequired)
	pick(&out.ApproximateBudget, override.ApproximateBudget)
	pick(&out.TripType, override.TripType)
	pick(&out.SpecialRequirements, override.SpecialRequirements)
	pick(&out.PassportDetails, override.PassportDetails)
	pick(&out.WantsCallback, override.WantsCallback)
	pick(&out.PreferredCallbackTime, override.PreferredCallbackTime)
	out.Intent = override.Intent
	return out
}

func pick[T any](dst **T, v *T) {
	if v != nil {
		*dst = v
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
