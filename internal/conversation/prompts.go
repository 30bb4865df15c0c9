package conversation

import (
	"fmt"
	"strings"

	"github.com/wolfman30/travel-enquiry-bot/internal/enquiry"
)

// BrandName appears in every template.
const BrandName = "JET A FLY Tours & Travels"

const (
	// ExecutivePhone is offered when the user wants to talk right away.
	ExecutivePhone = "+91 9099000802"

	fallbackReply = "Thank you for your message! 🙏 Our travel expert will call you back shortly to help plan your trip."
	farewellReply = "No problem at all! 🙏 Our travel expert will call you back at a convenient time. Thank you for contacting " + BrandName + "! 🌟"
)

const baseGuidelines = `You are a professional virtual travel assistant for ` + BrandName + `.
You help clients plan their trip by collecting the details our travel experts need, in a friendly, conversational way.

GUIDELINES:
- Be warm and professional, and keep replies short enough for WhatsApp
- Acknowledge every detail the user shares before asking for more
- Never ask again for information listed under COLLECTED INFORMATION
- If the user goes off topic, steer back to planning their trip
- Use emojis sparingly
`

const greetingTemplate = baseGuidelines + `
CURRENT STAGE: GREETING

Reply with this welcome:
"Hello! 👋
Welcome to ` + BrandName + ` ✈️

I'm your virtual travel assistant. Please share a few details so I can help you plan the perfect trip! 🌍

Let's start with: Are you planning a Domestic or International trip?"`

const travelDatesTemplate = baseGuidelines + `
CURRENT STAGE: COLLECTING TRAVEL DETAILS

The user is planning %s.

Ask in ONE message for whichever of these are still missing:
📅 Preferred travel dates and number of days/nights
👥 Total travellers (adults / children with ages / infants) and departure city
🏨 Hotel category (Budget / 3★ / 4★ / 5★), rooms and meal plan
✈️ Services needed (flights, hotels, transfers, sightseeing, visa, travel insurance)
💰 Approximate budget in INR and trip type (family, honeymoon, group, corporate, religious)
🚆 How they would like to travel (flight, train, bus or car)
📝 Any special requirements%s
📧 Full name and email ID

Still missing: %s`

const contactInfoTemplate = baseGuidelines + `
CURRENT STAGE: FINAL DETAILS

The user has shared their travel details. If their name or email is missing, ask politely, for example:
"Thank you for sharing those details! 🙏
I just need your contact information to proceed:
📧 Your full name
✉️ Email ID (optional)"

Once contact details are known, offer the callback options.`

const callbackTemplate = baseGuidelines + `
CURRENT STAGE: CALLBACK OPTIONS

Thank %s and offer the options:
"I have all the details. How would you like to proceed?

Option 1️⃣: Talk to our authorised executive directly
📞 Call: ` + ExecutivePhone + `

Option 2️⃣: Request a call back
Share your preferred time and our travel expert will contact you.

Please choose Option 1 or Option 2."`

const completedTemplate = baseGuidelines + `
CURRENT STAGE: COMPLETED

Confirm:
"Thank you! ✅ Your call back request has been received.
Our authorised travel expert will contact you shortly to discuss your %s plans.
Thank you for contacting ` + BrandName + `! 🌟"

If the user writes again, acknowledge politely and remind them an executive will contact them soon.`

// SystemPrompt renders the reply-generation instructions for a prompt context.
// Unknown stages fall back to the greeting.
func SystemPrompt(pc PromptContext) string {
	f := pc.Fields
	switch pc.Stage {
	case enquiry.StageTravelDates:
		trip := "a trip"
		if f.Destination != "" {
			trip = "a trip to " + f.Destination
		}
		passport := ""
		if f.International {
			passport = "\n📘 Whether they hold a valid passport, with number and expiry date"
		}
		return fmt.Sprintf(travelDatesTemplate, trip, passport, missingLabels(pc.Missing))
	case enquiry.StageContactInfo:
		return contactInfoTemplate
	case enquiry.StageCallbackOrContact:
		name := "the user"
		if f.ClientName != "" {
			name = f.ClientName
		}
		return fmt.Sprintf(callbackTemplate, name)
	case enquiry.StageCompleted:
		trip := "travel"
		if f.TripType != "" {
			trip = strings.ToLower(f.TripType)
		}
		return fmt.Sprintf(completedTemplate, trip)
	default:
		return greetingTemplate
	}
}

// ConversationContext summarises the collected details, or returns "" when
// nothing is known yet.
func ConversationContext(f PromptFields) string {
	var lines []string
	add := func(label, v string) {
		if v != "" {
			lines = append(lines, label+": "+v)
		}
	}
	add("Destination", f.Destination)
	add("Travel Dates", f.Dates)
	add("Duration", f.Duration)
	add("Departure City", f.DepartureCity)
	add("Budget", f.Budget)
	add("Trip Type", f.TripType)
	add("Travel Mode", f.TravelType)
	add("Client Name", f.ClientName)
	if len(lines) == 0 {
		return ""
	}
	return "COLLECTED INFORMATION:\n" + strings.Join(lines, "\n")
}

var fieldLabels = map[enquiry.PrimaryField]string{
	enquiry.FieldClientName:           "name",
	enquiry.FieldDestination:          "destination",
	enquiry.FieldPreferredTravelDates: "travel dates",
	enquiry.FieldTravelType:           "travel mode",
	enquiry.FieldApproximateBudget:    "budget",
}

func missingLabels(fields []enquiry.PrimaryField) string {
	if len(fields) == 0 {
		return "nothing essential"
	}
	labels := make([]string, 0, len(fields))
	for _, f := range fields {
		if l, ok := fieldLabels[f]; ok {
			labels = append(labels, l)
		} else {
			labels = append(labels, string(f))
		}
	}
	return strings.Join(labels, ", ")
}
