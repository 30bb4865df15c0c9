// Package extraction turns free-text WhatsApp messages into partial enquiry
// fields, either with regular expressions or with an LLM.
package extraction

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/wolfman30/travel-enquiry-bot/internal/enquiry"
	"github.com/wolfman30/travel-enquiry-bot/internal/phone"
)

// internationalDestinations marks a destination as International when any
// entry is a substring of it.
var internationalDestinations = []string{
	"dubai", "singapore", "thailand", "bali", "maldives", "paris",
	"london", "new york", "malaysia", "sri lanka", "nepal", "bhutan",
}

var (
	// Explicit "from X to Y" and "to X from Y" forms are tried before the
	// looser origin-first patterns.
	forwardCityPair = regexp.MustCompile(`(?i)\bfrom\s+([A-Za-z]+(?:\s+[A-Za-z]+)??)\s+to\s+([A-Za-z]+(?:\s+[A-Za-z]+)?)`)
	reverseCityPair = regexp.MustCompile(`(?i)\bto\s+([A-Za-z]+(?:\s+[A-Za-z]+)??)\s+from\s+([A-Za-z]+(?:\s+[A-Za-z]+)?)`)
	cityPairs       = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:from\s+)?([A-Za-z\s]+?)\s+to\s+([A-Za-z\s]+?)(?:\s|,|\.|\n|$)`),
		regexp.MustCompile(`(?i)(?:book|trip|travel).*?(?:from\s+)?([A-Za-z\s]+?)\s+to\s+([A-Za-z\s]+?)(?:\s|,|\.|\n|$)`),
	}
	destinationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:going to|travelling to|traveling to|visit|to)\s+(?:(?:go|travel|visit|fly)\s+(?:to\s+)?)?([A-Za-z]+)`),
		regexp.MustCompile(`(?i)\b(?:destination|place)[\s:]+([A-Za-z\s]+?)(?:\s|,|\.|\n|$)`),
	}
	departurePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:departure|leaving from|from|city)\b[\s:]*([A-Za-z\s]+?)(?:\n|,|\d|$)`),
		regexp.MustCompile(`(?i)\bdeparting from[\s:]*([A-Za-z\s]+?)(?:\n|,|\d|$)`),
	}
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:dates?|travel|from|between)[\s:]*([0-9]{1,2}[-/][0-9]{1,2}[-/][0-9]{2,4}.*?to.*?[0-9]{1,2}[-/][0-9]{1,2}[-/][0-9]{2,4})`),
		regexp.MustCompile(`(?i)([0-9]{1,2}[-/][0-9]{1,2}[-/][0-9]{2,4}.*?to.*?[0-9]{1,2}[-/][0-9]{1,2}[-/][0-9]{2,4})`),
		regexp.MustCompile(`(?i)\b(?:dates?\b[\s:]*|travel\s*:\s*)(.+?)(?:\n|$)`),
	}
	dateHint   = regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\b|\d{1,2}[-/]\d{1,2}|\b(?:today|tomorrow|next|weekend|week|month|diwali|christmas|holidays?)\b`)
	looseDates = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:on|between|date|dates|travel date|journey)\b\s*[:\-]?\s*([A-Za-z0-9,\-/ ]{4,50})`),
		regexp.MustCompile(`(?i)\bfrom\b\s*[:\-]?\s*([A-Za-z0-9,\-/ ]{4,50})`),
	}
	daysNights      = regexp.MustCompile(`(?i)(\d+)\s*days?\s*[/\-]?\s*(\d+)\s*nights?`)
	adultCount      = regexp.MustCompile(`(?i)(\d+)\s*(?:adults?|persons?|people|pax)\b`)
	childWithAge    = regexp.MustCompile(`(?i)(\d+)\s*(?:child|children|kids?)\b.*?(\d+)\s*(?:years?|yrs?)\b`)
	childCount      = regexp.MustCompile(`(?i)(\d+)\s*(?:child|children|kids?)\b`)
	infantCount     = regexp.MustCompile(`(?i)(\d+)\s*(?:infants?|baby|babies)\b`)
	roomPattern     = regexp.MustCompile(`(?i)(\d+)\s*(?:rooms?|double|single)\b`)
	mealPlanGate    = regexp.MustCompile(`(?i)(all inclusive|all-inclusive|full board|american plan|half board|modified american|breakfast|continental plan|room only|no meal|meal plan)`)
	serviceGate     = regexp.MustCompile(`(?i)\b(flights?|air|airfare|tickets?|hotels?|accommodation|stay|transfers?|transport|cabs?|sightseeing|tours?|activit(?:y|ies)|visa|insurance|all|everything|complete)\b`)
	starContext     = regexp.MustCompile(`(?i)\b(5|five|4|four|3|three)\s*-?\s*stars?\b`)
	labelledTier    = regexp.MustCompile(`(?i)\b(?:(?:hotel\s+)?category\s*[:\-]?|hotel\s*[:\-])\s*(5|five|4|four|3|three)\b(\s*(?:days?|nights?|rooms?))?`)
	luxuryWord      = regexp.MustCompile(`(?i)\bluxury\b`)
	budgetHotelWord = regexp.MustCompile(`(?i)\b(cheap|economy)\b`)
	budgetWord      = regexp.MustCompile(`(?i)\bbudget\b[\s:]*(?:is\s+)?(?:rs\b\.?|inr\b|₹)?\s*(\d)?`)
	budgetPatterns  = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:budget|price|cost)[\s:]*(?:rs\b\.?|inr\b|₹)?\s*(\d+[,\d]*)`),
		regexp.MustCompile(`(?i)(?:\brs\b\.?|\binr\b|₹)\s*(\d+[,\d]*)`),
		regexp.MustCompile(`(?i)(\d+[,\d]*)\s*(?:rs\b\.?|inr\b|rupees\b)`),
	}
	requirementsPattern = regexp.MustCompile(`(?is)\b(?:special\s+requirements?|special\s+requests?|requirements?|preferences?|special)\b[\s:]*(.+?)(?:\n\n|\d+\.|$)`)
	noRequirements      = regexp.MustCompile(`(?i)\bno\s+(?:special\s+)?(?:requirements?|requests?|preferences?)\b`)
	requirementsNone    = regexp.MustCompile(`(?i)\b(?:none|nothing|no\s+(?:special\s+)?(?:requirements?|preferences?))\b`)
	noneAnswer          = regexp.MustCompile(`(?i)^(?:none|no|nothing|nil|na)\b`)
	passportNumber      = regexp.MustCompile(`([A-Z]\d{7})`)
	passportExpiry      = regexp.MustCompile(`(\d{1,2}[-/]\d{1,2}[-/]\d{2,4})`)
	passportNegation    = regexp.MustCompile(`(?i)\b(?:no|don'?t have|do not have|not have)\b`)
	selfIntroduction    = regexp.MustCompile(`(?i)(?:\bmy name is|\bi am|\bi'm|\bname\s*[:\-])\s*([A-Za-z][A-Za-z ]{1,40})`)
	nameConnector       = regexp.MustCompile(`(?i)\s+(?:and|from|i|my|we|here|want|wants|planning|looking|travelling|traveling|going|to)\b.*$`)
	emailPattern        = regexp.MustCompile(`([a-zA-Z0-9._-]+@[a-zA-Z0-9._-]+\.[a-zA-Z0-9_-]+)`)
	phonePattern        = regexp.MustCompile(`(\+?\d{1,3}[-.\s]?\d{10}|\d{10})`)
	travelModes         = []struct {
		mode    string
		pattern *regexp.Regexp
	}{
		{"Flight", regexp.MustCompile(`(?i)\b(?:flights?|plane|air|airways|fly|flying)\b`)},
		{"Train", regexp.MustCompile(`(?i)\b(?:trains?|rail|railway)\b`)},
		{"Bus", regexp.MustCompile(`(?i)\b(?:bus|buses|coach)\b`)},
		{"Car", regexp.MustCompile(`(?i)\b(?:car|cab|cabs|taxi)\b`)},
	}
)

// Words that follow "i am" but do not start a name.
var notNames = map[string]struct{}{
	"planning": {}, "looking": {}, "interested": {}, "going": {}, "travelling": {},
	"traveling": {}, "not": {}, "from": {}, "a": {}, "an": {}, "the": {}, "in": {},
	"at": {}, "fine": {}, "good": {}, "ok": {}, "okay": {}, "here": {}, "thinking": {},
}

// Words that follow "to" but are verbs, not places.
var notPlaces = map[string]struct{}{
	"go": {}, "travel": {}, "visit": {}, "book": {}, "plan": {}, "see": {},
	"fly": {}, "the": {}, "a": {}, "be": {}, "know": {}, "explore": {}, "me": {},
}

// Heuristic is the pattern-based extractor.
type Heuristic struct {
	strategy enquiry.Strategy
	region   string
}

// HeuristicOption configures a Heuristic.
type HeuristicOption func(*Heuristic)

// WithPhoneRegion sets the region used to normalise national phone numbers.
func WithPhoneRegion(region string) HeuristicOption {
	return func(h *Heuristic) {
		if region != "" {
			h.region = region
		}
	}
}

// NewHeuristic creates a pattern-based extractor.
func NewHeuristic(strategy enquiry.Strategy, opts ...HeuristicOption) *Heuristic {
	h := &Heuristic{strategy: strategy, region: phone.DefaultRegion}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Parse runs every sub-extraction against text. Each field list is tried in
// priority order and the first match wins.
func (h *Heuristic) Parse(text string) enquiry.Fields {
	var f enquiry.Fields

	f.DepartureCity, f.Destination = parseCityPair(text)
	if f.Destination == nil {
		f.Destination = parseSingleDestination(text)
	}
	f.PreferredTravelDates = parseDates(text)
	if m := daysNights.FindStringSubmatch(text); m != nil {
		f.NumberOfDaysNights = enquiry.Ptr(m[1] + " days / " + m[2] + " nights")
	}
	if t := parseTravellers(text); t.PeopleCount() != nil {
		f.TotalTravellers = &t
	}
	if f.DepartureCity == nil {
		f.DepartureCity = firstCapture(departurePatterns, text)
	}
	f.HotelCategory = comprehensiveHotelCategory(text)
	if m := roomPattern.FindString(text); m != "" {
		f.RoomRequirement = enquiry.Ptr(strings.TrimSpace(m))
	}
	if mealPlanGate.MatchString(text) {
		f.MealPlan = matchMealPlan(text)
	}
	if serviceGate.MatchString(text) {
		s := parseServices(text)
		f.ServicesRequired = &s
	}
	f.ApproximateBudget = parseBudget(text)
	f.TripType = parseTripType(text)
	f.SpecialRequirements = parseRequirements(text)
	f.PassportDetails = parsePassport(text, false)
	f.ClientName = parseSelfIntroduction(text)
	if m := emailPattern.FindStringSubmatch(text); m != nil {
		f.Email = enquiry.Ptr(m[1])
	}
	if m := phonePattern.FindStringSubmatch(text); m != nil {
		f.Phone = enquiry.Ptr(phone.NormalizeE164(m[1], h.region))
	}
	f.TravelType = parseTravelMode(text)
	return f
}

func parseCityPair(text string) (*string, *string) {
	if m := forwardCityPair.FindStringSubmatch(text); m != nil {
		if origin, dest := cleanPlace(m[1]), cleanPlace(m[2]); plausiblePair(origin, dest) {
			return &origin, enquiry.Ptr(tagDestination(dest))
		}
	}
	if m := reverseCityPair.FindStringSubmatch(text); m != nil {
		if dest, origin := cleanPlace(m[1]), cleanPlace(m[2]); plausiblePair(origin, dest) {
			return &origin, enquiry.Ptr(tagDestination(dest))
		}
	}
	for _, re := range cityPairs {
		m := findFromWordStarts(re, text, func(m []string) bool {
			return plausiblePair(cleanPlace(m[1]), cleanPlace(m[2]))
		})
		if m != nil {
			origin := cleanPlace(m[1])
			return &origin, enquiry.Ptr(tagDestination(cleanPlace(m[2])))
		}
	}
	return nil, nil
}

// findFromWordStarts returns the first match of re, retrying from each later
// word start while accept rejects the candidate.
func findFromWordStarts(re *regexp.Regexp, text string, accept func([]string) bool) []string {
	for off := 0; off < len(text); {
		loc := re.FindStringSubmatchIndex(text[off:])
		if loc == nil {
			return nil
		}
		m := make([]string, len(loc)/2)
		for i := range m {
			if loc[2*i] >= 0 {
				m[i] = text[off+loc[2*i] : off+loc[2*i+1]]
			}
		}
		if accept(m) {
			return m
		}
		off = nextWordStart(text, off+loc[0])
	}
	return nil
}

func nextWordStart(text string, i int) int {
	for i < len(text) && isLetter(text[i]) {
		i++
	}
	for i < len(text) && !isLetter(text[i]) {
		i++
	}
	return i
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Trailing words that end a place name in free text.
var placeStopWords = map[string]struct{}{
	"for": {}, "on": {}, "in": {}, "with": {}, "next": {}, "this": {}, "and": {},
	"from": {}, "by": {}, "at": {}, "during": {}, "around": {}, "via": {}, "please": {},
}

// Words that cannot end a departure city.
var notOrigins = map[string]struct{}{
	"want": {}, "wants": {}, "like": {}, "i": {}, "we": {}, "need": {}, "planning": {},
	"going": {}, "trying": {}, "have": {}, "am": {}, "is": {}, "are": {}, "us": {},
	"back": {}, "how": {}, "way": {}, "travelling": {}, "traveling": {},
}

// cleanPlace trims a captured place to at most its last "from" segment and
// drops trailing connector words.
func cleanPlace(s string) string {
	if i := strings.LastIndex(strings.ToLower(s), "from "); i >= 0 {
		s = s[i+len("from "):]
	}
	words := strings.Fields(s)
	for len(words) > 0 {
		if _, stop := placeStopWords[strings.ToLower(words[len(words)-1])]; !stop {
			break
		}
		words = words[:len(words)-1]
	}
	if len(words) > 3 {
		words = words[len(words)-2:]
	}
	return strings.Join(words, " ")
}

func plausiblePair(origin, dest string) bool {
	if origin == "" || dest == "" {
		return false
	}
	if isNotPlace(strings.Fields(dest)[0]) {
		return false
	}
	originWords := strings.Fields(strings.ToLower(origin))
	last := originWords[len(originWords)-1]
	if _, bad := notOrigins[last]; bad {
		return false
	}
	return !isNotPlace(last)
}

func tagDestination(dest string) string {
	lower := strings.ToLower(dest)
	for _, keyword := range internationalDestinations {
		if strings.Contains(lower, keyword) {
			return "International - " + dest
		}
	}
	return "Domestic - " + dest
}

// labelDestination tags dest unless it already carries a region prefix.
func labelDestination(dest *string) *string {
	if dest == nil {
		return nil
	}
	lower := strings.ToLower(*dest)
	if strings.HasPrefix(lower, "international - ") || strings.HasPrefix(lower, "domestic - ") {
		return dest
	}
	return enquiry.Ptr(tagDestination(*dest))
}

func parseSingleDestination(text string) *string {
	for _, re := range destinationPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if _, stop := placeStopWords[strings.ToLower(m[1])]; stop || isNotPlace(m[1]) {
				continue
			}
			if v := trimmed(m[1]); v != nil {
				return v
			}
		}
	}
	return nil
}

func isNotPlace(s string) bool {
	_, ok := notPlaces[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

func parseDates(text string) *string {
	if v := firstCapture(datePatterns, text); v != nil {
		return v
	}
	// The loose form only counts when the capture looks like a date.
	for _, re := range looseDates {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if dateHint.MatchString(m[1]) {
				return trimmed(m[1])
			}
		}
	}
	return nil
}

func parseTravellers(text string) enquiry.Travellers {
	var t enquiry.Travellers
	if m := adultCount.FindStringSubmatch(text); m != nil {
		t.Adults = atoi(m[1])
	}
	for _, m := range childWithAge.FindAllStringSubmatch(text, -1) {
		t.Children = append(t.Children, enquiry.Child{Age: atoi(m[2])})
	}
	if len(t.Children) == 0 {
		if m := childCount.FindStringSubmatch(text); m != nil {
			for i := 0; i < atoi(m[1]); i++ {
				t.Children = append(t.Children, enquiry.Child{})
			}
		}
	}
	if m := infantCount.FindStringSubmatch(text); m != nil {
		t.Infants = atoi(m[1])
	}
	return t
}

// comprehensiveHotelCategory only reads a bare tier when "star" follows it or
// a category label precedes it, so "5 days" never becomes "5 Star". "budget"
// followed by an amount is the trip budget, not a hotel class.
func comprehensiveHotelCategory(text string) *string {
	if budgetHotelWord.MatchString(text) {
		return enquiry.Ptr("Budget")
	}
	for _, m := range budgetWord.FindAllStringSubmatch(text, -1) {
		if m[1] == "" {
			return enquiry.Ptr("Budget")
		}
	}
	if luxuryWord.MatchString(text) {
		return enquiry.Ptr("5 Star")
	}
	best := 0
	for _, m := range starContext.FindAllStringSubmatch(text, -1) {
		if n := starTier(m[1]); n > best {
			best = n
		}
	}
	for _, m := range labelledTier.FindAllStringSubmatch(text, -1) {
		if m[2] != "" {
			continue
		}
		if n := starTier(m[1]); n > best {
			best = n
		}
	}
	if best == 0 {
		return nil
	}
	return enquiry.Ptr(strconv.Itoa(best) + " Star")
}

func starTier(s string) int {
	switch strings.ToLower(s) {
	case "5", "five":
		return 5
	case "4", "four":
		return 4
	case "3", "three":
		return 3
	}
	return 0
}

var mealPlans = []struct {
	plan    string
	pattern *regexp.Regexp
}{
	{"All Inclusive", regexp.MustCompile(`(?i)\ball[ -]inclusive\b`)},
	{"Full Board / AP", regexp.MustCompile(`(?i)\b(?:full board|ap|american plan)\b`)},
	{"Half Board / MAP", regexp.MustCompile(`(?i)\b(?:half board|map|modified american)\b`)},
	{"Breakfast (CP)", regexp.MustCompile(`(?i)\b(?:breakfast|cp|continental)\b`)},
	{"Room Only", regexp.MustCompile(`(?i)\b(?:room only|no meals?)\b`)},
}

func matchMealPlan(text string) *string {
	for _, mp := range mealPlans {
		if mp.pattern.MatchString(text) {
			return enquiry.Ptr(mp.plan)
		}
	}
	return nil
}

var (
	serviceAll      = regexp.MustCompile(`(?i)\b(?:all|everything|complete)\b`)
	serviceFlights  = regexp.MustCompile(`(?i)\b(?:flights?|air|airfare|tickets?)\b`)
	serviceHotels   = regexp.MustCompile(`(?i)\b(?:hotels?|accommodation|stay)\b`)
	serviceTransfer = regexp.MustCompile(`(?i)\b(?:transfers?|transport|cabs?)\b`)
	serviceSights   = regexp.MustCompile(`(?i)\b(?:sightseeing|tours?|activit(?:y|ies))\b`)
	serviceVisa     = regexp.MustCompile(`(?i)\b(?:visa|passport)\b`)
	serviceInsure   = regexp.MustCompile(`(?i)\b(?:insurance|cover)\b`)
)

func parseServices(text string) enquiry.Services {
	if serviceAll.MatchString(text) {
		return enquiry.Services{Flights: true, Hotels: true, Transfers: true, Sightseeing: true, Visa: true, TravelInsurance: true}
	}
	return enquiry.Services{
		Flights:         serviceFlights.MatchString(text),
		Hotels:          serviceHotels.MatchString(text),
		Transfers:       serviceTransfer.MatchString(text),
		Sightseeing:     serviceSights.MatchString(text),
		Visa:            serviceVisa.MatchString(text),
		TravelInsurance: serviceInsure.MatchString(text),
	}
}

func parseBudget(text string) *string {
	for _, re := range budgetPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			digits := strings.ReplaceAll(m[1], ",", "")
			if digits == "" {
				continue
			}
			return enquiry.Ptr(digits + " INR")
		}
	}
	return nil
}

var tripTypes = []struct {
	tripType string
	keywords []string
}{
	{"Family", []string{"family"}},
	{"Honeymoon", []string{"honeymoon", "couple"}},
	{"Group", []string{"group"}},
	{"Corporate", []string{"corporate", "business"}},
	{"Religious", []string{"religious", "pilgrimage"}},
}

func parseTripType(text string) *string {
	lower := strings.ToLower(text)
	for _, tt := range tripTypes {
		for _, kw := range tt.keywords {
			if strings.Contains(lower, kw) {
				return enquiry.Ptr(tt.tripType)
			}
		}
	}
	return nil
}

func parseRequirements(text string) *string {
	if noRequirements.MatchString(text) {
		return enquiry.Ptr("None")
	}
	if m := requirementsPattern.FindStringSubmatch(text); m != nil {
		captured := strings.TrimSpace(m[1])
		if noneAnswer.MatchString(captured) {
			return enquiry.Ptr("None")
		}
		if captured != "" {
			return &captured
		}
	}
	if requirementsNone.MatchString(text) {
		return enquiry.Ptr("None")
	}
	return nil
}

// parsePassport reads passport details when the word "passport" appears.
// rawFallback uses the whole answer as the number when no strict number
// matches, which only makes sense when the message answers that question.
func parsePassport(text string, rawFallback bool) *enquiry.Passport {
	if !strings.Contains(strings.ToLower(text), "passport") {
		return nil
	}
	number := passportNumber.FindStringSubmatch(text)
	if number == nil && passportNegation.MatchString(text) {
		return &enquiry.Passport{HasPassport: false}
	}
	p := &enquiry.Passport{HasPassport: true}
	if number != nil {
		p.PassportNumber = enquiry.Ptr(number[1])
	} else if rawFallback {
		p.PassportNumber = trimmed(text)
	}
	if m := passportExpiry.FindStringSubmatch(text); m != nil {
		p.ExpiryDate = enquiry.Ptr(m[1])
	}
	return p
}

func parseSelfIntroduction(text string) *string {
	m := selfIntroduction.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	name := nameConnector.ReplaceAllString(strings.TrimSpace(m[1]), "")
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	first := strings.ToLower(strings.Fields(name)[0])
	if _, bad := notNames[first]; bad {
		return nil
	}
	return &name
}

func parseTravelMode(text string) *string {
	for _, tm := range travelModes {
		if tm.pattern.MatchString(text) {
			return enquiry.Ptr(tm.mode)
		}
	}
	return nil
}

func firstCapture(patterns []*regexp.Regexp, text string) *string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if v := trimmed(m[1]); v != nil {
				return v
			}
		}
	}
	return nil
}

func trimmed(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
