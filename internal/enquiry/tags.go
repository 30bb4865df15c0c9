package enquiry

import "strings"

const (
	TagHoneymoon     = "honeymoon"
	TagGroup         = "group"
	TagInternational = "international"
)

// ComputeTags derives the full tag set from trip type and destination.
// The result replaces any previous tags.
func ComputeTags(tripType, destination string) []string {
	trip := strings.ToLower(tripType)
	dest := strings.ToLower(destination)

	tags := make([]string, 0, 3)
	if strings.Contains(trip, TagHoneymoon) {
		tags = append(tags, TagHoneymoon)
	}
	if strings.Contains(trip, TagGroup) {
		tags = append(tags, TagGroup)
	}
	if strings.Contains(dest, TagInternational) {
		tags = append(tags, TagInternational)
	}
	return tags
}

func (e *Enquiry) refreshTags() {
	e.Tags = ComputeTags(deref(e.TripType), deref(e.Destination))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
