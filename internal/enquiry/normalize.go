package enquiry

import (
	"regexp"
	"strconv"
	"strings"
)

var quasiNull = map[string]struct{}{
	"":          {},
	"null":      {},
	"undefined": {},
	"none":      {},
	"n/a":       {},
}

// NormalizeString trims s and reports false for placeholder values such as
// "null", "undefined", "none" and "n/a".
func NormalizeString(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if _, ok := quasiNull[strings.ToLower(trimmed)]; ok {
		return "", false
	}
	return trimmed, true
}

// NormalizePtr applies NormalizeString to an optional value.
func NormalizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v, ok := NormalizeString(*s)
	if !ok {
		return nil
	}
	return &v
}

// Normalize canonicalises an arbitrary extracted value. Placeholder strings
// become nil, other strings are trimmed and non-strings pass through.
func Normalize(v any) any {
	switch val := v.(type) {
	case string:
		s, ok := NormalizeString(val)
		if !ok {
			return nil
		}
		return s
	case *string:
		if p := NormalizePtr(val); p != nil {
			return *p
		}
		return nil
	default:
		return v
	}
}

var firstInt = regexp.MustCompile(`\d+`)

// DerivePeopleCount turns any traveller representation into a headcount.
// Numbers and the first integer in a string come back unchanged, zero
// included. Only a breakdown that sums to zero reads as unknown.
func DerivePeopleCount(v any) *int {
	switch val := v.(type) {
	case nil:
		return nil
	case int:
		return &val
	case int32:
		return Ptr(int(val))
	case int64:
		return Ptr(int(val))
	case float64:
		return Ptr(int(val))
	case string:
		m := firstInt.FindString(val)
		if m == "" {
			return nil
		}
		n, err := strconv.Atoi(m)
		if err != nil {
			return nil
		}
		return &n
	case *Travellers:
		if val == nil {
			return nil
		}
		return DerivePeopleCount(*val)
	case Travellers:
		if val.Count != nil {
			return Ptr(*val.Count)
		}
		if val.Text != "" {
			return DerivePeopleCount(val.Text)
		}
		return nonZeroSum(val.Adults + len(val.Children) + val.Infants)
	case map[string]any:
		t, ok := travellersFromMap(val)
		if !ok {
			return nil
		}
		return DerivePeopleCount(t)
	default:
		return nil
	}
}

func nonZeroSum(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

// travellersFromMap reads the loosely typed breakdown produced by JSON decoders.
func travellersFromMap(m map[string]any) (Travellers, bool) {
	var t Travellers
	recognised := false
	if n, ok := asInt(m["adults"]); ok {
		t.Adults = n
		recognised = true
	}
	if n, ok := asInt(m["infants"]); ok {
		t.Infants = n
		recognised = true
	}
	switch children := m["children"].(type) {
	case []any:
		recognised = true
		for _, c := range children {
			age := 0
			switch cv := c.(type) {
			case map[string]any:
				age, _ = asInt(cv["age"])
			default:
				age, _ = asInt(cv)
			}
			t.Children = append(t.Children, Child{Age: age})
		}
	default:
		// Some models answer with a bare child count.
		if n, ok := asInt(children); ok {
			recognised = true
			for i := 0; i < n; i++ {
				t.Children = append(t.Children, Child{})
			}
		}
	}
	return t, recognised
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		m := firstInt.FindString(n)
		if m == "" {
			return 0, false
		}
		i, err := strconv.Atoi(m)
		return i, err == nil
	}
	return 0, false
}
