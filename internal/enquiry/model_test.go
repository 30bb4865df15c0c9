package enquiry

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" In_Progress ")
	if err != nil || s != StatusInProgress {
		t.Fatalf("expected in_progress, got %q %v", s, err)
	}
	_, err = ParseStatus("archived")
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if err.Error() != "Invalid status. Must be one of: new, in_progress, contacted, converted, closed" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestMissingPrimaryFieldsOrder(t *testing.T) {
	e := New("1", testPhone, time.Now())
	e.Destination = Ptr("Domestic - Goa")
	e.TravelType = Ptr("Flight")

	want := []PrimaryField{FieldClientName, FieldPreferredTravelDates, FieldApproximateBudget}
	if got := e.MissingPrimaryFields(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if e.AllPrimaryPresent() || !e.HasAnyPrimary() {
		t.Fatalf("unexpected completeness flags")
	}
}

func TestCloneIsDeep(t *testing.T) {
	e := New("1", testPhone, time.Now().UTC())
	two := 2
	e.TotalTravellers = &Travellers{Count: &two}
	e.CollectedData["m1"] = AuditEntry{RawText: "hi"}

	cp := e.Clone()
	*cp.TotalTravellers.Count = 5
	cp.CollectedData["m2"] = AuditEntry{RawText: "other"}

	if *e.TotalTravellers.Count != 2 || len(e.CollectedData) != 1 {
		t.Fatalf("clone shares state with the original")
	}
}

func TestTravellersJSONForms(t *testing.T) {
	three := 3
	cases := []struct {
		in   Travellers
		want string
	}{
		{Travellers{Count: &three}, `3`},
		{Travellers{Text: "Couple"}, `"Couple"`},
		{Travellers{Adults: 2}, `{"adults":2,"children":[],"infants":0}`},
	}
	for _, tc := range cases {
		raw, err := json.Marshal(tc.in)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(raw) != tc.want {
			t.Fatalf("expected %s, got %s", tc.want, raw)
		}
	}

	var structured Travellers
	if err := json.Unmarshal([]byte(`{"adults":2,"children":[{"age":5}],"infants":1}`), &structured); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c := structured.PeopleCount(); c == nil || *c != 4 {
		t.Fatalf("expected 4 people, got %v", c)
	}
}

func TestMergeIsRightBiased(t *testing.T) {
	base := Fields{Destination: Ptr("Domestic - Goa"), HotelCategory: Ptr("3 Star"), Intent: IntentCancel}
	override := Fields{Destination: Ptr("Goa"), ApproximateBudget: Ptr("20000")}

	got := Merge(base, override)
	if deref(got.Destination) != "Goa" || deref(got.HotelCategory) != "3 Star" || deref(got.ApproximateBudget) != "20000" {
		t.Fatalf("unexpected merge %+v", got)
	}
	if got.Intent != IntentNone {
		t.Fatalf("intent must come from the override")
	}
}
