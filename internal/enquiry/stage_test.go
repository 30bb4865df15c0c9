package enquiry

import (
	"testing"
	"time"
)

var testTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestAdvanceIsForwardOnly(t *testing.T) {
	if got := Advance(StageContactInfo, StageTravelDates); got != StageContactInfo {
		t.Fatalf("expected no regression, got %s", got)
	}
	if got := Advance(StageGreeting, StageTravelDates); got != StageTravelDates {
		t.Fatalf("expected travel_dates, got %s", got)
	}
	if !StageCompleted.Valid() || Stage("bogus").Valid() {
		t.Fatalf("unexpected validity")
	}
	if StageGreeting.Rank() >= StageTravelDates.Rank() || StageContactInfo.Rank() >= StageCompleted.Rank() {
		t.Fatalf("stage sequence out of order")
	}
}

func TestLegacyNextStage(t *testing.T) {
	e := New("1", testPhone, testTime)
	if got := LegacyNextStage(StageSpecialRequirements, e); got != StageContactInfo {
		t.Fatalf("domestic trips skip passport, got %s", got)
	}
	e.Destination = Ptr("International - Bali")
	if got := LegacyNextStage(StageSpecialRequirements, e); got != StagePassportDetails {
		t.Fatalf("international trips ask for passport, got %s", got)
	}
	chain := []Stage{StageDaysNights, StageTravellers, StageDepartureCity, StageHotelCategory, StageRoomRequirement, StageMealPlan, StageServices, StageBudget, StageTripType}
	for i := 0; i < len(chain)-1; i++ {
		if got := LegacyNextStage(chain[i], e); got != chain[i+1] {
			t.Fatalf("%s: expected %s, got %s", chain[i], chain[i+1], got)
		}
	}
	if got := LegacyNextStage(StageCallbackOrContact, e); got != StageCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
}

func TestParseStrategy(t *testing.T) {
	if ParseStrategy(" Staged ") != StrategyStaged || ParseStrategy("anything") != StrategyComprehensive {
		t.Fatalf("unexpected strategy parsing")
	}
}
