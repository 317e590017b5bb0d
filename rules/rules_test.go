package rules

import (
	"testing"
	"time"
)

func validSettings() MatchSettings {
	return MatchSettings{
		CardsPerPlayer: 7,
		TurnTimeLimit:  30 * time.Second,
		PenaltyCards:   2,
	}
}

func TestValidateSettings_Bounds(t *testing.T) {
	if err := ValidateSettings(4, validSettings()); err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}

	cases := []struct {
		name    string
		players int
		mutate  func(*MatchSettings)
	}{
		{"too few players", 1, func(s *MatchSettings) {}},
		{"too many players", 5, func(s *MatchSettings) {}},
		{"cards too low", 4, func(s *MatchSettings) { s.CardsPerPlayer = 4 }},
		{"cards too high", 4, func(s *MatchSettings) { s.CardsPerPlayer = 11 }},
		{"turn time too short", 4, func(s *MatchSettings) { s.TurnTimeLimit = 5 * time.Second }},
		{"turn time too long", 4, func(s *MatchSettings) { s.TurnTimeLimit = 301 * time.Second }},
	}
	for _, tc := range cases {
		s := validSettings()
		tc.mutate(&s)
		if err := ValidateSettings(tc.players, s); err == nil {
			t.Errorf("%s: expected an error", tc.name)
		}
	}
}

func TestValidateSettings_DeckCapacity(t *testing.T) {
	s := validSettings()
	s.CardsPerPlayer = 10
	// 4*10 + 20 = 60 <= 108 passes at four players.
	if err := ValidateSettings(4, s); err != nil {
		t.Fatalf("expected 10 cards per player to fit: %v", err)
	}
}

func TestCanPlayCard_VoidAlwaysLegal(t *testing.T) {
	top := Card{Type: CardNumber, Element: ElementFire, Value: 5}
	void := Card{Type: CardVoid, Element: ElementWater}
	if !CanPlayCard(void, top, false, 0) {
		t.Error("void card should always be playable")
	}
	if !CanPlayCard(void, top, true, ElementPlant) {
		t.Error("void card should be playable even while a void color is pending")
	}
}

func TestCanPlayCard_PendingVoidColor(t *testing.T) {
	top := Card{Type: CardVoid, Element: ElementFire}
	matching := Card{Type: CardNumber, Element: ElementPlant, Value: 3}
	mismatched := Card{Type: CardNumber, Element: ElementFire, Value: 3}

	if !CanPlayCard(matching, top, true, ElementPlant) {
		t.Error("card of the selected color should be playable")
	}
	if CanPlayCard(mismatched, top, true, ElementPlant) {
		t.Error("card of another color should not be playable while void is pending")
	}
}

func TestCanPlayCard_Matching(t *testing.T) {
	top := Card{Type: CardNumber, Element: ElementFire, Value: 5}

	cases := []struct {
		name      string
		candidate Card
		want      bool
	}{
		{"same element", Card{Type: CardSkip, Element: ElementFire}, true},
		{"same number value", Card{Type: CardNumber, Element: ElementWater, Value: 5}, true},
		{"different number value", Card{Type: CardNumber, Element: ElementWater, Value: 6}, false},
		{"unrelated special", Card{Type: CardSkip, Element: ElementWater}, false},
		{"bomb off-color", Card{Type: CardBomb, Element: ElementWater}, false},
		{"bomb on-color", Card{Type: CardBomb, Element: ElementFire}, true},
	}
	for _, tc := range cases {
		if got := CanPlayCard(tc.candidate, top, false, 0); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCanPlayCard_SpecialOnSpecial(t *testing.T) {
	top := Card{Type: CardSkip, Element: ElementFire}
	sameType := Card{Type: CardSkip, Element: ElementWater}
	if !CanPlayCard(sameType, top, false, 0) {
		t.Error("special card of the same type should be playable across colors")
	}

	bombTop := Card{Type: CardBomb, Element: ElementFire}
	bomb := Card{Type: CardBomb, Element: ElementWater}
	if !CanPlayCard(bomb, bombTop, false, 0) {
		t.Error("bomb should be playable on a bomb of any color")
	}
}

func TestNextPlayerIndex_WrapAndSkip(t *testing.T) {
	cases := []struct {
		current, direction int
		skip               bool
		want               int
	}{
		{0, 1, false, 1},
		{3, 1, false, 0},
		{0, -1, false, 3},
		{0, 1, true, 2},
		{3, 1, true, 1},
		{1, -1, true, 3},
	}
	for _, tc := range cases {
		got := NextPlayerIndex(tc.current, tc.direction, 4, tc.skip)
		if got != tc.want {
			t.Errorf("NextPlayerIndex(%d, %d, 4, %v) = %d, want %d",
				tc.current, tc.direction, tc.skip, got, tc.want)
		}
	}
}

func TestCheckWinCondition_ZeroCardsWins(t *testing.T) {
	counts := []uint8{3, 0, 5, 1}
	elims := []bool{false, false, false, false}
	won, idx := CheckWinCondition(counts, elims)
	if !won || idx != 1 {
		t.Fatalf("expected seat 1 to win, got won=%v idx=%d", won, idx)
	}
}

func TestCheckWinCondition_ZeroCardsBeatsLastStanding(t *testing.T) {
	// Seat 2 is the only active player but seat 2 also holds zero cards;
	// the zero-card scan must still pick it first.
	counts := []uint8{3, 4, 0, 1}
	elims := []bool{true, true, false, true}
	won, idx := CheckWinCondition(counts, elims)
	if !won || idx != 2 {
		t.Fatalf("expected seat 2 to win, got won=%v idx=%d", won, idx)
	}
}

func TestCheckWinCondition_LastOneStanding(t *testing.T) {
	counts := []uint8{3, 4, 5, 1}
	elims := []bool{true, false, true, true}
	won, idx := CheckWinCondition(counts, elims)
	if !won || idx != 1 {
		t.Fatalf("expected seat 1 to win as last active, got won=%v idx=%d", won, idx)
	}
}

func TestCheckWinCondition_NoWinnerYet(t *testing.T) {
	counts := []uint8{3, 4, 5, 1}
	elims := []bool{false, false, true, true}
	won, _ := CheckWinCondition(counts, elims)
	if won {
		t.Fatal("two active players should not produce a winner")
	}
}

func TestCheckWinCondition_AllEliminated(t *testing.T) {
	counts := []uint8{3, 4}
	elims := []bool{true, true}
	won, idx := CheckWinCondition(counts, elims)
	if !won || idx != 0 {
		t.Fatalf("expected fallback winner at seat 0, got won=%v idx=%d", won, idx)
	}
}

func TestApplyTimeoutPenalty_Saturates(t *testing.T) {
	if got := ApplyTimeoutPenalty(10, 2); got != 12 {
		t.Errorf("expected 12, got %d", got)
	}
	if got := ApplyTimeoutPenalty(254, 5); got != MaxCardCount {
		t.Errorf("expected saturation at %d, got %d", MaxCardCount, got)
	}
	if got := ApplyTimeoutPenalty(MaxCardCount, 1); got != MaxCardCount {
		t.Errorf("expected %d to stay saturated, got %d", MaxCardCount, got)
	}
}

func TestDeriveSeed_Deterministic(t *testing.T) {
	players := []string{"0xA", "0xB", "0xC"}
	at := time.Unix(1700000000, 42)
	if DeriveSeed(players, at) != DeriveSeed(players, at) {
		t.Error("same inputs should produce the same seed")
	}
	if DeriveSeed(players, at) == DeriveSeed(players, at.Add(time.Nanosecond)) {
		t.Error("different timestamps should produce different seeds")
	}
}

func TestStartingPlayerIndex_InRange(t *testing.T) {
	for seed := uint64(0); seed < 100; seed++ {
		idx := StartingPlayerIndex(seed, 4)
		if idx < 0 || idx > 3 {
			t.Fatalf("seed %d produced out-of-range index %d", seed, idx)
		}
	}
}

func TestInitialTopCard_AlwaysValidNumber(t *testing.T) {
	for seed := uint64(0); seed < 200; seed++ {
		card := InitialTopCard(seed)
		if card.Type != CardNumber {
			t.Fatalf("seed %d produced non-number top card %v", seed, card)
		}
		if !card.Valid() {
			t.Fatalf("seed %d produced invalid top card %v", seed, card)
		}
	}
}

func TestCardValid(t *testing.T) {
	cases := []struct {
		card Card
		want bool
	}{
		{Card{Type: CardNumber, Element: ElementFire, Value: 1}, true},
		{Card{Type: CardNumber, Element: ElementFire, Value: 9}, true},
		{Card{Type: CardNumber, Element: ElementFire, Value: 0}, false},
		{Card{Type: CardNumber, Element: ElementFire, Value: 10}, false},
		{Card{Type: CardSkip, Element: ElementWater, Value: 0}, true},
		{Card{Type: CardSkip, Element: ElementWater, Value: 1}, false},
		{Card{Type: CardBomb + 1, Element: ElementFire, Value: 0}, false},
	}
	for _, tc := range cases {
		if got := tc.card.Valid(); got != tc.want {
			t.Errorf("%v.Valid() = %v, want %v", tc.card, got, tc.want)
		}
	}
}
