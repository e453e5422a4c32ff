package game

import (
	"testing"

	"chupistica-server/card"
)

// The rank-to-outcome mapping is the contract clients build against; pin it
// rank by rank.
func TestOutcomeMapping(t *testing.T) {
	s := startedSession(t, nil, "a", "b", "c")

	cases := []struct {
		rank card.Rank
		want OutcomeKind
	}{
		{card.RankAce, OutcomeVenganza},
		{2, OutcomeDrinkSelf},
		{3, OutcomeYoNuncaNunca},
		{4, OutcomeChooseRule},
		{5, OutcomeSaveCard},
		{6, OutcomeDrinkFirstSeen},
		{7, OutcomeSieteBomb},
		{8, OutcomeChooseRule},
		{9, OutcomeSaveCard},
		{10, OutcomeChooseRule},
		{card.RankJack, OutcomeDrinkLeft},
		{card.RankQueen, OutcomeDrinkRight},
		{card.RankKing, OutcomeKingsCup},
	}
	for _, tc := range cases {
		out := s.outcomeFor("a", card.Make(card.Hearts, tc.rank))
		if out.Kind != tc.want {
			t.Fatalf("rank %s -> %s, want %s", tc.rank, out.Kind, tc.want)
		}
		if out.Message == "" {
			t.Fatalf("rank %s has empty message", tc.rank)
		}
	}
}

func TestChooseRuleOptions(t *testing.T) {
	s := startedSession(t, nil, "a", "b")

	cases := map[card.Rank][]string{
		4:  {"más gato", "mi barquito"},
		8:  {"más joven", "colores"},
		10: {"al juez", "historia"},
	}
	for rank, want := range cases {
		out := s.outcomeFor("a", card.Make(card.Clubs, rank))
		if len(out.ChooseOptions) != 2 || out.ChooseOptions[0] != want[0] || out.ChooseOptions[1] != want[1] {
			t.Fatalf("rank %s options = %v, want %v", rank, out.ChooseOptions, want)
		}
	}
}

func TestSaveOutcomeCarriesRank(t *testing.T) {
	s := startedSession(t, nil, "a", "b")
	for _, rank := range []card.Rank{5, 9} {
		out := s.outcomeFor("a", card.Make(card.Diamonds, rank))
		if out.SavedRank != rank {
			t.Fatalf("saved rank = %s, want %s", out.SavedRank, rank)
		}
	}
}

func TestKingStagesCountUp(t *testing.T) {
	s := startedSession(t,
		[]card.Card{card.CardHeartK, card.CardDiamondK, card.CardClubK},
		"a", "b")

	// Before any king: the next one is stage 1.
	out := s.outcomeFor("a", card.CardSpadeK)
	if out.Kind != OutcomeKingsCup || out.KingStage != 1 {
		t.Fatalf("first king outcome = %+v", out)
	}

	for _, actor := range []string{"a", "b", "a"} {
		if _, err := s.Draw(actor); err != nil {
			t.Fatalf("draw by %q err: %v", actor, err)
		}
	}

	// Three kings poured: the next one terminates.
	out = s.outcomeFor("b", card.CardSpadeK)
	if out.Kind != OutcomeEndTriggered || !out.EndsSession || out.KingStage != 4 {
		t.Fatalf("fourth king outcome = %+v", out)
	}
}

func TestDefaultRulesCoverAllRanks(t *testing.T) {
	rules := DefaultRules()
	if len(rules) != 13 {
		t.Fatalf("default rules cover %d ranks", len(rules))
	}
	for _, r := range card.Ranks {
		if rules[r] == "" {
			t.Fatalf("rank %s has no default rule", r)
		}
	}
}
