package game

import (
	"testing"

	"chupistica-server/card"
)

func TestSaveAndActivate(t *testing.T) {
	s := startedSession(t, []card.Card{card.CardHeart5, card.CardClub2}, "h", "p2")

	res, err := s.Draw("h")
	if err != nil {
		t.Fatalf("Draw err: %v", err)
	}
	if res.Outcome.Kind != OutcomeSaveCard || res.Outcome.SavedRank != 5 {
		t.Fatalf("outcome = %+v", res.Outcome)
	}
	held := s.SavedCardsOf("h")
	if len(held) != 1 || held[0].Card != card.CardHeart5 {
		t.Fatalf("held = %v", held)
	}
	if held[0].DrawIndex != 0 {
		t.Fatalf("draw backreference = %d", held[0].DrawIndex)
	}

	// p2's turn now; h may still activate, and the turn must not move.
	turnBefore := s.TurnIndex()
	act, err := s.Activate("h", "5_hearts")
	if err != nil {
		t.Fatalf("Activate err: %v", err)
	}
	if act.Card != card.CardHeart5 || len(act.Remaining) != 0 {
		t.Fatalf("activate result = %+v", act)
	}
	if s.TurnIndex() != turnBefore {
		t.Fatalf("turn index changed by activation: %d -> %d", turnBefore, s.TurnIndex())
	}
	if len(s.SavedCardsOf("h")) != 0 {
		t.Fatalf("saved cards not cleared")
	}

	hist := s.History()
	if last := hist[len(hist)-1]; last.Kind != HistorySavedActivate || last.Actor != "h" {
		t.Fatalf("last history entry = %+v", last)
	}
	assertInvariants(t, s)
}

func TestActivateErrors(t *testing.T) {
	s := startedSession(t, []card.Card{card.CardHeart5}, "h", "p2")

	if _, err := s.Draw("h"); err != nil {
		t.Fatalf("Draw err: %v", err)
	}

	_, err := s.Activate("h", "not-a-card")
	assertKind(t, err, KindInvalidCard)

	_, err = s.Activate("h", "9_clubs")
	assertKind(t, err, KindSavedCardNotFound)

	// Held by h, not by p2.
	_, err = s.Activate("p2", "5_hearts")
	assertKind(t, err, KindSavedCardNotFound)

	_, err = s.Activate("ghost", "5_hearts")
	assertKind(t, err, KindPlayerNotInSession)

	if _, err := s.End("h", ""); err != nil {
		t.Fatalf("End err: %v", err)
	}
	_, err = s.Activate("h", "5_hearts")
	assertKind(t, err, KindWrongState)
}

func TestVenganzaLifecycle(t *testing.T) {
	s := startedSession(t, []card.Card{card.CardClub2, card.CardSpadeA}, "h", "p")

	if _, err := s.Draw("h"); err != nil {
		t.Fatalf("Draw err: %v", err)
	}
	res, err := s.Draw("p")
	if err != nil {
		t.Fatalf("Draw err: %v", err)
	}
	if res.Outcome.Kind != OutcomeVenganza {
		t.Fatalf("ace outcome = %s", res.Outcome.Kind)
	}
	if s.VenganzaOwned("p") != 1 {
		t.Fatalf("venganza owned = %d", s.VenganzaOwned("p"))
	}

	// Not spendable while playing.
	_, err = s.ConsumeVenganza("p", "h")
	assertKind(t, err, KindWrongState)

	if _, err := s.End("h", ""); err != nil {
		t.Fatalf("End err: %v", err)
	}

	_, err = s.ConsumeVenganza("p", "ghost")
	assertKind(t, err, KindInvalidTargetPlayer)

	out, err := s.ConsumeVenganza("p", "h")
	if err != nil {
		t.Fatalf("ConsumeVenganza err: %v", err)
	}
	if out.Card != card.CardSpadeA || out.Target != "h" || out.RemainingOwned != 0 {
		t.Fatalf("venganza result = %+v", out)
	}
	if s.VenganzaOwned("p") != 0 {
		t.Fatalf("venganza not consumed")
	}

	_, err = s.ConsumeVenganza("p", "h")
	assertKind(t, err, KindNoVenganzaAvailable)

	hist := s.History()
	if last := hist[len(hist)-1]; last.Kind != HistoryVenganzaConsume || last.Target != "h" {
		t.Fatalf("last history entry = %+v", last)
	}
	assertInvariants(t, s)
}

func TestVenganzaConsumesOldestFirst(t *testing.T) {
	s := startedSession(t, []card.Card{card.CardSpadeA, card.CardClub2, card.CardHeartA}, "h", "p")

	for _, actor := range []string{"h", "p", "h"} {
		if _, err := s.Draw(actor); err != nil {
			t.Fatalf("draw by %q err: %v", actor, err)
		}
	}
	if s.VenganzaOwned("h") != 2 {
		t.Fatalf("venganza owned = %d, want 2", s.VenganzaOwned("h"))
	}
	if _, err := s.End("h", ""); err != nil {
		t.Fatalf("End err: %v", err)
	}

	out, err := s.ConsumeVenganza("h", "p")
	if err != nil {
		t.Fatalf("ConsumeVenganza err: %v", err)
	}
	if out.Card != card.CardSpadeA {
		t.Fatalf("consumed %s, want the older ace of spades", out.Card)
	}
	if out.RemainingOwned != 1 {
		t.Fatalf("remaining owned = %d", out.RemainingOwned)
	}
	assertInvariants(t, s)
}
