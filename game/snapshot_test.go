package game

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"chupistica-server/card"
)

// midGameSession plays a short scripted sequence so the snapshot carries a
// bit of everything: history, saved cards, venganza, cup content, a reversed
// direction and custom rule text.
func midGameSession(t *testing.T) *Session {
	t.Helper()
	order := []card.Card{
		card.CardHeartA,  // h: venganza accrues
		card.CardHeart5,  // p2: saved
		card.CardHeart9,  // h: saved
		card.CardHeartK,  // p2: first king
		card.CardHeart7,  // h: reversal
		card.CardHeart3,  // p2
	}
	s, err := NewSession(Config{
		Code:         "ABC123",
		HostID:       "h",
		DeckOverride: deckWithDrawOrder(t, order...),
	})
	if err != nil {
		t.Fatalf("NewSession err: %v", err)
	}
	if _, err := s.Join("p2"); err != nil {
		t.Fatalf("Join err: %v", err)
	}
	if _, err := s.UpdateRules("h", map[card.Rank]string{card.Rank(3): "tres tragos"}); err != nil {
		t.Fatalf("UpdateRules err: %v", err)
	}
	if _, err := s.Start("h"); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	for _, actor := range []string{"h", "p2", "h", "p2", "h", "p2"} {
		if _, err := s.Draw(actor); err != nil {
			t.Fatalf("Draw(%q) err: %v", actor, err)
		}
	}
	if _, err := s.Activate("h", "9_hearts"); err != nil {
		t.Fatalf("Activate err: %v", err)
	}
	assertInvariants(t, s)
	return s
}

func TestSnapshotExportRestoreExportIsByteIdentical(t *testing.T) {
	s := midGameSession(t)

	first, err := json.Marshal(s.Snapshot())
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	parsed, err := ParseSnapshot(first)
	if err != nil {
		t.Fatalf("ParseSnapshot err: %v", err)
	}
	restored, err := Restore(parsed)
	if err != nil {
		t.Fatalf("Restore err: %v", err)
	}
	second, err := json.Marshal(restored.Snapshot())
	if err != nil {
		t.Fatalf("marshal restored snapshot: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("round trip changed bytes:\n first: %s\nsecond: %s", first, second)
	}
}

func TestSnapshotIsDetachedFromSession(t *testing.T) {
	s := midGameSession(t)
	snap := s.Snapshot()
	history, deck, cup := len(snap.History), len(snap.Deck), len(snap.CupContent)

	// Whoever is on turn draws; the earlier snapshot must not move.
	cur, ok := s.CurrentParticipant()
	if !ok {
		t.Fatalf("no current participant")
	}
	if _, err := s.Draw(cur); err != nil {
		t.Fatalf("Draw err: %v", err)
	}
	if len(snap.History) != history || len(snap.Deck) != deck || len(snap.CupContent) != cup {
		t.Fatalf("snapshot mutated by later draw")
	}

	snap.Participants[0] = "intruder"
	snap.SavedCards["p2"] = nil
	if s.Participants()[0] == "intruder" {
		t.Fatalf("session shares participant slice with snapshot")
	}
	if len(s.SavedCardsOf("p2")) == 0 {
		t.Fatalf("session shares saved-card map with snapshot")
	}
}

func TestRestoredSessionContinuesIdentically(t *testing.T) {
	s := midGameSession(t)
	restored, err := Restore(s.Snapshot())
	if err != nil {
		t.Fatalf("Restore err: %v", err)
	}

	// Both copies hold the same deck order, so they must replay move for
	// move until the deck runs dry or a fourth king lands.
	for {
		cur, ok := s.CurrentParticipant()
		if !ok {
			break
		}
		want, err := s.Draw(cur)
		if err != nil {
			t.Fatalf("original Draw err: %v", err)
		}
		got, err := restored.Draw(cur)
		if err != nil {
			t.Fatalf("restored Draw err: %v", err)
		}
		if got.Card != want.Card || got.TurnIndex != want.TurnIndex || got.Ended != want.Ended {
			t.Fatalf("replica diverged: got %s turn=%d ended=%v, want %s turn=%d ended=%v",
				got.Card, got.TurnIndex, got.Ended, want.Card, want.TurnIndex, want.Ended)
		}
		if want.Ended {
			break
		}
	}
	if s.Status() != restored.Status() || s.EndReason() != restored.EndReason() {
		t.Fatalf("terminal state diverged: %s/%s vs %s/%s",
			s.Status(), s.EndReason(), restored.Status(), restored.EndReason())
	}
	assertInvariants(t, restored)
}

func TestRestoreRejectsBrokenSnapshots(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Snapshot)
	}{
		{"unknown version", func(sn *Snapshot) { sn.Version = 2 }},
		{"bad code", func(sn *Snapshot) { sn.Code = "ab" }},
		{"host missing", func(sn *Snapshot) { sn.Host = "ghost" }},
		{"duplicate participant", func(sn *Snapshot) { sn.Participants = []string{"h", "h"} }},
		{"zero direction", func(sn *Snapshot) { sn.Direction = 0 }},
		{"unknown status", func(sn *Snapshot) { sn.Status = Status(9) }},
		{"turn index out of range", func(sn *Snapshot) { sn.TurnIndex = 5 }},
		{"deck accounting", func(sn *Snapshot) { sn.Deck = sn.Deck[:len(sn.Deck)-1] }},
		{"kings accounting", func(sn *Snapshot) { sn.KingsCount++ }},
		{"venganza accounting", func(sn *Snapshot) {
			sn.VenganzaCards = append(sn.VenganzaCards, VenganzaCard{Owner: "h", Card: card.CardSpadeA})
		}},
		{"saved cards for stranger", func(sn *Snapshot) {
			sn.SavedCards["ghost"] = []SavedCard{{Card: card.CardClub5}}
		}},
		{"saved card with wrong rank", func(sn *Snapshot) {
			sn.SavedCards["h"] = []SavedCard{{Card: card.CardClub2}}
		}},
		{"missing rule text", func(sn *Snapshot) { delete(sn.Rules, card.RankQueen) }},
		{"playing without startedAt", func(sn *Snapshot) { sn.StartedAt = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := midGameSession(t).Snapshot()
			tc.mutate(&snap)
			if _, err := Restore(snap); err == nil {
				t.Fatalf("Restore accepted snapshot with %s", tc.name)
			}
		})
	}
}

func TestParseSnapshotRejectsGarbage(t *testing.T) {
	if _, err := ParseSnapshot([]byte(`{"version":`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestInjectedClockMakesSnapshotsDeterministic(t *testing.T) {
	base := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
	build := func() *Session {
		t.Helper()
		s, err := NewSession(Config{Code: "ABC123", HostID: "h", Seed: 42, Clock: fixedClock(base)})
		if err != nil {
			t.Fatalf("NewSession err: %v", err)
		}
		if _, err := s.Join("p2"); err != nil {
			t.Fatalf("Join err: %v", err)
		}
		if _, err := s.Start("h"); err != nil {
			t.Fatalf("Start err: %v", err)
		}
		// Two players alternate on every draw, whatever the cards do to the
		// direction, so this script is legal for any shuffle.
		for _, actor := range []string{"h", "p2", "h"} {
			if _, err := s.Draw(actor); err != nil {
				t.Fatalf("Draw(%q) err: %v", actor, err)
			}
		}
		return s
	}

	first, err := json.Marshal(build().Snapshot())
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	second, err := json.Marshal(build().Snapshot())
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("same seed and clock produced different snapshots:\n first: %s\nsecond: %s", first, second)
	}

	if got := build().Snapshot().CreatedAt; !got.Equal(base.Add(time.Second)) {
		t.Fatalf("createdAt = %v, want the first clock tick %v", got, base.Add(time.Second))
	}
}

func TestEndedSnapshotRestores(t *testing.T) {
	s := midGameSession(t)
	if _, err := s.End("h", ""); err != nil {
		t.Fatalf("End err: %v", err)
	}
	if _, err := s.ConsumeVenganza("h", "p2"); err != nil {
		t.Fatalf("ConsumeVenganza err: %v", err)
	}
	restored, err := Restore(s.Snapshot())
	if err != nil {
		t.Fatalf("Restore err: %v", err)
	}
	if restored.Status() != StatusEnded {
		t.Fatalf("status = %s, want ended", restored.Status())
	}
	if restored.EndReason() != EndReasonHostEnded {
		t.Fatalf("end reason = %q", restored.EndReason())
	}
	if restored.VenganzaOwned("h") != 0 {
		t.Fatalf("consumed venganza resurrected by restore")
	}
	if _, err := restored.Draw("h"); err == nil {
		t.Fatalf("draw on ended session should fail")
	}
}
