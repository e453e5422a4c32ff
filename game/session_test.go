package game

import (
	"testing"
	"time"

	"chupistica-server/card"
)

// deckWithDrawOrder builds a full 52-card deck where the given cards are
// drawn first, in argument order. Remaining cards fill the rest in suit-major
// order. Draws pop the tail, so the first draw sits at the end.
func deckWithDrawOrder(t *testing.T, first ...card.Card) []card.Card {
	t.Helper()
	seen := make(map[card.Card]struct{}, len(first))
	for _, c := range first {
		if _, dup := seen[c]; dup {
			t.Fatalf("deckWithDrawOrder: duplicate %s", c)
		}
		seen[c] = struct{}{}
	}
	out := make([]card.Card, 0, card.DeckSize)
	for _, c := range card.FullDeck() {
		if _, ok := seen[c]; !ok {
			out = append(out, c)
		}
	}
	for i := len(first) - 1; i >= 0; i-- {
		out = append(out, first[i])
	}
	return out
}

func fixedClock(start time.Time) func() time.Time {
	cur := start
	return func() time.Time {
		cur = cur.Add(time.Second)
		return cur
	}
}

func newWaitingSession(t *testing.T, host string, others ...string) *Session {
	t.Helper()
	s, err := NewSession(Config{Code: "ABC123", HostID: host, Seed: 1})
	if err != nil {
		t.Fatalf("NewSession err: %v", err)
	}
	for _, p := range others {
		if _, err := s.Join(p); err != nil {
			t.Fatalf("Join(%q) err: %v", p, err)
		}
	}
	return s
}

func startedSession(t *testing.T, drawOrder []card.Card, host string, others ...string) *Session {
	t.Helper()
	cfg := Config{Code: "ABC123", HostID: host, Seed: 1}
	if drawOrder != nil {
		cfg.DeckOverride = deckWithDrawOrder(t, drawOrder...)
	}
	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession err: %v", err)
	}
	for _, p := range others {
		if _, err := s.Join(p); err != nil {
			t.Fatalf("Join(%q) err: %v", p, err)
		}
	}
	if _, err := s.Start(host); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	return s
}

// assertInvariants checks the structural session invariants that must hold
// after every command.
func assertInvariants(t *testing.T, s *Session) {
	t.Helper()
	snap := s.Snapshot()
	if err := snap.validate(); err != nil {
		t.Fatalf("invariant violated: %v", err)
	}

	// Saved cards must backreference a draw of the same card by the same
	// participant, not activated since.
	for p, held := range snap.SavedCards {
		for _, sc := range held {
			if sc.DrawIndex < 0 || sc.DrawIndex >= len(snap.History) {
				t.Fatalf("saved card %s has dangling draw index %d", sc.Card.ID(), sc.DrawIndex)
			}
			drawn := snap.History[sc.DrawIndex]
			if drawn.Kind != HistoryDraw || drawn.Actor != p || drawn.Card != sc.Card {
				t.Fatalf("saved card %s does not match history entry %d", sc.Card.ID(), sc.DrawIndex)
			}
			for _, ev := range snap.History[sc.DrawIndex+1:] {
				if ev.Kind == HistorySavedActivate && ev.Actor == p && ev.Card == sc.Card {
					t.Fatalf("saved card %s still held after activation", sc.Card.ID())
				}
			}
		}
	}
}

func assertKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error of kind %s, got nil", want)
	}
	if got := KindOf(err); got != want {
		t.Fatalf("error kind = %s, want %s (err: %v)", got, want, err)
	}
}

func TestNewSessionValidatesConfig(t *testing.T) {
	if _, err := NewSession(Config{Code: "abc123", HostID: "h"}); err != nil {
		t.Fatalf("lowercase code should normalize, got err: %v", err)
	}
	if _, err := NewSession(Config{Code: "AB", HostID: "h"}); err == nil {
		t.Fatalf("expected error for short code")
	}
	if _, err := NewSession(Config{Code: "ABC-12", HostID: "h"}); err == nil {
		t.Fatalf("expected error for bad code chars")
	}
	if _, err := NewSession(Config{Code: "ABC123", HostID: "  "}); err == nil {
		t.Fatalf("expected error for blank host")
	}
	if _, err := NewSession(Config{Code: "ABC123", HostID: "h", MaxParticipants: 9}); err == nil {
		t.Fatalf("expected error for MaxParticipants > 8")
	}
	if _, err := NewSession(Config{Code: "ABC123", HostID: "h", DeckOverride: []card.Card{card.CardHeartA}}); err == nil {
		t.Fatalf("expected error for partial deck override")
	}
}

func TestNewSessionInitialState(t *testing.T) {
	s := newWaitingSession(t, "h")
	if s.Code() != "ABC123" {
		t.Fatalf("code = %q", s.Code())
	}
	if s.Host() != "h" {
		t.Fatalf("host = %q", s.Host())
	}
	if s.Status() != StatusWaiting {
		t.Fatalf("status = %s, want waiting", s.Status())
	}
	if got := s.Participants(); len(got) != 1 || got[0] != "h" {
		t.Fatalf("participants = %v", got)
	}
	if s.Remaining() != card.DeckSize {
		t.Fatalf("remaining = %d", s.Remaining())
	}
	if s.Direction() != DirectionForward {
		t.Fatalf("direction = %d", s.Direction())
	}
	if len(s.RulesCopy()) != 13 {
		t.Fatalf("rules cover %d ranks, want 13", len(s.RulesCopy()))
	}
	assertInvariants(t, s)
}

func TestJoinLifecycle(t *testing.T) {
	s := newWaitingSession(t, "h")

	res, err := s.Join("p2")
	if err != nil {
		t.Fatalf("Join err: %v", err)
	}
	if len(res.Participants) != 2 || res.Participants[1] != "p2" {
		t.Fatalf("participants after join = %v", res.Participants)
	}

	_, err = s.Join("p2")
	assertKind(t, err, KindPlayerAlreadyInSession)

	_, err = s.Join("   ")
	assertKind(t, err, KindInvalidPlayerID)

	// Fill up to the cap of 8, then overflow.
	for _, p := range []string{"p3", "p4", "p5", "p6", "p7", "p8"} {
		if _, err := s.Join(p); err != nil {
			t.Fatalf("Join(%q) err: %v", p, err)
		}
	}
	_, err = s.Join("p9")
	assertKind(t, err, KindSessionFull)
	assertInvariants(t, s)
}

func TestJoinAfterStartIsWrongState(t *testing.T) {
	s := startedSession(t, nil, "h", "p2")
	_, err := s.Join("p3")
	assertKind(t, err, KindWrongState)
}

func TestStartPreconditions(t *testing.T) {
	s := newWaitingSession(t, "h")

	_, err := s.Start("h")
	assertKind(t, err, KindWrongState) // alone

	if _, err := s.Join("p2"); err != nil {
		t.Fatalf("Join err: %v", err)
	}
	_, err = s.Start("p2")
	assertKind(t, err, KindNotHost)
	_, err = s.Start("ghost")
	assertKind(t, err, KindPlayerNotInSession)

	res, err := s.Start("h")
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}
	if res.TurnIndex != 0 || res.Current != "h" {
		t.Fatalf("start result = %+v", res)
	}
	if s.Status() != StatusPlaying {
		t.Fatalf("status = %s after start", s.Status())
	}

	_, err = s.Start("h")
	assertKind(t, err, KindWrongState) // already playing
	assertInvariants(t, s)
}

func TestLeaveReassignsHost(t *testing.T) {
	s := newWaitingSession(t, "h", "p2", "p3")

	res, err := s.Leave("h")
	if err != nil {
		t.Fatalf("Leave err: %v", err)
	}
	if !res.HostChanged || res.Host != "p2" {
		t.Fatalf("host after leave = %q (changed=%v), want p2", res.Host, res.HostChanged)
	}
	if s.Host() != "p2" {
		t.Fatalf("session host = %q", s.Host())
	}

	_, err = s.Leave("ghost")
	assertKind(t, err, KindPlayerNotInSession)
	assertInvariants(t, s)
}

func TestLeaveDuringPlayingResetsTurnIndex(t *testing.T) {
	// Keep draws inert: rank 2 and 3 have no turn side effects.
	s := startedSession(t, []card.Card{card.CardHeart2, card.CardClub3}, "h", "p2", "p3")

	// Advance to p3 (index 2).
	if _, err := s.Draw("h"); err != nil {
		t.Fatalf("Draw err: %v", err)
	}
	if _, err := s.Draw("p2"); err != nil {
		t.Fatalf("Draw err: %v", err)
	}
	if s.TurnIndex() != 2 {
		t.Fatalf("turn index = %d, want 2", s.TurnIndex())
	}

	res, err := s.Leave("p3")
	if err != nil {
		t.Fatalf("Leave err: %v", err)
	}
	if res.TurnIndex != 0 {
		t.Fatalf("turn index after leave = %d, want 0", res.TurnIndex)
	}
	if cur, ok := s.CurrentParticipant(); !ok || cur != "h" {
		t.Fatalf("current = %q ok=%v, want h", cur, ok)
	}
	assertInvariants(t, s)
}

func TestLeaveLastParticipantEndsSession(t *testing.T) {
	s := newWaitingSession(t, "h")
	res, err := s.Leave("h")
	if err != nil {
		t.Fatalf("Leave err: %v", err)
	}
	if !res.Ended || res.EndReason != EndReasonAbandoned {
		t.Fatalf("leave result = %+v, want abandoned end", res)
	}
	if s.Status() != StatusEnded {
		t.Fatalf("status = %s", s.Status())
	}

	_, err = s.Leave("h")
	assertKind(t, err, KindWrongState)
	assertInvariants(t, s)
}

func TestEndByHost(t *testing.T) {
	s := newWaitingSession(t, "h", "p2")

	_, err := s.End("p2", "")
	assertKind(t, err, KindNotHost)

	res, err := s.End("h", "")
	if err != nil {
		t.Fatalf("End err: %v", err)
	}
	if res.Reason != EndReasonHostEnded {
		t.Fatalf("reason = %q", res.Reason)
	}
	if s.Status() != StatusEnded {
		t.Fatalf("status = %s", s.Status())
	}

	_, err = s.End("h", "")
	assertKind(t, err, KindWrongState)
	assertInvariants(t, s)
}

func TestEndFromPlayingKeepsCustomReason(t *testing.T) {
	s := startedSession(t, nil, "h", "p2")
	res, err := s.End("h", "bar is closing")
	if err != nil {
		t.Fatalf("End err: %v", err)
	}
	if res.Reason != "bar is closing" {
		t.Fatalf("reason = %q", res.Reason)
	}
	assertInvariants(t, s)
}

func TestUpdateAndResetRules(t *testing.T) {
	s := newWaitingSession(t, "h", "p2")

	res, err := s.UpdateRules("h", map[card.Rank]string{7: "bomba casera", 2: "doble trago"})
	if err != nil {
		t.Fatalf("UpdateRules err: %v", err)
	}
	if res.Rules[7] != "bomba casera" || res.Rules[2] != "doble trago" {
		t.Fatalf("rules not merged: %v", res.Rules)
	}
	if res.Rules[3] != DefaultRules()[3] {
		t.Fatalf("untouched rank changed: %q", res.Rules[3])
	}

	_, err = s.UpdateRules("p2", map[card.Rank]string{2: "x"})
	assertKind(t, err, KindNotHost)
	_, err = s.UpdateRules("h", map[card.Rank]string{2: "  "})
	assertKind(t, err, KindInvalidRules)
	_, err = s.UpdateRules("h", map[card.Rank]string{14: "x"})
	assertKind(t, err, KindInvalidRules)
	_, err = s.UpdateRules("h", nil)
	assertKind(t, err, KindInvalidRules)

	reset, err := s.ResetRules("h")
	if err != nil {
		t.Fatalf("ResetRules err: %v", err)
	}
	if reset.Rules[7] != DefaultRules()[7] {
		t.Fatalf("reset did not restore defaults: %q", reset.Rules[7])
	}

	if _, err := s.Start("h"); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	_, err = s.UpdateRules("h", map[card.Rank]string{2: "x"})
	assertKind(t, err, KindWrongState)
}

func TestRuleOverridesFlowIntoOutcomes(t *testing.T) {
	cfg := Config{
		Code:         "ABC123",
		HostID:       "h",
		Seed:         1,
		DeckOverride: deckWithDrawOrder(t, card.CardHeart2),
		Rules:        map[card.Rank]string{2: "fondo blanco"},
	}
	s, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession err: %v", err)
	}
	if _, err := s.Join("p2"); err != nil {
		t.Fatalf("Join err: %v", err)
	}
	if _, err := s.Start("h"); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	res, err := s.Draw("h")
	if err != nil {
		t.Fatalf("Draw err: %v", err)
	}
	if res.Outcome.Message != "fondo blanco" {
		t.Fatalf("outcome message = %q", res.Outcome.Message)
	}
}
