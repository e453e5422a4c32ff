package stats

import (
	"testing"

	"chupistica-server/card"
	"chupistica-server/game"
)

// fullGameOrder lays out all 52 draws with the kings exactly at draws 13,
// 26, 39 and 52, so the fourth king lands on the last card of the deck.
func fullGameOrder() []card.Card {
	kings := []card.Card{card.CardHeartK, card.CardDiamondK, card.CardClubK, card.CardSpadeK}
	rest := make([]card.Card, 0, card.DeckSize-len(kings))
	for _, c := range card.FullDeck() {
		if c.Rank() != card.RankKing {
			rest = append(rest, c)
		}
	}
	order := make([]card.Card, 0, card.DeckSize)
	ki, ri := 0, 0
	for i := 1; i <= card.DeckSize; i++ {
		if i%13 == 0 {
			order = append(order, kings[ki])
			ki++
		} else {
			order = append(order, rest[ri])
			ri++
		}
	}
	return order
}

func TestSummaryFullGameTimeline(t *testing.T) {
	s := twoPlayerSession(t, fullGameOrder()...)
	if _, err := s.Start("ana"); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	for {
		cur, ok := s.CurrentParticipant()
		if !ok {
			break
		}
		if _, err := s.Draw(cur); err != nil {
			t.Fatalf("Draw by %q: %v", cur, err)
		}
	}
	if s.Status() != game.StatusEnded || s.EndReason() != game.EndReasonKingsCup {
		t.Fatalf("game ended %s/%q, want ended/kingsCup", s.Status(), s.EndReason())
	}
	// ana drew the heart ace on the very first draw; spend it post-game.
	if _, err := s.ConsumeVenganza("ana", "beto"); err != nil {
		t.Fatalf("ConsumeVenganza err: %v", err)
	}

	sum := Summary(s.Snapshot())

	wantKinds := []string{
		TimelineFirstDraw,       // draw 1
		TimelineVenganzaAccrued, // draw 1, A hearts
		TimelineKingDrawn,       // draw 13
		TimelineVenganzaAccrued, // draw 14, A diamonds
		TimelineKingDrawn,       // draw 26
		TimelineHalfwayDrawn,    // draw 26
		TimelineVenganzaAccrued, // draw 27, A clubs
		TimelineKingDrawn,       // draw 39
		TimelineVenganzaAccrued, // draw 40, A spades
		TimelineKingDrawn,       // draw 52
		TimelineDeckExhausted,   // draw 52
		TimelineEnded,
		TimelineVenganzaSpent,
	}
	if len(sum.Timeline) != len(wantKinds) {
		t.Fatalf("timeline has %d items, want %d: %+v", len(sum.Timeline), len(wantKinds), sum.Timeline)
	}
	for i, item := range sum.Timeline {
		if item.Kind != wantKinds[i] {
			t.Fatalf("timeline[%d] = %s, want %s", i, item.Kind, wantKinds[i])
		}
	}

	kingNotes := make([]string, 0, 4)
	for _, item := range sum.Timeline {
		if item.Kind == TimelineKingDrawn {
			kingNotes = append(kingNotes, item.Note)
		}
	}
	for i, note := range kingNotes {
		want := []string{"1/4", "2/4", "3/4", "4/4"}[i]
		if note != want {
			t.Fatalf("king %d note = %q, want %q", i+1, note, want)
		}
	}

	last := sum.Timeline[len(sum.Timeline)-1]
	if last.Actor != "ana" || last.Target != "beto" {
		t.Fatalf("venganza spend = %+v", last)
	}
	for _, item := range sum.Timeline {
		if item.Kind == TimelineEnded && item.Note != game.EndReasonKingsCup {
			t.Fatalf("ended note = %q", item.Note)
		}
		if item.Kind == TimelineHalfwayDrawn && item.Note != "26 cards drawn" {
			t.Fatalf("halfway note = %q", item.Note)
		}
	}

	if len(sum.CupContent) != 4 {
		t.Fatalf("cup holds %d kings", len(sum.CupContent))
	}
	if sum.EndReason != game.EndReasonKingsCup {
		t.Fatalf("end reason = %q", sum.EndReason)
	}
	if sum.Stats.Basic.Drawn != card.DeckSize || sum.Stats.Basic.Remaining != 0 {
		t.Fatalf("stats = %+v", sum.Stats.Basic)
	}
	if sum.Stats.Basic.ProgressPct != 100 {
		t.Fatalf("progress = %v", sum.Stats.Basic.ProgressPct)
	}
}

func TestSummaryOnRunningSession(t *testing.T) {
	s := twoPlayerSession(t, card.CardHeart2, card.CardHeart3)
	if _, err := s.Start("ana"); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	drawN(t, s, 2)

	sum := Summary(s.Snapshot())
	if sum.EndReason != "" {
		t.Fatalf("running session has end reason %q", sum.EndReason)
	}
	for _, item := range sum.Timeline {
		if item.Kind == TimelineEnded || item.Kind == TimelineDeckExhausted {
			t.Fatalf("running session emitted %s", item.Kind)
		}
	}
	if len(sum.Timeline) != 1 || sum.Timeline[0].Kind != TimelineFirstDraw {
		t.Fatalf("timeline = %+v", sum.Timeline)
	}
}
