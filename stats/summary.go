package stats

import (
	"fmt"
	"time"

	"chupistica-server/card"
	"chupistica-server/game"
)

// Timeline item kinds, in the order they can occur.
const (
	TimelineFirstDraw       = "firstDraw"
	TimelineKingDrawn       = "kingDrawn"
	TimelineHalfwayDrawn    = "halfwayDrawn"
	TimelineVenganzaAccrued = "venganzaAccrued"
	TimelineVenganzaSpent   = "venganzaSpent"
	TimelineDeckExhausted   = "deckExhausted"
	TimelineEnded           = "ended"
)

// TimelineItem is one milestone of a finished (or running) session.
type TimelineItem struct {
	Kind   string    `json:"kind"`
	At     time.Time `json:"at"`
	Actor  string    `json:"actor,omitempty"`
	Card   string    `json:"card,omitempty"`
	Target string    `json:"target,omitempty"`
	Note   string    `json:"note,omitempty"`
}

// FinalSummary is the post-game report: full stats plus the milestone
// timeline, the cup content and how the session ended.
type FinalSummary struct {
	Stats      Stats           `json:"stats"`
	Timeline   []TimelineItem  `json:"timeline"`
	CupContent []game.CupEntry `json:"cupContent"`
	EndReason  string          `json:"endReason,omitempty"`
}

// Summary builds the final report for a snapshot. It works on running
// sessions too; end-of-game items simply stay absent.
func Summary(snap game.Snapshot) FinalSummary {
	sum := FinalSummary{
		Stats:      Compute(snap),
		Timeline:   make([]TimelineItem, 0, 8),
		CupContent: append([]game.CupEntry{}, snap.CupContent...),
		EndReason:  snap.EndReason,
	}

	draws, kings := 0, 0
	var spent []TimelineItem
	for _, ev := range snap.History {
		switch ev.Kind {
		case game.HistoryDraw:
			draws++
			if draws == 1 {
				sum.Timeline = append(sum.Timeline, TimelineItem{
					Kind: TimelineFirstDraw, At: ev.At, Actor: ev.Actor, Card: ev.Card.ID(),
				})
			}
			switch ev.Card.Rank() {
			case card.RankKing:
				kings++
				sum.Timeline = append(sum.Timeline, TimelineItem{
					Kind: TimelineKingDrawn, At: ev.At, Actor: ev.Actor, Card: ev.Card.ID(),
					Note: fmt.Sprintf("%d/%d", kings, game.KingsToEnd),
				})
			case card.RankAce:
				sum.Timeline = append(sum.Timeline, TimelineItem{
					Kind: TimelineVenganzaAccrued, At: ev.At, Actor: ev.Actor, Card: ev.Card.ID(),
				})
			}
			if draws == card.DeckSize/2 {
				sum.Timeline = append(sum.Timeline, TimelineItem{
					Kind: TimelineHalfwayDrawn, At: ev.At, Actor: ev.Actor,
					Note: fmt.Sprintf("%d cards drawn", draws),
				})
			}
			if draws == card.DeckSize {
				sum.Timeline = append(sum.Timeline, TimelineItem{
					Kind: TimelineDeckExhausted, At: ev.At, Actor: ev.Actor,
				})
			}
		case game.HistoryVenganzaConsume:
			// Venganzas are only spendable after the end, so these sort
			// behind the ended milestone.
			spent = append(spent, TimelineItem{
				Kind: TimelineVenganzaSpent, At: ev.At, Actor: ev.Actor,
				Card: ev.Card.ID(), Target: ev.Target,
			})
		}
	}

	if snap.Status == game.StatusEnded {
		at := snap.CreatedAt
		if snap.EndedAt != nil {
			at = *snap.EndedAt
		}
		sum.Timeline = append(sum.Timeline, TimelineItem{
			Kind: TimelineEnded, At: at, Note: snap.EndReason,
		})
	}
	sum.Timeline = append(sum.Timeline, spent...)
	return sum
}
