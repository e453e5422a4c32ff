// Package stats projects game snapshots into aggregate statistics and the
// final summary served after a session ends. Everything here is a pure
// function over game.Snapshot: no mutation, no wall clock, O(history).
package stats

import (
	"time"

	"chupistica-server/card"
	"chupistica-server/game"
)

// Split counts one bucket of the deck, cards already drawn against cards
// still in the deck.
type Split struct {
	Drawn     int `json:"drawn"`
	Remaining int `json:"remaining"`
}

// Basic is the headline row of a stats projection.
type Basic struct {
	Code          string  `json:"code"`
	Status        string  `json:"status"`
	Participants  int     `json:"participants"`
	Drawn         int     `json:"drawn"`
	Remaining     int     `json:"remaining"`
	ProgressPct   float64 `json:"progressPct"`
	DurationMs    int64   `json:"durationMs"`
	CurrentTurn   string  `json:"currentTurn,omitempty"`
	Direction     int8    `json:"direction"`
	KingsCount    int     `json:"kingsCount"`
	VenganzasHeld int     `json:"venganzasHeld"`
}

// ParticipantStats aggregates one player's line. Players who drew and later
// left keep their line with TurnPosition -1.
type ParticipantStats struct {
	Drawn          int     `json:"drawn"`
	Activations    int     `json:"activations"`
	VenganzaEarned int     `json:"venganzaEarned"`
	VenganzaLeft   int     `json:"venganzaLeft"`
	SavedHeld      int     `json:"savedHeld"`
	Kings          int     `json:"kings"`
	AvgCardValue   float64 `json:"avgCardValue"`
	TurnPosition   int     `json:"turnPosition"`
}

// Streak is the longest run of consecutive draws by one player.
type Streak struct {
	Participant string `json:"participant,omitempty"`
	Length      int    `json:"length"`
}

// TurnStats summarizes the draw distribution across players.
type TurnStats struct {
	Total          int            `json:"total"`
	PerParticipant map[string]int `json:"perParticipant"`
	Min            int            `json:"min"`
	Max            int            `json:"max"`
	Avg            float64        `json:"avg"`
	Variance       float64        `json:"variance"`
	LongestStreak  Streak         `json:"longestStreak"`
}

// Stats is the full projection returned by Compute.
type Stats struct {
	Basic            Basic                       `json:"basic"`
	PerParticipant   map[string]ParticipantStats `json:"perParticipant"`
	ByRank           map[string]Split            `json:"byRank"`
	BySuit           map[string]Split            `json:"bySuit"`
	ByColor          map[string]Split            `json:"byColor"`
	Turns            TurnStats                   `json:"turns"`
	RuleApplications map[string]int              `json:"ruleApplications"`
}

// Compute builds the aggregate statistics for a snapshot in any state.
// Durations come from the recorded timestamps, so the same snapshot always
// yields the same projection.
func Compute(snap game.Snapshot) Stats {
	st := Stats{
		PerParticipant:   make(map[string]ParticipantStats, len(snap.Participants)),
		ByRank:           make(map[string]Split, len(card.Ranks)),
		BySuit:           make(map[string]Split, len(card.Suits)),
		ByColor:          map[string]Split{"red": {}, "black": {}},
		RuleApplications: make(map[string]int),
	}
	for _, r := range card.Ranks {
		st.ByRank[r.Token()] = Split{}
	}
	for _, s := range card.Suits {
		st.BySuit[s.Token()] = Split{}
	}

	seat := make(map[string]int, len(snap.Participants))
	for i, p := range snap.Participants {
		seat[p] = i
		st.PerParticipant[p] = ParticipantStats{TurnPosition: i}
	}
	row := func(p string) ParticipantStats {
		if r, ok := st.PerParticipant[p]; ok {
			return r
		}
		return ParticipantStats{TurnPosition: -1}
	}

	for _, c := range snap.Deck {
		addSplit(st.ByRank, c.Rank().Token(), 0, 1)
		addSplit(st.BySuit, c.Suit().Token(), 0, 1)
		addSplit(st.ByColor, c.Color().Token(), 0, 1)
	}

	draws := 0
	valueSum := make(map[string]int)
	lastAt := time.Time{}
	streakActor, streakLen := "", 0
	for _, ev := range snap.History {
		lastAt = ev.At
		switch ev.Kind {
		case game.HistoryDraw:
			draws++
			r := row(ev.Actor)
			r.Drawn++
			valueSum[ev.Actor] += ev.Card.Value()
			switch ev.Card.Rank() {
			case card.RankAce:
				r.VenganzaEarned++
			case card.RankKing:
				r.Kings++
			}
			st.PerParticipant[ev.Actor] = r

			addSplit(st.ByRank, ev.Card.Rank().Token(), 1, 0)
			addSplit(st.BySuit, ev.Card.Suit().Token(), 1, 0)
			addSplit(st.ByColor, ev.Card.Color().Token(), 1, 0)
			if ev.Outcome != nil && ev.Outcome.Message != "" {
				st.RuleApplications[ev.Outcome.Message]++
			}

			if ev.Actor == streakActor {
				streakLen++
			} else {
				streakActor, streakLen = ev.Actor, 1
			}
			if streakLen > st.Turns.LongestStreak.Length {
				st.Turns.LongestStreak = Streak{Participant: streakActor, Length: streakLen}
			}
		case game.HistorySavedActivate:
			r := row(ev.Actor)
			r.Activations++
			st.PerParticipant[ev.Actor] = r
		}
	}

	for _, v := range snap.VenganzaCards {
		r := row(v.Owner)
		r.VenganzaLeft++
		st.PerParticipant[v.Owner] = r
	}
	for p, held := range snap.SavedCards {
		r := row(p)
		r.SavedHeld = len(held)
		st.PerParticipant[p] = r
	}
	for p, r := range st.PerParticipant {
		if r.Drawn > 0 {
			r.AvgCardValue = float64(valueSum[p]) / float64(r.Drawn)
			st.PerParticipant[p] = r
		}
	}

	st.Turns = turnStats(st.PerParticipant, draws, st.Turns.LongestStreak)
	st.Basic = Basic{
		Code:          snap.Code,
		Status:        snap.Status.String(),
		Participants:  len(snap.Participants),
		Drawn:         draws,
		Remaining:     len(snap.Deck),
		ProgressPct:   float64(draws) * 100 / float64(card.DeckSize),
		DurationMs:    durationMs(snap, lastAt),
		Direction:     snap.Direction,
		KingsCount:    snap.KingsCount,
		VenganzasHeld: len(snap.VenganzaCards),
	}
	if snap.Status == game.StatusPlaying && snap.TurnIndex >= 0 && snap.TurnIndex < len(snap.Participants) {
		st.Basic.CurrentTurn = snap.Participants[snap.TurnIndex]
	}
	return st
}

func addSplit(m map[string]Split, key string, drawn, remaining int) {
	s := m[key]
	s.Drawn += drawn
	s.Remaining += remaining
	m[key] = s
}

// durationMs spans session start to end, or to the last recorded event while
// the session is still running.
func durationMs(snap game.Snapshot, lastEvent time.Time) int64 {
	if snap.StartedAt == nil {
		return 0
	}
	end := lastEvent
	if snap.EndedAt != nil {
		end = *snap.EndedAt
	}
	if end.Before(*snap.StartedAt) {
		return 0
	}
	return end.Sub(*snap.StartedAt).Milliseconds()
}

func turnStats(rows map[string]ParticipantStats, total int, longest Streak) TurnStats {
	ts := TurnStats{
		Total:          total,
		PerParticipant: make(map[string]int, len(rows)),
		LongestStreak:  longest,
	}
	if len(rows) == 0 {
		return ts
	}
	sum := 0
	first := true
	for p, r := range rows {
		ts.PerParticipant[p] = r.Drawn
		sum += r.Drawn
		if first || r.Drawn < ts.Min {
			ts.Min = r.Drawn
		}
		if first || r.Drawn > ts.Max {
			ts.Max = r.Drawn
		}
		first = false
	}
	ts.Avg = float64(sum) / float64(len(rows))
	for _, r := range rows {
		d := float64(r.Drawn) - ts.Avg
		ts.Variance += d * d
	}
	ts.Variance /= float64(len(rows))
	return ts
}
