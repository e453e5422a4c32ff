package game

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"chupistica-server/card"
)

// SnapshotVersion is the persisted-layout version this package writes.
const SnapshotVersion = 1

// Snapshot is a full value copy of a session in the version-1 export layout.
// Marshaling is deterministic: fixed field order, text-keyed maps (sorted by
// encoding/json), UTC timestamps. Export -> Restore -> Export is
// byte-identical.
type Snapshot struct {
	Version int    `json:"version"`
	Code    string `json:"code"`
	Host    string `json:"host"`
	// Seq is the event watermark of the owning room at export time. The
	// session itself never assigns it; restores hand it back to the room.
	Seq           uint64                 `json:"seq,omitempty"`
	Participants  []string               `json:"participants"`
	Deck          []card.Card            `json:"deck"`
	Status        Status                 `json:"status"`
	TurnIndex     int                    `json:"turnIndex"`
	Direction     int8                   `json:"direction"`
	History       []Event                `json:"history"`
	SavedCards    map[string][]SavedCard `json:"savedCards"`
	VenganzaCards []VenganzaCard         `json:"venganzaCards"`
	KingsCount    int                    `json:"kingsCount"`
	CupContent    []CupEntry             `json:"cupContent"`
	Rules         map[card.Rank]string   `json:"rules"`
	CreatedAt     time.Time              `json:"createdAt"`
	StartedAt     *time.Time             `json:"startedAt,omitempty"`
	EndedAt       *time.Time             `json:"endedAt,omitempty"`
	EndReason     string                 `json:"endReason,omitempty"`
}

// Snapshot builds the export value copy. Like every Session method it must be
// called from the owning room goroutine.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Version:       SnapshotVersion,
		Code:          s.code,
		Host:          s.hostID,
		Participants:  s.participantsCopy(),
		Deck:          s.deck.Cards(),
		Status:        s.status,
		TurnIndex:     s.turnIndex,
		Direction:     s.direction,
		History:       make([]Event, len(s.history)),
		SavedCards:    make(map[string][]SavedCard, len(s.savedCards)),
		VenganzaCards: append([]VenganzaCard{}, s.venganzaCards...),
		KingsCount:    s.kingsCount,
		CupContent:    append([]CupEntry{}, s.cupContent...),
		Rules:         s.RulesCopy(),
		CreatedAt:     s.createdAt,
		EndReason:     s.endReason,
	}
	copy(snap.History, s.history)
	if snap.History == nil {
		snap.History = []Event{}
	}
	for p, held := range s.savedCards {
		snap.SavedCards[p] = append([]SavedCard{}, held...)
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		snap.StartedAt = &t
	}
	if !s.endedAt.IsZero() {
		t := s.endedAt
		snap.EndedAt = &t
	}
	return snap
}

// ParseSnapshot decodes a version-1 export.
func ParseSnapshot(b []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Restore rebuilds a session from a snapshot, revalidating every structural
// invariant. The restored session runs with the default save policy and a
// fresh time-seeded rng; the deck order comes from the snapshot, so replayed
// draws are unaffected.
func Restore(snap Snapshot) (*Session, error) {
	if err := snap.validate(); err != nil {
		return nil, err
	}

	deck, err := card.NewDeckFromCards(snap.Deck)
	if err != nil {
		return nil, fmt.Errorf("restore deck: %w", err)
	}

	s := &Session{
		cfg: Config{
			Code:            snap.Code,
			HostID:          snap.Host,
			MaxParticipants: MaxParticipantsCap,
		},
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		now:          func() time.Time { return time.Now().UTC() },
		code:         snap.Code,
		hostID:       snap.Host,
		participants: append([]string(nil), snap.Participants...),
		deck:         deck,
		status:       snap.Status,
		turnIndex:    snap.TurnIndex,
		direction:    snap.Direction,
		history:      append([]Event(nil), snap.History...),
		kingsCount:   snap.KingsCount,
		cupContent:   append([]CupEntry(nil), snap.CupContent...),
		savedCards:   make(map[string][]SavedCard, len(snap.SavedCards)),
		rules:        make(map[card.Rank]string, len(snap.Rules)),
		createdAt:    snap.CreatedAt,
		endReason:    snap.EndReason,
	}
	s.venganzaCards = append(s.venganzaCards, snap.VenganzaCards...)
	for p, held := range snap.SavedCards {
		s.savedCards[p] = append([]SavedCard{}, held...)
	}
	for r, text := range snap.Rules {
		s.rules[r] = text
	}
	if snap.StartedAt != nil {
		s.startedAt = *snap.StartedAt
	}
	if snap.EndedAt != nil {
		s.endedAt = *snap.EndedAt
	}
	return s, nil
}

func (snap Snapshot) validate() error {
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	if _, err := ValidateCode(snap.Code); err != nil {
		return fmt.Errorf("snapshot code: %w", err)
	}
	if n := len(snap.Participants); n < 1 || n > MaxParticipantsCap {
		return fmt.Errorf("snapshot has %d participants, want 1..%d", n, MaxParticipantsCap)
	}
	seen := make(map[string]struct{}, len(snap.Participants))
	hostPresent := false
	for _, p := range snap.Participants {
		if _, err := ValidatePlayerID(p); err != nil {
			return fmt.Errorf("snapshot participant %q: %w", p, err)
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("duplicate participant %q", p)
		}
		seen[p] = struct{}{}
		if p == snap.Host {
			hostPresent = true
		}
	}
	if !hostPresent {
		return fmt.Errorf("host %q not among participants", snap.Host)
	}

	if _, ok := StatusDictionary[snap.Status]; !ok {
		return fmt.Errorf("unknown status %d", byte(snap.Status))
	}
	if snap.Status == StatusPlaying {
		if snap.TurnIndex < 0 || snap.TurnIndex >= len(snap.Participants) {
			return fmt.Errorf("turn index %d out of range", snap.TurnIndex)
		}
		if snap.StartedAt == nil {
			return fmt.Errorf("playing session without startedAt")
		}
	}
	if snap.Status == StatusEnded && snap.EndedAt == nil {
		return fmt.Errorf("ended session without endedAt")
	}
	if snap.Direction != DirectionForward && snap.Direction != DirectionBackward {
		return fmt.Errorf("direction must be +1 or -1, got %d", snap.Direction)
	}
	if snap.CreatedAt.IsZero() {
		return fmt.Errorf("snapshot missing createdAt")
	}

	draws, kings, aces, consumes := 0, 0, 0, 0
	for i, ev := range snap.History {
		if ev.Index != i {
			return fmt.Errorf("history index %d holds entry %d", i, ev.Index)
		}
		switch ev.Kind {
		case HistoryDraw:
			draws++
			if ev.Card.Rank() == card.RankKing {
				kings++
			}
			if ev.Card.Rank() == card.RankAce {
				aces++
			}
		case HistorySavedActivate:
		case HistoryVenganzaConsume:
			consumes++
		default:
			return fmt.Errorf("history entry %d has unknown kind %d", i, byte(ev.Kind))
		}
	}
	if draws+len(snap.Deck) != card.DeckSize {
		return fmt.Errorf("deck accounting broken: %d draws + %d remaining != %d", draws, len(snap.Deck), card.DeckSize)
	}
	if snap.KingsCount != kings || snap.KingsCount != len(snap.CupContent) {
		return fmt.Errorf("kings accounting broken: count=%d drawn=%d cup=%d", snap.KingsCount, kings, len(snap.CupContent))
	}
	if snap.KingsCount < 0 || snap.KingsCount > KingsToEnd {
		return fmt.Errorf("kings count %d out of range", snap.KingsCount)
	}
	if len(snap.VenganzaCards) != aces-consumes {
		return fmt.Errorf("venganza accounting broken: %d held, %d accrued, %d consumed", len(snap.VenganzaCards), aces, consumes)
	}
	for _, v := range snap.VenganzaCards {
		if v.Card.Rank() != card.RankAce {
			return fmt.Errorf("venganza entry holds non-ace %s", v.Card.ID())
		}
	}

	for p, held := range snap.SavedCards {
		if _, member := seen[p]; !member {
			return fmt.Errorf("saved cards for non-participant %q", p)
		}
		if len(held) > MaxSavedCards {
			return fmt.Errorf("participant %q holds %d saved cards, cap is %d", p, len(held), MaxSavedCards)
		}
		for _, sc := range held {
			if !isSaveRank(sc.Card.Rank()) {
				return fmt.Errorf("saved card %s has non-saveable rank", sc.Card.ID())
			}
		}
	}

	if len(snap.Rules) != len(card.Ranks) {
		return fmt.Errorf("rules must cover all %d ranks, got %d", len(card.Ranks), len(snap.Rules))
	}
	for _, r := range card.Ranks {
		if snap.Rules[r] == "" {
			return fmt.Errorf("missing rule text for rank %s", r)
		}
	}
	return nil
}
