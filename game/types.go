package game

import (
	"fmt"
	"time"

	"chupistica-server/card"
)

// Status is the session lifecycle phase. Transitions only move forward.
type Status byte

const (
	StatusWaiting Status = 0
	StatusPlaying Status = 1
	StatusEnded   Status = 2
)

var StatusDictionary = map[Status]string{
	StatusWaiting: "waiting",
	StatusPlaying: "playing",
	StatusEnded:   "ended",
}

func (s Status) String() string {
	if name, ok := StatusDictionary[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", byte(s))
}

func (s Status) MarshalText() ([]byte, error) {
	name, ok := StatusDictionary[s]
	if !ok {
		return nil, fmt.Errorf("unknown status %d", byte(s))
	}
	return []byte(name), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for st, name := range StatusDictionary {
		if name == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", string(b))
}

// OutcomeKind tags the rule triggered by a drawn card.
type OutcomeKind byte

const (
	OutcomeDrinkSelf      OutcomeKind = 1
	OutcomeDrinkLeft      OutcomeKind = 2
	OutcomeDrinkRight     OutcomeKind = 3
	OutcomeDrinkFirstSeen OutcomeKind = 4
	OutcomeYoNuncaNunca   OutcomeKind = 5
	OutcomeSieteBomb      OutcomeKind = 6
	OutcomeChooseRule     OutcomeKind = 7
	OutcomeSaveCard       OutcomeKind = 8
	OutcomeVenganza       OutcomeKind = 9
	OutcomeKingsCup       OutcomeKind = 10
	OutcomeEndTriggered   OutcomeKind = 11
)

var OutcomeKindDictionary = map[OutcomeKind]string{
	OutcomeDrinkSelf:      "DrinkSelf",
	OutcomeDrinkLeft:      "DrinkLeft",
	OutcomeDrinkRight:     "DrinkRight",
	OutcomeDrinkFirstSeen: "DrinkFirstSeen",
	OutcomeYoNuncaNunca:   "YoNuncaNunca",
	OutcomeSieteBomb:      "SieteBomb",
	OutcomeChooseRule:     "ChooseRule",
	OutcomeSaveCard:       "SaveCard",
	OutcomeVenganza:       "VenganzaAccrued",
	OutcomeKingsCup:       "KingsCup",
	OutcomeEndTriggered:   "EndTriggered",
}

func (k OutcomeKind) String() string {
	if name, ok := OutcomeKindDictionary[k]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", byte(k))
}

func (k OutcomeKind) MarshalText() ([]byte, error) {
	name, ok := OutcomeKindDictionary[k]
	if !ok {
		return nil, fmt.Errorf("unknown outcome kind %d", byte(k))
	}
	return []byte(name), nil
}

func (k *OutcomeKind) UnmarshalText(b []byte) error {
	for kind, name := range OutcomeKindDictionary {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown outcome kind %q", string(b))
}

// HistoryKind tags entries of the append-only session log.
type HistoryKind byte

const (
	HistoryDraw            HistoryKind = 1
	HistorySavedActivate   HistoryKind = 2
	HistoryVenganzaConsume HistoryKind = 3
)

var HistoryKindDictionary = map[HistoryKind]string{
	HistoryDraw:            "Draw",
	HistorySavedActivate:   "SavedActivate",
	HistoryVenganzaConsume: "VenganzaConsume",
}

func (k HistoryKind) String() string {
	if name, ok := HistoryKindDictionary[k]; ok {
		return name
	}
	return fmt.Sprintf("history(%d)", byte(k))
}

func (k HistoryKind) MarshalText() ([]byte, error) {
	name, ok := HistoryKindDictionary[k]
	if !ok {
		return nil, fmt.Errorf("unknown history kind %d", byte(k))
	}
	return []byte(name), nil
}

func (k *HistoryKind) UnmarshalText(b []byte) error {
	for kind, name := range HistoryKindDictionary {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown history kind %q", string(b))
}

// SavePolicy decides what happens when a participant draws a fourth
// save-eligible card while already holding three.
type SavePolicy byte

const (
	// SaveDropOldest silently discards the oldest held card to make room.
	SaveDropOldest SavePolicy = 0
	// SaveReject fails the draw with SaveCapacity and mutates nothing.
	SaveReject SavePolicy = 1
)

func ParseSavePolicy(s string) (SavePolicy, error) {
	switch s {
	case "", "drop", "dropOldest":
		return SaveDropOldest, nil
	case "reject":
		return SaveReject, nil
	}
	return 0, fmt.Errorf("unknown save policy %q", s)
}

func (p SavePolicy) String() string {
	if p == SaveReject {
		return "reject"
	}
	return "dropOldest"
}

// Play direction. Toggled every time a 7 is drawn.
const (
	DirectionForward  int8 = 1
	DirectionBackward int8 = -1
)

// Event is one entry of the session history. Never mutated after append.
type Event struct {
	Index   int         `json:"index"`
	Kind    HistoryKind `json:"kind"`
	Actor   string      `json:"actor"`
	Card    card.Card   `json:"card"`
	Outcome *Outcome    `json:"outcome,omitempty"`
	Target  string      `json:"target,omitempty"`
	At      time.Time   `json:"at"`
}

// SavedCard is a rank 5 or 9 retained by its drawer, with a backreference to
// the draw that produced it.
type SavedCard struct {
	Card      card.Card `json:"card"`
	DrawIndex int       `json:"drawIndex"`
}

// VenganzaCard is an ace accrued during play, spendable only after the end.
type VenganzaCard struct {
	Owner     string    `json:"owner"`
	Card      card.Card `json:"card"`
	DrawIndex int       `json:"drawIndex"`
}

// CupEntry records one king poured into the cup.
type CupEntry struct {
	Participant string    `json:"participant"`
	King        int       `json:"king"`
	At          time.Time `json:"at"`
}

// End reasons recorded on the session and surfaced in gameEnded events.
const (
	EndReasonKingsCup      = "kingsCup"
	EndReasonDeckExhausted = "deckExhausted"
	EndReasonHostEnded     = "hostEnded"
	EndReasonAbandoned     = "abandoned"
)
