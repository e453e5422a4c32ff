package room

import (
	"time"

	"chupistica-server/card"
	"chupistica-server/game"
)

// Wire payloads for the session event stream. Each rides inside the data
// field of a bus.Event envelope.

type CreatedPayload struct {
	Code         string    `json:"code"`
	Host         string    `json:"host"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"createdAt"`
}

type JoinedPayload struct {
	Player       string   `json:"player"`
	Participants []string `json:"participants"`
	Host         string   `json:"host"`
}

type LeftPayload struct {
	Player       string   `json:"player"`
	Participants []string `json:"participants"`
	Host         string   `json:"host"`
	HostChanged  bool     `json:"hostChanged"`
}

type StartedPayload struct {
	StartedAt time.Time `json:"startedAt"`
	TurnIndex int       `json:"turnIndex"`
	Current   string    `json:"current"`
	Direction int8      `json:"direction"`
}

type DrawnPayload struct {
	Player       string          `json:"player"`
	Card         card.Card       `json:"card"`
	Outcome      game.Outcome    `json:"outcome"`
	DrawIndex    int             `json:"drawIndex"`
	Remaining    int             `json:"remaining"`
	DroppedSaved *game.SavedCard `json:"droppedSaved,omitempty"`
}

type KingsCupPayload struct {
	Player string `json:"player"`
	Kings  int    `json:"kings"`
	Of     int    `json:"of"`
	Final  bool   `json:"final"`
}

type TurnPayload struct {
	TurnIndex int    `json:"turnIndex"`
	Current   string `json:"current"`
	Direction int8   `json:"direction"`
}

type ActivatedPayload struct {
	Player    string    `json:"player"`
	Card      card.Card `json:"card"`
	SavedHeld int       `json:"savedHeld"`
}

type VenganzaPayload struct {
	Player         string    `json:"player"`
	Target         string    `json:"target"`
	Card           card.Card `json:"card"`
	RemainingOwned int       `json:"remainingOwned"`
}

type RulesPayload struct {
	Rules map[card.Rank]string `json:"rules"`
}

type EndedPayload struct {
	Reason     string    `json:"reason"`
	EndedAt    time.Time `json:"endedAt"`
	KingsCount int       `json:"kingsCount"`
}
