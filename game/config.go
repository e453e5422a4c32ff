package game

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"chupistica-server/card"
)

const (
	// MaxParticipantsCap is the hard per-session participant limit.
	MaxParticipantsCap = 8

	// MaxSavedCards is the per-participant saved-card cap (ranks 5 and 9).
	MaxSavedCards = 3

	// KingsToEnd is the number of kings that terminates a session.
	KingsToEnd = 4

	minCodeLen = 4
	maxCodeLen = 10

	maxPlayerIDLen = 50
)

type Config struct {
	// Code must already satisfy the game-code format; NewSession uppercases it.
	Code   string
	HostID string

	// MaxParticipants defaults to 8 and may not exceed 8.
	MaxParticipants int

	SavePolicy SavePolicy

	// Seed drives the deck shuffle (0 => time-based).
	Seed int64

	// DeckOverride fixes the deck order for tests; must be 52 unique cards.
	DeckOverride []card.Card

	// Rules entries are merged over the defaults. Keys must be valid ranks,
	// values non-empty after trim.
	Rules map[card.Rank]string

	// Clock is injectable for tests (nil => time.Now).
	Clock func() time.Time
}

func (c Config) validate() error {
	if _, err := ValidateCode(c.Code); err != nil {
		return err
	}
	if _, err := ValidatePlayerID(c.HostID); err != nil {
		return err
	}
	if c.MaxParticipants < 0 || c.MaxParticipants > MaxParticipantsCap {
		return fmt.Errorf("MaxParticipants must be in 0..%d, got %d", MaxParticipantsCap, c.MaxParticipants)
	}
	if c.MaxParticipants == 1 {
		return fmt.Errorf("MaxParticipants must allow at least 2 participants")
	}
	if c.SavePolicy != SaveDropOldest && c.SavePolicy != SaveReject {
		return fmt.Errorf("unknown save policy %d", byte(c.SavePolicy))
	}
	if c.DeckOverride != nil && len(c.DeckOverride) != card.DeckSize {
		return fmt.Errorf("DeckOverride must hold all %d cards, got %d", card.DeckSize, len(c.DeckOverride))
	}
	for r, text := range c.Rules {
		if !r.Valid() {
			return fmt.Errorf("rule override for invalid rank %d", byte(r))
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("rule override for rank %s is empty", r)
		}
	}
	return nil
}

// ValidateCode normalizes and checks a game code: 4-10 chars, [A-Z0-9],
// case-insensitive input stored uppercase.
func ValidateCode(code string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if len(normalized) < minCodeLen || len(normalized) > maxCodeLen {
		return "", E(KindInvalidGameCode, "game code must be %d-%d characters, got %d", minCodeLen, maxCodeLen, len(normalized))
	}
	for _, r := range normalized {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", E(KindInvalidGameCode, "game code may only contain A-Z and 0-9")
		}
	}
	return normalized, nil
}

// ValidatePlayerID normalizes and checks a participant id: non-empty after
// trim, at most 50 chars, no control characters.
func ValidatePlayerID(id string) (string, error) {
	normalized := strings.TrimSpace(id)
	if normalized == "" {
		return "", E(KindInvalidPlayerID, "player id is empty")
	}
	if len(normalized) > maxPlayerIDLen {
		return "", E(KindInvalidPlayerID, "player id exceeds %d characters", maxPlayerIDLen)
	}
	for _, r := range normalized {
		if unicode.IsControl(r) {
			return "", E(KindInvalidPlayerID, "player id contains control characters")
		}
	}
	return normalized, nil
}
