package card

import (
	"fmt"
	"strings"
)

// Card is one playing card packed into a byte.
//
// Encoding:
// - high 4 bits: suit (0:Hearts, 1:Diamonds, 2:Clubs, 3:Spades)
// - low 4 bits: rank (1:A, 2..10, 11:J, 12:Q, 13:K)
type Card byte

// Make packs a suit and rank into a Card. It does not validate; use Valid.
func Make(s Suit, r Rank) Card {
	return Card(byte(s)<<4 | byte(r))
}

func (c Card) Suit() Suit {
	return Suit(c >> 4)
}

func (c Card) Rank() Rank {
	return Rank(c & 0x0F)
}

// Valid reports whether the byte decodes to one of the 52 real cards.
func (c Card) Valid() bool {
	r := c & 0x0F
	s := c >> 4
	return r >= 1 && r <= 13 && s <= 3
}

// Value is the numeric rank value: A=1, number cards face value, J=11, Q=12, K=13.
func (c Card) Value() int {
	return int(c & 0x0F)
}

func (c Card) Color() Color {
	return c.Suit().Color()
}

func (c Card) IsFace() bool {
	r := c.Rank()
	return r >= RankJack && r <= RankKing
}

// ID is the stable wire identifier, "<rank>_<suit>": "5_hearts", "A_spades".
func (c Card) ID() string {
	return c.Rank().Token() + "_" + c.Suit().Token()
}

func (c Card) String() string {
	if !c.Valid() {
		return "Invalid"
	}
	return c.Rank().Token() + c.Suit().String()
}

// ParseID is the inverse of ID. Input is case-insensitive and trimmed.
func ParseID(s string) (Card, error) {
	id := strings.TrimSpace(s)
	i := strings.IndexByte(id, '_')
	if i <= 0 || i == len(id)-1 {
		return CardInvalid, fmt.Errorf("malformed card id %q", s)
	}
	r, err := ParseRank(id[:i])
	if err != nil {
		return CardInvalid, fmt.Errorf("malformed card id %q: %v", s, err)
	}
	st, err := ParseSuit(id[i+1:])
	if err != nil {
		return CardInvalid, fmt.Errorf("malformed card id %q: %v", s, err)
	}
	return Make(st, r), nil
}

func (c Card) MarshalJSON() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid card 0x%02x", byte(c))
	}
	return []byte(`"` + c.ID() + `"`), nil
}

func (c *Card) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("card must be a JSON string, got %s", string(b))
	}
	parsed, err := ParseID(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
