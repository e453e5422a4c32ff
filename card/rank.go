package card

import (
	"fmt"
	"strconv"
	"strings"
)

// Rank is the card face value, A=1 through K=13.
type Rank byte

const (
	RankAce   Rank = 1
	RankJack  Rank = 11
	RankQueen Rank = 12
	RankKing  Rank = 13
)

func (r Rank) Valid() bool {
	return r >= 1 && r <= 13
}

// Token is the wire form: "A", "2".."10", "J", "Q", "K".
func (r Rank) Token() string {
	switch r {
	case RankAce:
		return "A"
	case RankJack:
		return "J"
	case RankQueen:
		return "Q"
	case RankKing:
		return "K"
	default:
		return strconv.Itoa(int(r))
	}
}

func (r Rank) String() string {
	if !r.Valid() {
		return "?"
	}
	return r.Token()
}

func ParseRank(s string) (Rank, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return RankAce, nil
	case "J":
		return RankJack, nil
	case "Q":
		return RankQueen, nil
	case "K":
		return RankKing, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 2 || n > 10 {
		return 0, fmt.Errorf("unknown rank %q", s)
	}
	return Rank(n), nil
}

// Ranks lists all thirteen ranks in ascending order.
var Ranks = []Rank{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13}

// MarshalText lets Rank serve as a JSON object key ("A", "7", "K").
func (r Rank) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid rank %d", byte(r))
	}
	return []byte(r.Token()), nil
}

func (r *Rank) UnmarshalText(b []byte) error {
	parsed, err := ParseRank(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
