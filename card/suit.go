package card

import (
	"fmt"
	"strings"
)

type Suit byte

const (
	Hearts   Suit = iota // ♥
	Diamonds             // ♦
	Clubs                // ♣
	Spades               // ♠
)

func (s Suit) String() string {
	switch s {
	case Hearts:
		return "♥"
	case Diamonds:
		return "♦"
	case Clubs:
		return "♣"
	case Spades:
		return "♠"
	}
	return "?"
}

// Token is the wire form used in card ids and exports.
func (s Suit) Token() string {
	switch s {
	case Hearts:
		return "hearts"
	case Diamonds:
		return "diamonds"
	case Clubs:
		return "clubs"
	case Spades:
		return "spades"
	}
	return "?"
}

func ParseSuit(s string) (Suit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hearts":
		return Hearts, nil
	case "diamonds":
		return Diamonds, nil
	case "clubs":
		return Clubs, nil
	case "spades":
		return Spades, nil
	}
	return 0, fmt.Errorf("unknown suit %q", s)
}

// Suits lists all four suits in encoding order.
var Suits = []Suit{Hearts, Diamonds, Clubs, Spades}

type Color byte

const (
	Red   Color = iota // hearts, diamonds
	Black              // clubs, spades
)

func (c Color) Token() string {
	if c == Red {
		return "red"
	}
	return "black"
}

func (s Suit) Color() Color {
	if s == Hearts || s == Diamonds {
		return Red
	}
	return Black
}
