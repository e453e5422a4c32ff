package card

import (
	"fmt"
	"math/rand"
)

// DeckSize is the number of cards in a full deck.
const DeckSize = 52

// FullDeck returns the 52 unique cards in suit-major order.
func FullDeck() []Card {
	out := make([]Card, 0, DeckSize)
	for _, s := range Suits {
		for _, r := range Ranks {
			out = append(out, Make(s, r))
		}
	}
	return out
}

// Deck is an ordered sequence of unique cards. Draw pops from the tail and
// the deck is never refilled.
type Deck struct {
	cards []Card
}

// NewDeck builds a full 52-card deck shuffled with Fisher-Yates using the
// given source. The source is injected so callers control determinism.
func NewDeck(rng *rand.Rand) *Deck {
	cards := FullDeck()
	for i := len(cards) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
	return &Deck{cards: cards}
}

// NewDeckFromCards builds a deck with a fixed order. Cards must be valid and
// unique; length may be anything up to 52 (restores carry partial decks).
func NewDeckFromCards(cards []Card) (*Deck, error) {
	if len(cards) > DeckSize {
		return nil, fmt.Errorf("deck holds at most %d cards, got %d", DeckSize, len(cards))
	}
	seen := make(map[Card]struct{}, len(cards))
	for i, c := range cards {
		if !c.Valid() {
			return nil, fmt.Errorf("invalid card 0x%02x at index %d", byte(c), i)
		}
		if _, ok := seen[c]; ok {
			return nil, fmt.Errorf("duplicate card %s at index %d", c.ID(), i)
		}
		seen[c] = struct{}{}
	}
	return &Deck{cards: append([]Card(nil), cards...)}, nil
}

// Draw removes and returns the tail card. ok is false when the deck is empty.
func (d *Deck) Draw() (Card, bool) {
	n := len(d.cards)
	if n == 0 {
		return CardInvalid, false
	}
	c := d.cards[n-1]
	d.cards = d.cards[:n-1]
	return c, true
}

// Peek returns the tail card without removing it.
func (d *Deck) Peek() (Card, bool) {
	if len(d.cards) == 0 {
		return CardInvalid, false
	}
	return d.cards[len(d.cards)-1], true
}

func (d *Deck) Remaining() int {
	return len(d.cards)
}

// Cards returns a copy of the remaining cards, draw order preserved.
func (d *Deck) Cards() []Card {
	return append([]Card(nil), d.cards...)
}
