package card

import (
	"math/rand"
	"testing"
)

func TestFullDeckIsComplete(t *testing.T) {
	cards := FullDeck()
	if len(cards) != DeckSize {
		t.Fatalf("full deck size = %d, want %d", len(cards), DeckSize)
	}
	seen := make(map[Card]struct{}, DeckSize)
	for _, c := range cards {
		if !c.Valid() {
			t.Fatalf("full deck contains invalid card 0x%02x", byte(c))
		}
		if _, dup := seen[c]; dup {
			t.Fatalf("full deck contains duplicate %s", c)
		}
		seen[c] = struct{}{}
	}
}

func TestNewDeckShuffleIsSeedDeterministic(t *testing.T) {
	a := NewDeck(rand.New(rand.NewSource(7)))
	b := NewDeck(rand.New(rand.NewSource(7)))

	ac, bc := a.Cards(), b.Cards()
	for i := range ac {
		if ac[i] != bc[i] {
			t.Fatalf("same seed produced different orders at %d: %s vs %s", i, ac[i], bc[i])
		}
	}

	c := NewDeck(rand.New(rand.NewSource(8)))
	same := true
	for i, cc := range c.Cards() {
		if cc != ac[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("different seeds produced identical order")
	}
}

func TestDeckDrawPopsTail(t *testing.T) {
	d, err := NewDeckFromCards([]Card{CardHeart2, CardClub9, CardSpadeK})
	if err != nil {
		t.Fatalf("NewDeckFromCards err: %v", err)
	}
	if top, ok := d.Peek(); !ok || top != CardSpadeK {
		t.Fatalf("Peek = %s ok=%v, want %s", top, ok, CardSpadeK)
	}
	for _, want := range []Card{CardSpadeK, CardClub9, CardHeart2} {
		got, ok := d.Draw()
		if !ok {
			t.Fatalf("Draw unexpectedly empty")
		}
		if got != want {
			t.Fatalf("Draw = %s, want %s", got, want)
		}
	}
	if _, ok := d.Draw(); ok {
		t.Fatalf("Draw on empty deck must fail")
	}
	if d.Remaining() != 0 {
		t.Fatalf("Remaining = %d after exhaustion", d.Remaining())
	}
}

func TestDeckDrawExhaustsExactlyOnce(t *testing.T) {
	d := NewDeck(rand.New(rand.NewSource(1)))
	for i := 0; i < DeckSize; i++ {
		if _, ok := d.Draw(); !ok {
			t.Fatalf("deck empty after %d draws", i)
		}
		if d.Remaining() != DeckSize-i-1 {
			t.Fatalf("Remaining = %d after %d draws", d.Remaining(), i+1)
		}
	}
	if _, ok := d.Draw(); ok {
		t.Fatalf("53rd draw must fail")
	}
}

func TestNewDeckFromCardsValidation(t *testing.T) {
	if _, err := NewDeckFromCards([]Card{CardHeart2, CardHeart2}); err == nil {
		t.Fatalf("expected duplicate card error")
	}
	if _, err := NewDeckFromCards([]Card{CardInvalid}); err == nil {
		t.Fatalf("expected invalid card error")
	}
	tooMany := append(FullDeck(), CardHeartA)
	if _, err := NewDeckFromCards(tooMany); err == nil {
		t.Fatalf("expected oversize deck error")
	}
}
