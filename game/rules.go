package game

import (
	"chupistica-server/card"
)

// Outcome is the result of applying a drawn card's rule.
type Outcome struct {
	Kind          OutcomeKind `json:"kind"`
	Target        string      `json:"target,omitempty"`
	SavedRank     card.Rank   `json:"savedRank,omitempty"`
	KingStage     int         `json:"kingStage,omitempty"`
	ChooseOptions []string    `json:"chooseOptions,omitempty"`
	Message       string      `json:"message"`
	EndsSession   bool        `json:"endsSession"`
}

// Choice pairs offered by the choose-rule ranks.
var chooseOptionsByRank = map[card.Rank][]string{
	4:  {"más gato", "mi barquito"},
	8:  {"más joven", "colores"},
	10: {"al juez", "historia"},
}

// DefaultRules returns the stock rule text for all thirteen ranks. Sessions
// start with these; hosts may edit them while waiting.
func DefaultRules() map[card.Rank]string {
	return map[card.Rank]string{
		card.RankAce:   "Venganza: guarda la carta y cóbratela cuando termine la partida",
		2:              "Toma tú",
		3:              "Yo nunca nunca",
		4:              "Elige: más gato o mi barquito",
		5:              "Guarda la carta para usarla cuando quieras",
		6:              "Toma el primero que veas",
		7:              "Siete bomba: se invierte el sentido del juego",
		8:              "Elige: más joven o colores",
		9:              "Guarda la carta para usarla cuando quieras",
		10:             "Elige: al juez o historia",
		card.RankJack:  "Toma el de tu izquierda",
		card.RankQueen: "Toma el de tu derecha",
		card.RankKing:  "Rey: sirve tu trago en el vaso del centro",
	}
}

// outcomeFor maps a freshly drawn card to its rule outcome. It reads the
// pre-mutation session state: turn targets are relative to the drawer's
// position before the turn advances, and the king stage is the one the drawn
// king is about to occupy.
func (s *Session) outcomeFor(actor string, c card.Card) Outcome {
	out := Outcome{Message: s.rules[c.Rank()]}
	n := len(s.participants)

	switch c.Rank() {
	case card.RankAce:
		out.Kind = OutcomeVenganza
	case 2:
		out.Kind = OutcomeDrinkSelf
		out.Target = actor
	case 3:
		out.Kind = OutcomeYoNuncaNunca
	case 4, 8, 10:
		out.Kind = OutcomeChooseRule
		out.ChooseOptions = append([]string(nil), chooseOptionsByRank[c.Rank()]...)
	case 5, 9:
		out.Kind = OutcomeSaveCard
		out.SavedRank = c.Rank()
	case 6:
		out.Kind = OutcomeDrinkFirstSeen
	case 7:
		out.Kind = OutcomeSieteBomb
	case card.RankJack:
		out.Kind = OutcomeDrinkLeft
		out.Target = s.participants[(s.turnIndex+1)%n]
	case card.RankQueen:
		out.Kind = OutcomeDrinkRight
		out.Target = s.participants[(s.turnIndex-1+n)%n]
	case card.RankKing:
		stage := s.kingsCount + 1
		out.KingStage = stage
		if stage >= KingsToEnd {
			out.Kind = OutcomeEndTriggered
			out.EndsSession = true
		} else {
			out.Kind = OutcomeKingsCup
		}
	}
	return out
}
