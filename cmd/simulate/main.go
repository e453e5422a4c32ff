// Command simulate runs one full game locally and prints the final summary
// as JSON. It exercises the engine without a server: a fixed seed always
// produces the same deck, the same turn order and the same report.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"chupistica-server/game"
	"chupistica-server/stats"
)

func main() {
	players := flag.Int("players", 4, "number of participants (2-8)")
	seed := flag.Int64("seed", 1, "deck shuffle seed")
	policy := flag.String("policy", "dropOldest", "save policy when a fourth 5/9 is drawn: dropOldest or reject")
	flag.Parse()

	if err := run(*players, *seed, *policy); err != nil {
		fmt.Fprintln(os.Stderr, "simulate:", err)
		os.Exit(1)
	}
}

func run(players int, seed int64, policy string) error {
	if players < 2 || players > game.MaxParticipantsCap {
		return fmt.Errorf("players must be in 2..%d, got %d", game.MaxParticipantsCap, players)
	}
	savePolicy, err := game.ParseSavePolicy(policy)
	if err != nil {
		return err
	}

	s, err := game.NewSession(game.Config{
		Code:       "SIMUL8",
		HostID:     "player1",
		SavePolicy: savePolicy,
		Seed:       seed,
	})
	if err != nil {
		return err
	}
	for i := 2; i <= players; i++ {
		if _, err := s.Join(fmt.Sprintf("player%d", i)); err != nil {
			return err
		}
	}
	if _, err := s.Start("player1"); err != nil {
		return err
	}

	for s.Status() == game.StatusPlaying {
		cur, ok := s.CurrentParticipant()
		if !ok {
			return fmt.Errorf("playing session without a current participant")
		}
		res, err := s.Draw(cur)
		if game.IsKind(err, game.KindSaveCapacity) {
			// Reject policy: free a slot and take the turn again.
			held := s.SavedCardsOf(cur)
			if _, err := s.Activate(cur, held[0].Card.ID()); err != nil {
				return err
			}
			res, err = s.Draw(cur)
			if err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		// Spend the oldest saved card as soon as the hand is full, so the
		// activation path shows up in the history too.
		if res.Outcome.Kind == game.OutcomeSaveCard {
			if held := s.SavedCardsOf(cur); len(held) == game.MaxSavedCards {
				if _, err := s.Activate(cur, held[0].Card.ID()); err != nil {
					return err
				}
			}
		}
	}

	// Everyone with an ace takes one revenge on the next seat over.
	parts := s.Participants()
	for i, p := range parts {
		if s.VenganzaOwned(p) == 0 {
			continue
		}
		target := parts[(i+1)%len(parts)]
		if _, err := s.ConsumeVenganza(p, target); err != nil {
			return err
		}
	}

	out, err := json.MarshalIndent(stats.Summary(s.Snapshot()), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
