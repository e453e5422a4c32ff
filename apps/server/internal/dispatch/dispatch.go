// Package dispatch turns wire command envelopes into room operations. It owns
// the stateless half of validation (shapes, formats, required fields); the
// room actor owns everything that depends on session state.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"chupistica-server/apps/server/internal/registry"
	"chupistica-server/apps/server/internal/room"
	"chupistica-server/card"
	"chupistica-server/game"
)

// Wire command types.
const (
	CmdCreateGame      = "createGame"
	CmdJoinGame        = "joinGame"
	CmdLeaveGame       = "leaveGame"
	CmdStartGame       = "startGame"
	CmdDrawCard        = "drawCard"
	CmdActivateCard    = "activateCard"
	CmdUseVenganza     = "useVenganza"
	CmdEndGame         = "endGame"
	CmdUpdateRules     = "updateRules"
	CmdGetRules        = "getRules"
	CmdResetRules      = "resetRules"
	CmdGetGameState    = "getGameState"
	CmdGetHistory      = "getHistory"
	CmdGetStats        = "getStats"
	CmdGetFinalSummary = "getFinalSummary"
)

// Command is the transport-agnostic request envelope. Code routes to a
// session; for createGame it is the optional custom code instead.
type Command struct {
	Type       string          `json:"type"`
	Code       string          `json:"code,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	DeadlineMs int64           `json:"deadlineMs,omitempty"`
}

// Response is the answer envelope. Exactly one of Data and Error is set.
type Response struct {
	OK    bool       `json:"ok"`
	Type  string     `json:"type"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Config tunes the dispatcher.
type Config struct {
	// DefaultTimeout bounds commands that carry no deadlineMs. Zero means
	// no default bound.
	DefaultTimeout time.Duration
	Logger         *zap.Logger
}

type Dispatcher struct {
	registry *registry.Registry
	timeout  time.Duration
	log      *zap.Logger
}

func New(reg *registry.Registry, cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Dispatcher{
		registry: reg,
		timeout:  cfg.DefaultTimeout,
		log:      cfg.Logger,
	}
}

// Handle runs one command to completion and never panics the transport: every
// outcome is an envelope.
func (d *Dispatcher) Handle(ctx context.Context, cmd Command) Response {
	ctx, cancel := d.commandContext(ctx, cmd.DeadlineMs)
	defer cancel()

	data, err := d.route(ctx, cmd)
	if err != nil {
		kind := game.KindOf(err)
		if kind == game.KindInternal {
			d.log.Error("command failed",
				zap.String("type", cmd.Type),
				zap.String("session", cmd.Code),
				zap.Error(err))
		}
		return Response{OK: false, Type: cmd.Type, Error: errorBody(err)}
	}
	return Response{OK: true, Type: cmd.Type, Data: data}
}

func (d *Dispatcher) commandContext(ctx context.Context, deadlineMs int64) (context.Context, context.CancelFunc) {
	if deadlineMs > 0 {
		return context.WithTimeout(ctx, time.Duration(deadlineMs)*time.Millisecond)
	}
	if d.timeout > 0 {
		return context.WithTimeout(ctx, d.timeout)
	}
	return ctx, func() {}
}

// errorBody keeps domain error messages and hides everything else behind the
// Internal kind.
func errorBody(err error) *ErrorBody {
	var ge *game.Error
	if errors.As(err, &ge) {
		return &ErrorBody{Kind: string(ge.Kind), Message: ge.Message}
	}
	return &ErrorBody{Kind: string(game.KindInternal), Message: "internal error"}
}

func (d *Dispatcher) route(ctx context.Context, cmd Command) (any, error) {
	switch cmd.Type {
	case CmdCreateGame:
		return d.handleCreate(ctx, cmd)
	case CmdJoinGame:
		return d.handleJoin(ctx, cmd)
	case CmdLeaveGame:
		return d.handleLeave(ctx, cmd)
	case CmdStartGame:
		return d.handleStart(ctx, cmd)
	case CmdDrawCard:
		return d.handleDraw(ctx, cmd)
	case CmdActivateCard:
		return d.handleActivate(ctx, cmd)
	case CmdUseVenganza:
		return d.handleVenganza(ctx, cmd)
	case CmdEndGame:
		return d.handleEnd(ctx, cmd)
	case CmdUpdateRules:
		return d.handleUpdateRules(ctx, cmd)
	case CmdResetRules:
		return d.handleResetRules(ctx, cmd)
	case CmdGetRules:
		rm, err := d.registry.Lookup(cmd.Code)
		if err != nil {
			return nil, err
		}
		rules, err := rm.Rules(ctx)
		if err != nil {
			return nil, err
		}
		return room.RulesPayload{Rules: rules}, nil
	case CmdGetGameState:
		rm, err := d.registry.Lookup(cmd.Code)
		if err != nil {
			return nil, err
		}
		return rm.Snapshot(ctx)
	case CmdGetHistory:
		rm, err := d.registry.Lookup(cmd.Code)
		if err != nil {
			return nil, err
		}
		return rm.History(ctx)
	case CmdGetStats:
		rm, err := d.registry.Lookup(cmd.Code)
		if err != nil {
			return nil, err
		}
		return rm.Stats(ctx)
	case CmdGetFinalSummary:
		rm, err := d.registry.Lookup(cmd.Code)
		if err != nil {
			return nil, err
		}
		return rm.FinalSummary(ctx)
	default:
		return nil, game.E(game.KindInternal, "unsupported command type %q", cmd.Type)
	}
}

type createPayload struct {
	HostID          string            `json:"hostId"`
	MaxParticipants int               `json:"maxParticipants,omitempty"`
	SavePolicy      string            `json:"savePolicy,omitempty"`
	Rules           map[string]string `json:"rules,omitempty"`
}

type playerPayload struct {
	PlayerID string `json:"playerId"`
}

type activatePayload struct {
	PlayerID string `json:"playerId"`
	CardID   string `json:"cardId"`
}

type venganzaPayload struct {
	PlayerID string `json:"playerId"`
	TargetID string `json:"targetId"`
}

type endPayload struct {
	PlayerID string `json:"playerId"`
	Reason   string `json:"reason,omitempty"`
}

type updateRulesPayload struct {
	PlayerID string            `json:"playerId"`
	Rules    map[string]string `json:"rules"`
}

// parseRuleKeys turns wire rank tokens ("A", "7", "K") into engine ranks and
// rejects empty rule texts.
func parseRuleKeys(raw map[string]string) (map[card.Rank]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[card.Rank]string, len(raw))
	for k, text := range raw {
		rank, err := card.ParseRank(k)
		if err != nil {
			return nil, game.E(game.KindInvalidRules, "unknown rank %q in rules", k)
		}
		if strings.TrimSpace(text) == "" {
			return nil, game.E(game.KindInvalidRules, "empty rule text for rank %s", rank)
		}
		out[rank] = text
	}
	return out, nil
}

// decodePayload maps payload problems to InvalidPlayerId: every mutating
// command's payload is keyed on playerId, so an undecodable payload cannot
// satisfy that requirement.
func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return game.E(game.KindInvalidPlayerID, "command payload is missing")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return game.E(game.KindInvalidPlayerID, "malformed command payload: %v", err)
	}
	return nil
}

func (d *Dispatcher) handleCreate(ctx context.Context, cmd Command) (any, error) {
	var p createPayload
	if err := decodePayload(cmd.Payload, &p); err != nil {
		return nil, err
	}
	host, err := game.ValidatePlayerID(p.HostID)
	if err != nil {
		return nil, err
	}
	if p.MaxParticipants != 0 && (p.MaxParticipants < 2 || p.MaxParticipants > game.MaxParticipantsCap) {
		return nil, game.E(game.KindInvalidRules, "maxParticipants must be 2..%d", game.MaxParticipantsCap)
	}
	policy, err := game.ParseSavePolicy(p.SavePolicy)
	if err != nil {
		return nil, game.E(game.KindInvalidRules, "savePolicy must be dropOldest or reject, got %q", p.SavePolicy)
	}
	rules, err := parseRuleKeys(p.Rules)
	if err != nil {
		return nil, err
	}

	rm, err := d.registry.Create(registry.CreateParams{
		HostID:          host,
		Code:            cmd.Code,
		MaxParticipants: p.MaxParticipants,
		SavePolicy:      policy,
		Rules:           rules,
	})
	if err != nil {
		return nil, err
	}
	return rm.Snapshot(ctx)
}

func (d *Dispatcher) handleJoin(ctx context.Context, cmd Command) (any, error) {
	player, rm, err := d.playerAndRoom(cmd)
	if err != nil {
		return nil, err
	}
	res, err := rm.Join(ctx, player)
	if err != nil {
		return nil, err
	}
	return room.JoinedPayload{
		Player:       res.Participant,
		Participants: res.Participants,
		Host:         res.Host,
	}, nil
}

func (d *Dispatcher) handleLeave(ctx context.Context, cmd Command) (any, error) {
	player, rm, err := d.playerAndRoom(cmd)
	if err != nil {
		return nil, err
	}
	res, err := rm.Leave(ctx, player)
	if err != nil {
		return nil, err
	}
	return room.LeftPayload{
		Player:       res.Participant,
		Participants: res.Participants,
		Host:         res.Host,
		HostChanged:  res.HostChanged,
	}, nil
}

func (d *Dispatcher) handleStart(ctx context.Context, cmd Command) (any, error) {
	player, rm, err := d.playerAndRoom(cmd)
	if err != nil {
		return nil, err
	}
	res, err := rm.Start(ctx, player)
	if err != nil {
		return nil, err
	}
	return room.StartedPayload{
		StartedAt: res.StartedAt,
		TurnIndex: res.TurnIndex,
		Current:   res.Current,
		Direction: game.DirectionForward,
	}, nil
}

func (d *Dispatcher) handleDraw(ctx context.Context, cmd Command) (any, error) {
	player, rm, err := d.playerAndRoom(cmd)
	if err != nil {
		return nil, err
	}
	res, err := rm.Draw(ctx, player)
	if err != nil {
		return nil, err
	}
	return room.DrawnPayload{
		Player:       player,
		Card:         res.Card,
		Outcome:      res.Outcome,
		DrawIndex:    res.DrawIndex,
		Remaining:    res.Remaining,
		DroppedSaved: res.DroppedSaved,
	}, nil
}

func (d *Dispatcher) handleActivate(ctx context.Context, cmd Command) (any, error) {
	var p activatePayload
	if err := decodePayload(cmd.Payload, &p); err != nil {
		return nil, err
	}
	player, err := game.ValidatePlayerID(p.PlayerID)
	if err != nil {
		return nil, err
	}
	if _, err := card.ParseID(p.CardID); err != nil {
		return nil, game.E(game.KindInvalidCard, "malformed card id %q", p.CardID)
	}
	rm, err := d.registry.Lookup(cmd.Code)
	if err != nil {
		return nil, err
	}
	res, err := rm.Activate(ctx, player, p.CardID)
	if err != nil {
		return nil, err
	}
	return room.ActivatedPayload{
		Player:    player,
		Card:      res.Card,
		SavedHeld: len(res.Remaining),
	}, nil
}

func (d *Dispatcher) handleVenganza(ctx context.Context, cmd Command) (any, error) {
	var p venganzaPayload
	if err := decodePayload(cmd.Payload, &p); err != nil {
		return nil, err
	}
	player, err := game.ValidatePlayerID(p.PlayerID)
	if err != nil {
		return nil, err
	}
	target, err := game.ValidatePlayerID(p.TargetID)
	if err != nil {
		return nil, game.E(game.KindInvalidTargetPlayer, "venganza target: %v", err)
	}
	rm, err := d.registry.Lookup(cmd.Code)
	if err != nil {
		return nil, err
	}
	res, err := rm.ConsumeVenganza(ctx, player, target)
	if err != nil {
		return nil, err
	}
	return room.VenganzaPayload{
		Player:         res.Owner,
		Target:         res.Target,
		Card:           res.Card,
		RemainingOwned: res.RemainingOwned,
	}, nil
}

func (d *Dispatcher) handleEnd(ctx context.Context, cmd Command) (any, error) {
	var p endPayload
	if err := decodePayload(cmd.Payload, &p); err != nil {
		return nil, err
	}
	player, err := game.ValidatePlayerID(p.PlayerID)
	if err != nil {
		return nil, err
	}
	rm, err := d.registry.Lookup(cmd.Code)
	if err != nil {
		return nil, err
	}
	res, err := rm.End(ctx, player, p.Reason)
	if err != nil {
		return nil, err
	}
	snap, err := rm.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return room.EndedPayload{
		Reason:     res.Reason,
		EndedAt:    res.EndedAt,
		KingsCount: snap.KingsCount,
	}, nil
}

func (d *Dispatcher) handleUpdateRules(ctx context.Context, cmd Command) (any, error) {
	var p updateRulesPayload
	if err := decodePayload(cmd.Payload, &p); err != nil {
		return nil, err
	}
	player, err := game.ValidatePlayerID(p.PlayerID)
	if err != nil {
		return nil, err
	}
	if len(p.Rules) == 0 {
		return nil, game.E(game.KindInvalidRules, "rules update carries no entries")
	}
	rules, err := parseRuleKeys(p.Rules)
	if err != nil {
		return nil, err
	}
	rm, err := d.registry.Lookup(cmd.Code)
	if err != nil {
		return nil, err
	}
	res, err := rm.UpdateRules(ctx, player, rules)
	if err != nil {
		return nil, err
	}
	return room.RulesPayload{Rules: res.Rules}, nil
}

func (d *Dispatcher) handleResetRules(ctx context.Context, cmd Command) (any, error) {
	player, rm, err := d.playerAndRoom(cmd)
	if err != nil {
		return nil, err
	}
	res, err := rm.ResetRules(ctx, player)
	if err != nil {
		return nil, err
	}
	return room.RulesPayload{Rules: res.Rules}, nil
}

// playerAndRoom covers the common decode-validate-lookup prefix of commands
// whose payload is just a playerId.
func (d *Dispatcher) playerAndRoom(cmd Command) (string, *room.Room, error) {
	var p playerPayload
	if err := decodePayload(cmd.Payload, &p); err != nil {
		return "", nil, err
	}
	player, err := game.ValidatePlayerID(p.PlayerID)
	if err != nil {
		return "", nil, err
	}
	rm, err := d.registry.Lookup(cmd.Code)
	if err != nil {
		return "", nil, err
	}
	return player, rm, nil
}
