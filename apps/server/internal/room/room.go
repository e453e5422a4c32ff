// Package room hosts one live session behind an actor goroutine. Every
// mutation and query is funneled through a single command queue, so the game
// engine never sees concurrent access and events leave the room in the exact
// order the engine produced them.
package room

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"chupistica-server/apps/server/internal/archive"
	"chupistica-server/apps/server/internal/bus"
	"chupistica-server/card"
	"chupistica-server/game"
	"chupistica-server/stats"
)

const (
	defaultQueueSize = 64
	archiveTimeout   = 10 * time.Second
)

// errClosed is what every caller gets once the room shut down. It carries the
// same kind as a lookup miss because for clients the two are the same thing.
var errClosed = game.E(game.KindGameNotFound, "session is closed")

type cmdKind int

const (
	cmdJoin cmdKind = iota
	cmdLeave
	cmdStart
	cmdDraw
	cmdActivate
	cmdVenganza
	cmdEnd
	cmdUpdateRules
	cmdResetRules
	cmdGetRules
	cmdSnapshot
	cmdHistory
	cmdStats
	cmdFinalSummary
)

// command is one message to the room actor. arg carries the card id, the
// venganza target, or the end reason depending on kind.
type command struct {
	kind     cmdKind
	actor    string
	arg      string
	rules    map[card.Rank]string
	deadline time.Time
	reply    chan result
}

type result struct {
	data any
	err  error
}

// Config tunes one room. Zero values fall back to sane defaults; a nil
// Archive simply disables archiving.
type Config struct {
	QueueSize int
	Archive   archive.Store
	Logger    *zap.Logger
	Clock     func() time.Time
}

// Room owns a session and its event stream.
type Room struct {
	code string

	mu         sync.RWMutex
	closed     bool
	stopOnce   sync.Once
	lastActive time.Time
	endedAt    time.Time

	// game and seq belong to the actor goroutine (plus New, which runs
	// before the goroutine starts). Nothing else may touch them.
	game *game.Session
	seq  uint64

	bus  *bus.Bus
	cmds chan command
	done chan struct{}

	archive archive.Store
	log     *zap.Logger
	now     func() time.Time
}

// New builds the session, announces gameCreated as seq 1 and starts the
// actor. The game config is validated by the engine.
func New(gameCfg game.Config, cfg Config) (*Room, error) {
	session, err := game.NewSession(gameCfg)
	if err != nil {
		return nil, err
	}

	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r := &Room{
		code:       session.Code(),
		game:       session,
		bus:        bus.New(),
		cmds:       make(chan command, cfg.QueueSize),
		done:       make(chan struct{}),
		archive:    cfg.Archive,
		now:        cfg.Clock,
		lastActive: cfg.Clock(),
	}
	r.log = cfg.Logger.With(zap.String("session", r.code))

	snap := session.Snapshot()
	r.publish(bus.EventGameCreated, CreatedPayload{
		Code:         snap.Code,
		Host:         snap.Host,
		Participants: snap.Participants,
		CreatedAt:    snap.CreatedAt,
	})

	go r.run()

	r.log.Info("session created", zap.String("host", snap.Host))
	return r, nil
}

func (r *Room) Code() string { return r.code }

// Subscribe attaches a consumer to the event stream. Callers must Cancel the
// subscription through Unsubscribe when done.
func (r *Room) Subscribe(buffer int) *bus.Subscription { return r.bus.Subscribe(buffer) }

func (r *Room) Unsubscribe(sub *bus.Subscription) { r.bus.Cancel(sub) }

func (r *Room) SubscriberCount() int { return r.bus.SubscriberCount() }

// Close stops the actor. Pending commands are answered with a closed error;
// subscribers see their streams end.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *Room) closeLocked() {
	r.closed = true
	r.stopOnce.Do(func() {
		close(r.done)
	})
}

func (r *Room) IsClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// IsIdleFor reports whether the room has had neither an accepted command nor
// a subscriber for at least ttl.
func (r *Room) IsIdleFor(ttl time.Duration) bool {
	r.mu.RLock()
	closed, last := r.closed, r.lastActive
	r.mu.RUnlock()

	if closed {
		return true
	}
	emptySince, ok := r.bus.IdleSince()
	if !ok {
		return false
	}
	now := r.now()
	return now.Sub(last) >= ttl && now.Sub(emptySince) >= ttl
}

// EndedSince reports when the session ended, if it has. The reaper uses it
// for the ended-grace sweep.
func (r *Room) EndedSince() (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.endedAt.IsZero() {
		return time.Time{}, false
	}
	return r.endedAt, true
}

// run is the actor loop.
func (r *Room) run() {
	for {
		select {
		case cmd := <-r.cmds:
			cmd.reply <- r.handle(cmd)
		case <-r.done:
			r.drain()
			return
		}
	}
}

// drain answers whatever was queued behind the close, then ends the stream.
func (r *Room) drain() {
	for {
		select {
		case cmd := <-r.cmds:
			cmd.reply <- result{err: errClosed}
		default:
			r.bus.Close()
			r.log.Info("session actor stopped")
			return
		}
	}
}

func (r *Room) handle(cmd command) result {
	// A command whose caller already gave up must not mutate the session.
	if !cmd.deadline.IsZero() && r.now().After(cmd.deadline) {
		return result{err: game.E(game.KindCancelled, "command expired before execution")}
	}
	r.touch()

	switch cmd.kind {
	case cmdJoin:
		return r.handleJoin(cmd.actor)
	case cmdLeave:
		return r.handleLeave(cmd.actor)
	case cmdStart:
		return r.handleStart(cmd.actor)
	case cmdDraw:
		return r.handleDraw(cmd.actor)
	case cmdActivate:
		return r.handleActivate(cmd.actor, cmd.arg)
	case cmdVenganza:
		return r.handleVenganza(cmd.actor, cmd.arg)
	case cmdEnd:
		return r.handleEnd(cmd.actor, cmd.arg)
	case cmdUpdateRules:
		return r.handleUpdateRules(cmd.actor, cmd.rules)
	case cmdResetRules:
		return r.handleResetRules(cmd.actor)
	case cmdGetRules:
		return result{data: r.game.RulesCopy()}
	case cmdSnapshot:
		return result{data: r.exportSnapshot()}
	case cmdHistory:
		return result{data: r.game.History()}
	case cmdStats:
		return result{data: stats.Compute(r.exportSnapshot())}
	case cmdFinalSummary:
		if r.game.Status() != game.StatusEnded {
			return result{err: game.E(game.KindWrongState, "final summary is only available once the session has ended")}
		}
		return result{data: stats.Summary(r.exportSnapshot())}
	default:
		return result{err: game.E(game.KindInternal, "unknown room command %d", int(cmd.kind))}
	}
}

func (r *Room) handleJoin(playerID string) result {
	res, err := r.game.Join(playerID)
	if err != nil {
		return result{err: err}
	}
	r.publish(bus.EventPlayerJoined, JoinedPayload{
		Player:       res.Participant,
		Participants: res.Participants,
		Host:         res.Host,
	})
	return result{data: res}
}

func (r *Room) handleLeave(playerID string) result {
	res, err := r.game.Leave(playerID)
	if err != nil {
		return result{err: err}
	}
	r.publish(bus.EventPlayerLeft, LeftPayload{
		Player:       res.Participant,
		Participants: res.Participants,
		Host:         res.Host,
		HostChanged:  res.HostChanged,
	})
	if res.Ended {
		r.finish(res.EndReason)
	}
	return result{data: res}
}

func (r *Room) handleStart(playerID string) result {
	res, err := r.game.Start(playerID)
	if err != nil {
		return result{err: err}
	}
	r.publish(bus.EventGameStarted, StartedPayload{
		StartedAt: res.StartedAt,
		TurnIndex: res.TurnIndex,
		Current:   res.Current,
		Direction: game.DirectionForward,
	})
	return result{data: res}
}

func (r *Room) handleDraw(playerID string) result {
	res, err := r.game.Draw(playerID)
	if err != nil {
		return result{err: err}
	}
	r.publish(bus.EventCardDrawn, DrawnPayload{
		Player:       playerID,
		Card:         res.Card,
		Outcome:      res.Outcome,
		DrawIndex:    res.DrawIndex,
		Remaining:    res.Remaining,
		DroppedSaved: res.DroppedSaved,
	})
	if stage := res.Outcome.KingStage; stage > 0 {
		r.publish(bus.EventKingsCupProgressed, KingsCupPayload{
			Player: playerID,
			Kings:  stage,
			Of:     game.KingsToEnd,
			Final:  res.Outcome.EndsSession,
		})
	}
	if res.Ended {
		r.finish(res.EndReason)
	} else {
		r.publish(bus.EventTurnChanged, TurnPayload{
			TurnIndex: res.TurnIndex,
			Current:   res.Current,
			Direction: res.Direction,
		})
	}
	return result{data: res}
}

func (r *Room) handleActivate(playerID, cardID string) result {
	res, err := r.game.Activate(playerID, cardID)
	if err != nil {
		return result{err: err}
	}
	r.publish(bus.EventCardActivated, ActivatedPayload{
		Player:    playerID,
		Card:      res.Card,
		SavedHeld: len(res.Remaining),
	})
	return result{data: res}
}

func (r *Room) handleVenganza(playerID, targetID string) result {
	res, err := r.game.ConsumeVenganza(playerID, targetID)
	if err != nil {
		return result{err: err}
	}
	r.publish(bus.EventVenganzaConsumed, VenganzaPayload{
		Player:         res.Owner,
		Target:         res.Target,
		Card:           res.Card,
		RemainingOwned: res.RemainingOwned,
	})
	return result{data: res}
}

func (r *Room) handleEnd(playerID, reason string) result {
	res, err := r.game.End(playerID, reason)
	if err != nil {
		return result{err: err}
	}
	r.finish(res.Reason)
	return result{data: res}
}

func (r *Room) handleUpdateRules(playerID string, updates map[card.Rank]string) result {
	res, err := r.game.UpdateRules(playerID, updates)
	if err != nil {
		return result{err: err}
	}
	r.publish(bus.EventRulesUpdated, RulesPayload{Rules: res.Rules})
	return result{data: res}
}

func (r *Room) handleResetRules(playerID string) result {
	res, err := r.game.ResetRules(playerID)
	if err != nil {
		return result{err: err}
	}
	r.publish(bus.EventRulesUpdated, RulesPayload{Rules: res.Rules})
	return result{data: res}
}

// finish publishes gameEnded and hands the finished session to the archive.
// The archived snapshot carries the stream watermark including the gameEnded
// event itself.
func (r *Room) finish(reason string) {
	snap := r.game.Snapshot()
	endedAt := r.now().UTC()
	if snap.EndedAt != nil {
		endedAt = *snap.EndedAt
	}
	r.publish(bus.EventGameEnded, EndedPayload{
		Reason:     reason,
		EndedAt:    endedAt,
		KingsCount: snap.KingsCount,
	})
	snap.Seq = r.seq

	r.mu.Lock()
	r.endedAt = endedAt
	r.mu.Unlock()

	r.log.Info("session ended",
		zap.String("reason", reason),
		zap.Int("draws", len(snap.History)),
		zap.Uint64("events", r.seq))

	if r.archive == nil {
		return
	}
	summary := stats.Summary(snap)
	store, logger := r.archive, r.log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := store.SaveFinished(ctx, snap, summary); err != nil {
			logger.Warn("archiving finished session failed", zap.Error(err))
		}
	}()
}

// exportSnapshot stamps the room's event watermark onto a fresh engine
// export. Only the actor goroutine may call it.
func (r *Room) exportSnapshot() game.Snapshot {
	snap := r.game.Snapshot()
	snap.Seq = r.seq
	return snap
}

func (r *Room) publish(typ string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Error("marshal event payload", zap.String("type", typ), zap.Error(err))
		return
	}
	r.seq++
	r.bus.Publish(bus.Event{
		Code: r.code,
		Seq:  r.seq,
		Type: typ,
		Data: data,
		At:   r.now().UTC(),
	})
}

func (r *Room) touch() {
	r.mu.Lock()
	r.lastActive = r.now()
	r.mu.Unlock()
}

// do submits one command and waits for the actor's answer. The context
// deadline rides along so the actor can skip commands whose callers already
// timed out.
func (r *Room) do(ctx context.Context, kind cmdKind, actor, arg string, rules map[card.Rank]string) (any, error) {
	cmd := command{
		kind:  kind,
		actor: actor,
		arg:   arg,
		rules: rules,
		reply: make(chan result, 1),
	}
	if dl, ok := ctx.Deadline(); ok {
		cmd.deadline = dl
	}

	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, errClosed
	}

	select {
	case r.cmds <- cmd:
	case <-r.done:
		return nil, errClosed
	case <-ctx.Done():
		return nil, game.E(game.KindCancelled, "command abandoned before execution: %v", ctx.Err())
	}

	select {
	case res := <-cmd.reply:
		return res.data, res.err
	case <-r.done:
		return nil, errClosed
	case <-ctx.Done():
		return nil, game.E(game.KindCancelled, "command abandoned awaiting result: %v", ctx.Err())
	}
}

func (r *Room) Join(ctx context.Context, playerID string) (game.JoinResult, error) {
	data, err := r.do(ctx, cmdJoin, playerID, "", nil)
	if err != nil {
		return game.JoinResult{}, err
	}
	return data.(game.JoinResult), nil
}

func (r *Room) Leave(ctx context.Context, playerID string) (game.LeaveResult, error) {
	data, err := r.do(ctx, cmdLeave, playerID, "", nil)
	if err != nil {
		return game.LeaveResult{}, err
	}
	return data.(game.LeaveResult), nil
}

func (r *Room) Start(ctx context.Context, playerID string) (game.StartResult, error) {
	data, err := r.do(ctx, cmdStart, playerID, "", nil)
	if err != nil {
		return game.StartResult{}, err
	}
	return data.(game.StartResult), nil
}

func (r *Room) Draw(ctx context.Context, playerID string) (game.DrawResult, error) {
	data, err := r.do(ctx, cmdDraw, playerID, "", nil)
	if err != nil {
		return game.DrawResult{}, err
	}
	return data.(game.DrawResult), nil
}

func (r *Room) Activate(ctx context.Context, playerID, cardID string) (game.ActivateResult, error) {
	data, err := r.do(ctx, cmdActivate, playerID, cardID, nil)
	if err != nil {
		return game.ActivateResult{}, err
	}
	return data.(game.ActivateResult), nil
}

func (r *Room) ConsumeVenganza(ctx context.Context, playerID, targetID string) (game.VenganzaResult, error) {
	data, err := r.do(ctx, cmdVenganza, playerID, targetID, nil)
	if err != nil {
		return game.VenganzaResult{}, err
	}
	return data.(game.VenganzaResult), nil
}

func (r *Room) End(ctx context.Context, playerID, reason string) (game.EndResult, error) {
	data, err := r.do(ctx, cmdEnd, playerID, reason, nil)
	if err != nil {
		return game.EndResult{}, err
	}
	return data.(game.EndResult), nil
}

func (r *Room) UpdateRules(ctx context.Context, playerID string, updates map[card.Rank]string) (game.RulesResult, error) {
	data, err := r.do(ctx, cmdUpdateRules, playerID, "", updates)
	if err != nil {
		return game.RulesResult{}, err
	}
	return data.(game.RulesResult), nil
}

func (r *Room) ResetRules(ctx context.Context, playerID string) (game.RulesResult, error) {
	data, err := r.do(ctx, cmdResetRules, playerID, "", nil)
	if err != nil {
		return game.RulesResult{}, err
	}
	return data.(game.RulesResult), nil
}

func (r *Room) Rules(ctx context.Context) (map[card.Rank]string, error) {
	data, err := r.do(ctx, cmdGetRules, "", "", nil)
	if err != nil {
		return nil, err
	}
	return data.(map[card.Rank]string), nil
}

func (r *Room) Snapshot(ctx context.Context) (game.Snapshot, error) {
	data, err := r.do(ctx, cmdSnapshot, "", "", nil)
	if err != nil {
		return game.Snapshot{}, err
	}
	return data.(game.Snapshot), nil
}

func (r *Room) History(ctx context.Context) ([]game.Event, error) {
	data, err := r.do(ctx, cmdHistory, "", "", nil)
	if err != nil {
		return nil, err
	}
	return data.([]game.Event), nil
}

func (r *Room) Stats(ctx context.Context) (stats.Stats, error) {
	data, err := r.do(ctx, cmdStats, "", "", nil)
	if err != nil {
		return stats.Stats{}, err
	}
	return data.(stats.Stats), nil
}

func (r *Room) FinalSummary(ctx context.Context) (stats.FinalSummary, error) {
	data, err := r.do(ctx, cmdFinalSummary, "", "", nil)
	if err != nil {
		return stats.FinalSummary{}, err
	}
	return data.(stats.FinalSummary), nil
}
