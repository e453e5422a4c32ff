// Package registry tracks every live room by session code and reaps the
// abandoned ones.
package registry

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"chupistica-server/apps/server/internal/room"
	"chupistica-server/card"
	"chupistica-server/game"
)

const (
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength      = 6
	maxCodeAttempts = 32

	defaultMaxSessions = 1024
	defaultIdleTimeout = 30 * time.Minute
	defaultEndedGrace  = 5 * time.Minute
)

// Config tunes the registry and provides the template for new rooms.
type Config struct {
	MaxSessions int
	IdleTimeout time.Duration
	EndedGrace  time.Duration

	// Seed fixes the code generator for tests (0 means time-based).
	Seed int64

	Room   room.Config
	Logger *zap.Logger
	Clock  func() time.Time
}

// CreateParams is everything a host may choose at session creation. Seed and
// DeckOverride never come off the wire; they exist for tests and tooling.
type CreateParams struct {
	HostID          string
	Code            string // empty means generate one
	MaxParticipants int
	SavePolicy      game.SavePolicy
	Rules           map[card.Rank]string
	Seed            int64
	DeckOverride    []card.Card
}

// Registry is the code-to-room map.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room.Room
	rng   *rand.Rand

	max         int
	idleTimeout time.Duration
	endedGrace  time.Duration

	roomCfg room.Config
	log     *zap.Logger
	now     func() time.Time
}

func New(cfg Config) *Registry {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = defaultMaxSessions
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.EndedGrace <= 0 {
		cfg.EndedGrace = defaultEndedGrace
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Room.Logger == nil {
		cfg.Room.Logger = cfg.Logger
	}
	return &Registry{
		rooms:       make(map[string]*room.Room),
		rng:         rand.New(rand.NewSource(cfg.Seed)),
		max:         cfg.MaxSessions,
		idleTimeout: cfg.IdleTimeout,
		endedGrace:  cfg.EndedGrace,
		roomCfg:     cfg.Room,
		log:         cfg.Logger,
		now:         cfg.Clock,
	}
}

// Create registers a new session. A custom code must be free; otherwise a
// random six-character code is generated.
func (r *Registry) Create(params CreateParams) (*room.Room, error) {
	gameCfg := game.Config{
		HostID:          params.HostID,
		MaxParticipants: params.MaxParticipants,
		SavePolicy:      params.SavePolicy,
		Rules:           params.Rules,
		Seed:            params.Seed,
		DeckOverride:    params.DeckOverride,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.rooms) >= r.max {
		return nil, game.E(game.KindCapacityExceeded, "server is at its limit of %d live sessions", r.max)
	}

	if params.Code != "" {
		normalized, err := game.ValidateCode(params.Code)
		if err != nil {
			return nil, err
		}
		if _, taken := r.rooms[normalized]; taken {
			return nil, game.E(game.KindCodeTaken, "session code %s is already in use", normalized)
		}
		gameCfg.Code = normalized
	} else {
		code, err := r.generateCodeLocked()
		if err != nil {
			return nil, err
		}
		gameCfg.Code = code
	}

	rm, err := room.New(gameCfg, r.roomCfg)
	if err != nil {
		return nil, err
	}
	r.rooms[rm.Code()] = rm
	r.log.Info("session registered",
		zap.String("session", rm.Code()),
		zap.Int("live", len(r.rooms)))
	return rm, nil
}

func (r *Registry) generateCodeLocked() (string, error) {
	buf := make([]byte, codeLength)
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		for i := range buf {
			buf[i] = codeAlphabet[r.rng.Intn(len(codeAlphabet))]
		}
		code := string(buf)
		if _, taken := r.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", game.E(game.KindCodeSpaceExhausted, "no free session code after %d attempts", maxCodeAttempts)
}

// Lookup resolves a code case-insensitively to its live room.
func (r *Registry) Lookup(code string) (*room.Room, error) {
	normalized, err := game.ValidateCode(code)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	rm := r.rooms[normalized]
	r.mu.Unlock()

	if rm == nil || rm.IsClosed() {
		return nil, game.E(game.KindGameNotFound, "no session with code %s", normalized)
	}
	return rm, nil
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Reap closes and drops rooms that are already closed, ended longer than the
// grace period ago, or idle past the timeout. Room state is inspected without
// holding the registry lock.
func (r *Registry) Reap() int {
	r.mu.Lock()
	candidates := make(map[string]*room.Room, len(r.rooms))
	for code, rm := range r.rooms {
		candidates[code] = rm
	}
	r.mu.Unlock()

	now := r.now()
	reaped := 0
	for code, rm := range candidates {
		reason := r.reapReason(rm, now)
		if reason == "" {
			continue
		}
		r.mu.Lock()
		delete(r.rooms, code)
		r.mu.Unlock()
		rm.Close()
		reaped++
		r.log.Info("session reaped",
			zap.String("session", code),
			zap.String("cause", reason))
	}
	return reaped
}

func (r *Registry) reapReason(rm *room.Room, now time.Time) string {
	if rm.IsClosed() {
		return "closed"
	}
	if endedAt, ok := rm.EndedSince(); ok && now.Sub(endedAt) >= r.endedGrace {
		return "ended"
	}
	if rm.IsIdleFor(r.idleTimeout) {
		return "idle"
	}
	return ""
}

// RunReaper sweeps on the given interval until ctx is done.
func (r *Registry) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Reap()
		case <-ctx.Done():
			return
		}
	}
}

// CloseAll shuts every room down, for server shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	rooms := make([]*room.Room, 0, len(r.rooms))
	for code, rm := range r.rooms {
		rooms = append(rooms, rm)
		delete(r.rooms, code)
	}
	r.mu.Unlock()

	for _, rm := range rooms {
		rm.Close()
	}
}
