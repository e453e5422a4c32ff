// Package archive persists finished sessions so their snapshots and final
// summaries outlive the room reaper.
package archive

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"chupistica-server/game"
	"chupistica-server/stats"
)

// ErrNotFound means no finished session is archived under a code.
var ErrNotFound = errors.New("archive: finished session not found")

const defaultRecentLimit = 20

// Record is one archived finished session.
type Record struct {
	ID       string             `json:"id"`
	Code     string             `json:"code"`
	EndedAt  time.Time          `json:"endedAt"`
	Reason   string             `json:"reason"`
	Snapshot game.Snapshot      `json:"snapshot"`
	Summary  stats.FinalSummary `json:"summary"`
}

// Store keeps finished sessions. Rooms call SaveFinished once when a session
// ends; codes are recycled after reaping, so GetByCode returns the most
// recent run under that code.
type Store interface {
	SaveFinished(ctx context.Context, snap game.Snapshot, summary stats.FinalSummary) error
	GetByCode(ctx context.Context, code string) (Record, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

func newRecord(snap game.Snapshot, summary stats.FinalSummary) Record {
	rec := Record{
		ID:       uuid.NewString(),
		Code:     snap.Code,
		Reason:   snap.EndReason,
		Snapshot: snap,
		Summary:  summary,
	}
	if snap.EndedAt != nil {
		rec.EndedAt = snap.EndedAt.UTC()
	} else {
		rec.EndedAt = time.Now().UTC()
	}
	return rec
}

// MemoryStore is the in-process backend, also used by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) SaveFinished(_ context.Context, snap game.Snapshot, summary stats.FinalSummary) error {
	rec := newRecord(snap, summary)
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetByCode(_ context.Context, code string) (Record, error) {
	normalized, err := game.ValidateCode(code)
	if err != nil {
		return Record{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].Code == normalized {
			return m.records[i], nil
		}
	}
	return Record{}, ErrNotFound
}

func (m *MemoryStore) Recent(_ context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, limit)
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
