package server

import (
	"context"
	"sort"
	"sync"

	"github.com/tessro/encore/internal/core"
)

type memRow struct {
	seq int64
	rec core.HistoryRecord
}

// MemoryRepository keeps records in process memory.
type MemoryRepository struct {
	mu   sync.Mutex
	seq  int64
	rows map[string][]memRow
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string][]memRow)}
}

// sortedLocked returns userID's rows newest first.
func (m *MemoryRepository) sortedLocked(userID string) []memRow {
	rows := append([]memRow(nil), m.rows[userID]...)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.rec.PlayedAt.Equal(b.rec.PlayedAt) {
			return a.rec.PlayedAt.After(b.rec.PlayedAt)
		}
		return a.seq > b.seq
	})
	return rows
}

func (m *MemoryRepository) List(ctx context.Context, userID string, limit int) ([]core.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.sortedLocked(userID)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]core.HistoryRecord, len(rows))
	for i, r := range rows {
		out[i] = r.rec
	}
	return out, nil
}

func (m *MemoryRepository) Upsert(ctx context.Context, rec core.HistoryRecord, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteLocked(rec.UserID, rec.Filename)
	m.seq++
	m.rows[rec.UserID] = append(m.rows[rec.UserID], memRow{seq: m.seq, rec: rec})
	m.pruneLocked(rec.UserID, keep)
	return nil
}

func (m *MemoryRepository) Delete(ctx context.Context, userID, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(userID, filename)
	return nil
}

func (m *MemoryRepository) UserIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.rows))
	for id, rows := range m.rows {
		if len(rows) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryRepository) Prune(ctx context.Context, userID string, keep int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneLocked(userID, keep), nil
}

func (m *MemoryRepository) Close() error {
	return nil
}

func (m *MemoryRepository) deleteLocked(userID, filename string) {
	rows := m.rows[userID]
	kept := rows[:0]
	for _, r := range rows {
		if r.rec.Filename != filename {
			kept = append(kept, r)
		}
	}
	m.rows[userID] = kept
}

func (m *MemoryRepository) pruneLocked(userID string, keep int) int64 {
	rows := m.sortedLocked(userID)
	if keep < 0 || len(rows) <= keep {
		return 0
	}
	removed := int64(len(rows) - keep)
	m.rows[userID] = rows[:keep]
	return removed
}
