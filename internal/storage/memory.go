package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"quipbot/internal/trigger"
)

// Memory is a process-local store. State is lost on restart; it backs the
// "memory" driver and most tests.
type Memory struct {
	mu    sync.Mutex
	recs  []trigger.Record
	index map[string]int
	audit []AuditEntry
}

func NewMemory() *Memory {
	return &Memory{index: map[string]int{}}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) FindByTrigger(ctx context.Context, key string) (*trigger.Record, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[strings.ToLower(key)]
	if !ok {
		return nil, nil
	}
	rec := m.recs[i]
	return &rec, nil
}

func (m *Memory) FindAll(ctx context.Context) ([]trigger.Record, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]trigger.Record, len(m.recs))
	copy(out, m.recs)
	return out, nil
}

func (m *Memory) Insert(ctx context.Context, rec trigger.Record) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(rec.Trigger)
	if _, ok := m.index[key]; ok {
		return trigger.ErrExists
	}
	m.recs = append(m.recs, rec)
	m.index[key] = len(m.recs) - 1
	return nil
}

func (m *Memory) UpdateByTrigger(ctx context.Context, key string, upd trigger.Update) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[strings.ToLower(key)]
	if !ok {
		return trigger.ErrNotFound
	}
	m.recs[i].Response = upd.Response
	m.recs[i].Type = upd.Type
	m.recs[i].UpdatedAt = upd.UpdatedAt
	return nil
}

func (m *Memory) DeleteByTrigger(ctx context.Context, key string) (int64, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[strings.ToLower(key)]
	if !ok {
		return 0, nil
	}
	m.recs = append(m.recs[:i], m.recs[i+1:]...)
	m.index = buildIndex(m.recs)
	return 1, nil
}

func (m *Memory) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
	return nil
}

func (m *Memory) PruneAudit(ctx context.Context, cutoff time.Time) (int64, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.audit[:0]
	for _, e := range m.audit {
		if !e.At.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := int64(len(m.audit) - len(kept))
	m.audit = kept
	return removed, nil
}

func (m *Memory) AuditStats(ctx context.Context, since time.Time) (AuditStats, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := AuditStats{ByCommand: map[string]int64{}}
	for _, e := range m.audit {
		if e.At.Before(since) {
			continue
		}
		stats.Total++
		if !e.OK {
			stats.Failed++
		}
		stats.ByCommand[e.Command]++
	}
	return stats, nil
}
