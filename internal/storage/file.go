package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"quipbot/internal/trigger"
	logx "quipbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.triggers.snapshot.json (ordered record array)
//   - <prefix>.triggers.journal.jsonl (append-only op journal)
//   - <prefix>.audit.jsonl            (append-only JSON Lines)
//
// The journal is compacted into the snapshot after a batch of writes.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File
	recs         []trigger.Record
	index        map[string]int // lowercase key -> position in recs

	auditPath string
	auditFile *os.File

	writes int
}

const compactEvery = 64

type journalOp struct {
	Op  string         `json:"op"` // insert, update, delete
	Rec trigger.Record `json:"rec"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".triggers.snapshot.json"
	journalPath := prefix + ".triggers.journal.jsonl"
	auditPath := prefix + ".audit.jsonl"

	// Load records from snapshot, then replay the journal on top.
	var recs []trigger.Record
	_ = loadTriggerSnapshot(snapPath, &recs)
	recs, _ = replayTriggerJournal(journalPath, recs)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	af, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = jf.Close()
		return nil, err
	}

	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journalFile:  jf,
		recs:         recs,
		index:        buildIndex(recs),
		auditPath:    auditPath,
		auditFile:    af,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.journalFile != nil {
		err1 = s.journalFile.Close()
		s.journalFile = nil
	}
	if s.auditFile != nil {
		err2 = s.auditFile.Close()
		s.auditFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) FindByTrigger(ctx context.Context, key string) (*trigger.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[strings.ToLower(key)]
	if !ok {
		return nil, nil
	}
	rec := s.recs[i]
	return &rec, nil
}

func (s *fileStore) FindAll(ctx context.Context) ([]trigger.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]trigger.Record, len(s.recs))
	copy(out, s.recs)
	return out, nil
}

func (s *fileStore) Insert(ctx context.Context, rec trigger.Record) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return ErrClosed
	}
	key := strings.ToLower(rec.Trigger)
	if _, ok := s.index[key]; ok {
		return trigger.ErrExists
	}
	if err := s.appendOpLocked(journalOp{Op: "insert", Rec: rec}); err != nil {
		return err
	}
	s.recs = append(s.recs, rec)
	s.index[key] = len(s.recs) - 1
	return nil
}

func (s *fileStore) UpdateByTrigger(ctx context.Context, key string, upd trigger.Update) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return ErrClosed
	}
	i, ok := s.index[strings.ToLower(key)]
	if !ok {
		return trigger.ErrNotFound
	}
	rec := s.recs[i]
	rec.Response = upd.Response
	rec.Type = upd.Type
	rec.UpdatedAt = upd.UpdatedAt
	// The journal carries the full new state so replay can replace wholesale.
	if err := s.appendOpLocked(journalOp{Op: "update", Rec: rec}); err != nil {
		return err
	}
	s.recs[i] = rec
	return nil
}

func (s *fileStore) DeleteByTrigger(ctx context.Context, key string) (int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return 0, ErrClosed
	}
	i, ok := s.index[strings.ToLower(key)]
	if !ok {
		return 0, nil
	}
	if err := s.appendOpLocked(journalOp{Op: "delete", Rec: s.recs[i]}); err != nil {
		return 0, err
	}
	s.recs = append(s.recs[:i], s.recs[i+1:]...)
	s.index = buildIndex(s.recs)
	return 1, nil
}

func (s *fileStore) appendOpLocked(op journalOp) error {
	if err := json.NewEncoder(s.journalFile).Encode(op); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("trigger journal compact failed", logx.Any("err", err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.recs); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) PruneAudit(ctx context.Context, cutoff time.Time) (int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return 0, ErrClosed
	}

	entries, err := readAuditFile(s.auditPath)
	if err != nil {
		return 0, err
	}
	kept := entries[:0]
	for _, e := range entries {
		if !e.At.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := int64(len(entries) - len(kept))
	if removed == 0 {
		return 0, nil
	}

	tmp := s.auditPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(f)
	for _, e := range kept {
		if err := enc.Encode(e); err != nil {
			_ = f.Close()
			return 0, err
		}
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, s.auditPath); err != nil {
		return 0, err
	}

	// Swap the append handle onto the rewritten file.
	_ = s.auditFile.Close()
	af, err := os.OpenFile(s.auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.auditFile = nil
		return removed, err
	}
	s.auditFile = af
	return removed, nil
}

func (s *fileStore) AuditStats(ctx context.Context, since time.Time) (AuditStats, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := readAuditFile(s.auditPath)
	if err != nil {
		return AuditStats{}, err
	}
	stats := AuditStats{ByCommand: map[string]int64{}}
	for _, e := range entries {
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

func loadTriggerSnapshot(path string, out *[]trigger.Record) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(out)
}

func replayTriggerJournal(path string, recs []trigger.Record) ([]trigger.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return recs, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var op journalOp
		if err := json.Unmarshal(sc.Bytes(), &op); err != nil {
			continue
		}
		if op.Rec.Trigger == "" {
			continue
		}
		recs = applyOp(recs, op)
	}
	return recs, sc.Err()
}

func applyOp(recs []trigger.Record, op journalOp) []trigger.Record {
	key := strings.ToLower(op.Rec.Trigger)
	at := -1
	for i := range recs {
		if strings.ToLower(recs[i].Trigger) == key {
			at = i
			break
		}
	}
	switch op.Op {
	case "insert":
		if at < 0 {
			recs = append(recs, op.Rec)
		}
	case "update":
		if at >= 0 {
			recs[at] = op.Rec
		}
	case "delete":
		if at >= 0 {
			recs = append(recs[:at], recs[at+1:]...)
		}
	}
	return recs
}

func buildIndex(recs []trigger.Record) map[string]int {
	idx := make(map[string]int, len(recs))
	for i, r := range recs {
		idx[strings.ToLower(r.Trigger)] = i
	}
	return idx
}

func readAuditFile(path string) ([]AuditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	var out []AuditEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
