package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"quipbot/internal/trigger"
	logx "quipbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// "trigger" stays quoted in every statement; it is a reserved word in SQL.

func (s *sqliteStore) FindByTrigger(ctx context.Context, key string) (*trigger.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT "trigger", response, type, created_at, updated_at FROM triggers WHERE "trigger" = ?`, key)
	rec, err := scanTrigger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *sqliteStore) FindAll(ctx context.Context) ([]trigger.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT "trigger", response, type, created_at, updated_at FROM triggers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []trigger.Record
	for rows.Next() {
		rec, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Insert(ctx context.Context, rec trigger.Record) error {
	var updated any
	if !rec.UpdatedAt.IsZero() {
		updated = rec.UpdatedAt.UnixMilli()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO triggers("trigger", response, type, created_at, updated_at)
		 VALUES(?,?,?,?,?)`,
		rec.Trigger, rec.Response, string(rec.Type), rec.CreatedAt.UnixMilli(), updated,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	// With valid values the only constraint that can reject the row is the
	// unique NOCASE index on "trigger".
	if n == 0 {
		return trigger.ErrExists
	}
	return nil
}

func (s *sqliteStore) UpdateByTrigger(ctx context.Context, key string, upd trigger.Update) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE triggers SET response = ?, type = ?, updated_at = ? WHERE "trigger" = ?`,
		upd.Response, string(upd.Type), upd.UpdatedAt.UnixMilli(), key,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return trigger.ErrNotFound
	}
	return nil
}

func (s *sqliteStore) DeleteByTrigger(ctx context.Context, key string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM triggers WHERE "trigger" = ?`, key)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, actor_id, actor_username, chat_id, command, target, ok, err, took_ms)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		e.At.UnixMilli(), e.ActorID, nullStr(e.ActorUsername), e.ChatID,
		e.Command, nullStr(e.Target), boolInt(e.OK), nullStr(e.Error), e.TookMS,
	)
	return err
}

func (s *sqliteStore) PruneAudit(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit WHERE at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteStore) AuditStats(ctx context.Context, since time.Time) (AuditStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT command, COUNT(*), SUM(CASE WHEN ok = 0 THEN 1 ELSE 0 END)
		 FROM audit WHERE at >= ? GROUP BY command`, since.UnixMilli())
	if err != nil {
		return AuditStats{}, err
	}
	defer rows.Close()

	stats := AuditStats{ByCommand: map[string]int64{}}
	for rows.Next() {
		var (
			command string
			total   int64
			failed  int64
		)
		if err := rows.Scan(&command, &total, &failed); err != nil {
			return AuditStats{}, err
		}
		stats.ByCommand[command] = total
		stats.Total += total
		stats.Failed += failed
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrigger(row rowScanner) (*trigger.Record, error) {
	var (
		rec       trigger.Record
		typ       string
		createdMS int64
		updatedMS sql.NullInt64
	)
	if err := row.Scan(&rec.Trigger, &rec.Response, &typ, &createdMS, &updatedMS); err != nil {
		return nil, err
	}
	rec.Type = trigger.ResponseType(typ)
	rec.CreatedAt = time.UnixMilli(createdMS).UTC()
	if updatedMS.Valid {
		rec.UpdatedAt = time.UnixMilli(updatedMS.Int64).UTC()
	}
	return &rec, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
