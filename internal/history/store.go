// Package history keeps a per-session log of asked questions and the SQL
// produced for them. Recent entries feed few-shot examples and time hints
// back into SQL generation.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// DefaultSession is used when a request carries no session id.
const DefaultSession = "anon"

// PreviewRows is how many result rows an entry keeps.
const PreviewRows = 3

// Entry is one recorded exchange.
type Entry struct {
	ID           string
	SessionID    string
	Question     string
	SQL          string
	ValidatedSQL string
	RowsPreview  [][]any
	Error        string
	CreatedAt    time.Time
}

// EffectiveSQL returns the validated SQL when present, else the raw SQL.
func (e Entry) EffectiveSQL() string {
	if e.ValidatedSQL != "" {
		return e.ValidatedSQL
	}
	return e.SQL
}

// Store is a SQLite-backed history log.
type Store struct {
	db     *sql.DB
	path   string
	now    func() time.Time
	logger *slog.Logger
}

// Open opens (creating if needed) the history database at path and applies
// migrations. Use ":memory:" for a throwaway store.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dsn := ":memory:"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create history directory: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug("history store opened", slog.String("path", path))
	return &Store{db: db, path: path, now: time.Now, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record stores e and returns its id. Missing ids, sessions and timestamps
// are filled in; the rows preview is cut to PreviewRows.
func (s *Store) Record(ctx context.Context, e Entry) (string, error) {
	if s.db == nil {
		return "", fmt.Errorf("database not opened")
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.SessionID == "" {
		e.SessionID = DefaultSession
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}

	var preview *string
	if len(e.RowsPreview) > 0 {
		rows := e.RowsPreview
		if len(rows) > PreviewRows {
			rows = rows[:PreviewRows]
		}
		b, err := json.Marshal(rows)
		if err != nil {
			return "", fmt.Errorf("failed to encode rows preview: %w", err)
		}
		p := string(b)
		preview = &p
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (id, session_id, question, sql, validated_sql, rows_preview, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Question, e.SQL, nullable(e.ValidatedSQL), preview, nullable(e.Error), e.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to record history entry: %w", err)
	}
	return e.ID, nil
}

// Recent returns up to n entries of session, newest first.
func (s *Store) Recent(ctx context.Context, session string, n int) ([]Entry, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if session == "" {
		session = DefaultSession
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, question, sql, validated_sql, rows_preview, error, created_at
		 FROM history WHERE session_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		session, n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e                        Entry
			validated, preview, errs sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Question, &e.SQL, &validated, &preview, &errs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.ValidatedSQL = validated.String
		e.Error = errs.String
		if preview.Valid {
			if err := json.Unmarshal([]byte(preview.String), &e.RowsPreview); err != nil {
				s.logger.Debug("ignoring unreadable rows preview",
					slog.String("id", e.ID),
					slog.String("error", err.Error()))
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
