// Package history persists agent conversation turns in SQLite so each run
// can see a short window of what came before it in the same session.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

type Store struct {
	db      *sql.DB
	entropy *rand.Rand
	log     *slog.Logger
}

// Open opens or creates the history database at dbPath.
func Open(dbPath string, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &Store{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
		log:     log,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role       TEXT NOT NULL,
		model      TEXT NOT NULL,
		user_text  TEXT NOT NULL,
		reply_text TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Run is one completed agent turn: what the user asked and what came back.
type Run struct {
	ID        string
	SessionID string
	Role      string
	Model     string
	UserText  string
	ReplyText string
	CreatedAt time.Time
}

// Append stores a finished run and returns its generated id.
func (s *Store) Append(ctx context.Context, run Run) (string, error) {
	if run.SessionID == "" {
		return "", fmt.Errorf("session id cannot be empty")
	}
	now := time.Now().UTC()
	id := ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, session_id, role, model, user_text, reply_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, run.SessionID, run.Role, run.Model, run.UserText, run.ReplyText, now.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// Window returns the last n runs of a session in chronological order, ready
// to prepend to a conversation.
func (s *Store) Window(ctx context.Context, sessionID string, n int) ([]Run, error) {
	if n <= 0 {
		n = 5
	}
	// rowid keeps insert order even when two runs land in the same instant.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, model, user_text, reply_text, created_at
		FROM runs WHERE session_id = ?
		ORDER BY rowid DESC LIMIT ?`, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var createdAt string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Role, &r.Model, &r.UserText, &r.ReplyText, &createdAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			r.CreatedAt = t
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Clear drops all runs of one session. Used by /reset.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.log.Info("cleared session history", "session", sessionID, "runs", n)
	}
	return nil
}
