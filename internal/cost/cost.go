// Package cost persists API spend in a JSON ledger with three scopes: the
// global total, per-calendar-day buckets, and per-session buckets. Every
// record call updates all three under one lock so readers never see a
// half-applied request.
package cost

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/teknestudio/propbot/internal/utils"
)

// Usage is one request's worth of accounting.
type Usage struct {
	InputTokens         int64
	OutputTokens        int64
	CacheReadTokens     int64
	CacheCreationTokens int64
	Cost                float64
}

// Bucket accumulates usage for one scope. Files written before cache-aware
// pricing lack the cache fields; they decode as zero, which is correct.
type Bucket struct {
	Cost                float64 `json:"cost"`
	InputTokens         int64   `json:"input_tokens"`
	OutputTokens        int64   `json:"output_tokens"`
	CacheReadTokens     int64   `json:"cache_read_tokens"`
	CacheCreationTokens int64   `json:"cache_creation_tokens"`
	Requests            int64   `json:"requests"`
	LastUpdate          string  `json:"last_update,omitempty"`
}

func (b *Bucket) add(u Usage, now string) {
	b.Cost += u.Cost
	b.InputTokens += u.InputTokens
	b.OutputTokens += u.OutputTokens
	b.CacheReadTokens += u.CacheReadTokens
	b.CacheCreationTokens += u.CacheCreationTokens
	b.Requests++
	b.LastUpdate = now
}

// Snapshot is the full ledger state as stored on disk.
type Snapshot struct {
	Total      Bucket            `json:"total"`
	Sessions   map[string]Bucket `json:"sessions"`
	Daily      map[string]Bucket `json:"daily"`
	LastUpdate string            `json:"last_update,omitempty"`
}

// Totals summarizes the scopes touched by one record call, for user-facing
// cost messages.
type Totals struct {
	ThisRequest float64
	Session     float64
	Today       float64
	Total       float64
}

// Scope selects what a reset clears.
type Scope string

const (
	ScopeAll      Scope = "all"
	ScopeDaily    Scope = "daily"
	ScopeSessions Scope = "sessions"
	ScopeSession  Scope = "session"
)

// Ledger owns the tracking file. Safe for concurrent use within one process,
// which matches the bot's single-process deployment.
type Ledger struct {
	path string
	log  *slog.Logger
	mu   sync.Mutex
}

func NewLedger(path string, log *slog.Logger) *Ledger {
	return &Ledger{path: path, log: log}
}

// Record adds usage to the total, today's and the session's buckets as one
// indivisible update, then reports the running totals.
func (l *Ledger) Record(sessionID string, u Usage) (Totals, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data := l.load()
	now := time.Now()
	stamp := now.Format(time.RFC3339)
	today := now.Format("2006-01-02")

	data.Total.add(u, stamp)

	day := data.Daily[today]
	day.add(u, stamp)
	data.Daily[today] = day

	sess := data.Sessions[sessionID]
	sess.add(u, stamp)
	data.Sessions[sessionID] = sess

	data.LastUpdate = stamp

	if err := l.write(data); err != nil {
		return Totals{}, err
	}
	l.log.Info("usage recorded",
		"session", sessionID,
		"cost", fmt.Sprintf("%.4f", u.Cost),
		"today", fmt.Sprintf("%.4f", day.Cost),
		"total", fmt.Sprintf("%.4f", data.Total.Cost))
	return Totals{
		ThisRequest: u.Cost,
		Session:     sess.Cost,
		Today:       day.Cost,
		Total:       data.Total.Cost,
	}, nil
}

// Stats returns the current ledger state. A missing file reads as empty.
func (l *Ledger) Stats() *Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

// Reset clears the requested scope. Daily clears only the current day's
// bucket; prior days stay enumerable. All removes the whole file.
func (l *Ledger) Reset(scope Scope, sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if scope == ScopeAll {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove ledger: %w", err)
		}
		l.log.Info("cost ledger reset", "scope", scope)
		return nil
	}

	data := l.load()
	switch scope {
	case ScopeDaily:
		delete(data.Daily, time.Now().Format("2006-01-02"))
	case ScopeSessions:
		data.Sessions = map[string]Bucket{}
	case ScopeSession:
		if sessionID == "" {
			return fmt.Errorf("session reset requires a session id")
		}
		delete(data.Sessions, sessionID)
	default:
		return fmt.Errorf("unknown reset scope %q", scope)
	}
	if err := l.write(data); err != nil {
		return err
	}
	l.log.Info("cost ledger reset", "scope", scope, "session", sessionID)
	return nil
}

// load reads the ledger, degrading corrupt or missing files to a fresh one.
func (l *Ledger) load() *Snapshot {
	data := &Snapshot{
		Sessions: map[string]Bucket{},
		Daily:    map[string]Bucket{},
	}
	b, err := os.ReadFile(l.path)
	if err != nil {
		return data
	}
	if err := json.Unmarshal(b, data); err != nil {
		l.log.Warn("cost ledger unreadable, starting fresh", "path", l.path, "error", err)
		return &Snapshot{Sessions: map[string]Bucket{}, Daily: map[string]Bucket{}}
	}
	if data.Sessions == nil {
		data.Sessions = map[string]Bucket{}
	}
	if data.Daily == nil {
		data.Daily = map[string]Bucket{}
	}
	return data
}

func (l *Ledger) write(data *Snapshot) error {
	if err := utils.EnsureDir(filepath.Dir(l.path)); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}
	b, err := utils.PrettyJSON(data)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(l.path, b)
}
