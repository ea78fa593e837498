// Package archive persists chat history to SQLite so it survives
// process teardown. The transcript text log remains the audit surface;
// the archive backs the history endpoints and post-hoc inspection.
package archive

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Store writes archived turns to a SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// ArchivedTurn is one stored conversation turn.
type ArchivedTurn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionSummary describes one archived session.
type SessionSummary struct {
	SessionID string    `json:"session_id"`
	Turns     int       `json:"turns"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStore opens (or creates) the archive database at dbPath.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive migration: %w", err)
	}
	return s, nil
}

// DB exposes the underlying connection for stores sharing the database.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the turns table if it does not exist.
func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS turns (
			id         TEXT NOT NULL PRIMARY KEY,
			session_id TEXT NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, created_at)
	`)
	return err
}

// AppendTurn records one turn for a session.
func (s *Store) AppendTurn(sessionID, role, content string) error {
	_, err := s.db.Exec(`
		INSERT INTO turns (id, session_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.NewString(), sessionID, role, content,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// AppendExchange records a completed user/assistant exchange.
func (s *Store) AppendExchange(sessionID, userInput, response string) error {
	if err := s.AppendTurn(sessionID, "user", userInput); err != nil {
		return err
	}
	return s.AppendTurn(sessionID, "assistant", response)
}

// SessionTurns returns all turns for a session in chronological order.
func (s *Store) SessionTurns(sessionID string) ([]ArchivedTurn, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, role, content, created_at
		FROM turns WHERE session_id = ? ORDER BY created_at
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session turns: %w", err)
	}
	defer rows.Close()

	var turns []ArchivedTurn
	for rows.Next() {
		var t ArchivedTurn
		var createdAt string
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Sessions lists archived sessions, most recently updated first.
func (s *Store) Sessions() ([]SessionSummary, error) {
	rows, err := s.db.Query(`
		SELECT session_id, COUNT(*), MIN(created_at), MAX(created_at)
		FROM turns GROUP BY session_id ORDER BY MAX(created_at) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionSummary
	for rows.Next() {
		var ss SessionSummary
		var started, updated string
		if err := rows.Scan(&ss.SessionID, &ss.Turns, &started, &updated); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		ss.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		ss.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		sessions = append(sessions, ss)
	}
	return sessions, rows.Err()
}
