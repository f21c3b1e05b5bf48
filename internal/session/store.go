package session

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"qoze/internal/types"
)

// Store persists finished sessions so they remain queryable after the
// process exits. Active sessions live in the supervisor only.
type Store struct {
	db *sql.DB
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	work_dir      TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	status        TEXT NOT NULL,
	turn_count    INTEGER NOT NULL DEFAULT 0,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	final_answer  TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS turns (
	session_id TEXT NOT NULL REFERENCES sessions(id),
	seq        INTEGER NOT NULL,
	response   TEXT NOT NULL,
	terminal   INTEGER NOT NULL,
	elapsed_ms INTEGER NOT NULL,
	PRIMARY KEY (session_id, seq)
);
`

// DefaultStorePath returns ~/.qoze/sessions.db.
func DefaultStorePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".qoze", "sessions.db"), nil
}

// OpenStore opens or creates the session database at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record is a persisted session summary.
type Record struct {
	ID          string
	WorkDir     string
	CreatedAt   time.Time
	Status      types.SessionStatus
	TurnCount   int
	Usage       types.Usage
	FinalAnswer string
}

// Save writes a terminal session and its turns.
func (s *Store) Save(rec Record, turns []types.Turn) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT OR REPLACE INTO sessions
		(id, work_dir, created_at, status, turn_count, input_tokens, output_tokens, final_answer)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.WorkDir, rec.CreatedAt, string(rec.Status),
		rec.TurnCount, rec.Usage.InputTokens, rec.Usage.OutputTokens, rec.FinalAnswer)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	for _, turn := range turns {
		terminal := 0
		if turn.Terminal {
			terminal = 1
		}
		_, err = tx.Exec(`INSERT OR REPLACE INTO turns
			(session_id, seq, response, terminal, elapsed_ms)
			VALUES (?, ?, ?, ?, ?)`,
			rec.ID, turn.Seq, turn.Response, terminal, turn.Elapsed)
		if err != nil {
			return fmt.Errorf("failed to save turn %d: %w", turn.Seq, err)
		}
	}
	return tx.Commit()
}

// List returns the most recent sessions, newest first.
func (s *Store) List(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT id, work_dir, created_at, status, turn_count,
		input_tokens, output_tokens, final_answer
		FROM sessions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var status string
		if err := rows.Scan(&rec.ID, &rec.WorkDir, &rec.CreatedAt, &status,
			&rec.TurnCount, &rec.Usage.InputTokens, &rec.Usage.OutputTokens,
			&rec.FinalAnswer); err != nil {
			return nil, err
		}
		rec.Status = types.SessionStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}
