// Package store persists console settings and request history in a local
// sqlite database.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// HistoryLimit is how many request-history records are kept per role.
const HistoryLimit = 10

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS request_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	role TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	params TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_request_history_role ON request_history(role, id);
`

// Store is the console's local persistence: a settings key-value table and
// the per-role request history.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get retrieves a setting by key. Returns empty string if not found.
func (s *Store) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set stores a setting by key (upsert).
func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')
	`, key, value)
	return err
}

// Delete removes a setting. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	_, err := s.db.Exec("DELETE FROM settings WHERE key = ?", key)
	return err
}

// RequestRecord is one remembered endpoint invocation.
type RequestRecord struct {
	Role      string         `json:"role"`
	Endpoint  string         `json:"endpoint"`
	Params    map[string]any `json:"params"`
	CreatedAt time.Time      `json:"createdAt"`
}

// SaveRequest remembers an endpoint invocation for a role. Invocations are
// unique per endpoint and parameter set; repeating one moves it to the
// front. Only the most recent HistoryLimit records are kept per role.
func (s *Store) SaveRequest(role, endpoint string, params map[string]any) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"DELETE FROM request_history WHERE role = ? AND endpoint = ? AND params = ?",
		role, endpoint, string(data),
	); err != nil {
		return err
	}

	if _, err := tx.Exec(
		"INSERT INTO request_history (role, endpoint, params, created_at) VALUES (?, ?, ?, ?)",
		role, endpoint, string(data), time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return err
	}

	if _, err := tx.Exec(`
		DELETE FROM request_history WHERE role = ? AND id NOT IN (
			SELECT id FROM request_history WHERE role = ? ORDER BY id DESC LIMIT ?
		)
	`, role, role, HistoryLimit); err != nil {
		return err
	}

	return tx.Commit()
}

// History returns a role's remembered invocations, most recent first.
func (s *Store) History(role string) ([]RequestRecord, error) {
	rows, err := s.db.Query(
		"SELECT role, endpoint, params, created_at FROM request_history WHERE role = ? ORDER BY id DESC",
		role,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []RequestRecord{}
	for rows.Next() {
		var rec RequestRecord
		var params, createdAt string
		if err := rows.Scan(&rec.Role, &rec.Endpoint, &params, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(params), &rec.Params); err != nil {
			return nil, fmt.Errorf("corrupt history record: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ClearHistory removes a role's history, or every role's when role is "".
func (s *Store) ClearHistory(role string) error {
	if role == "" {
		_, err := s.db.Exec("DELETE FROM request_history")
		return err
	}
	_, err := s.db.Exec("DELETE FROM request_history WHERE role = ?", role)
	return err
}
