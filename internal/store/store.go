package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pavelanni/screener/internal/model"

	_ "modernc.org/sqlite"
)

// ErrConflict is returned when an insert violates a uniqueness
// constraint (duplicate email or access code).
var ErrConflict = errors.New("conflicting record exists")

// ErrNotCommitted is returned by compare-and-set updates that matched
// no row: the flag was already set, or the candidate is final-locked.
var ErrNotCommitted = errors.New("update not committed")

// Store owns the single database handle shared by all components.
// database/sql provides the connection pooling; every mutation of
// candidate flags goes through a compare-and-set UPDATE so concurrent
// requests cannot double-commit.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS candidates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT UNIQUE NOT NULL,
		access_code TEXT UNIQUE NOT NULL,
		test_start DATETIME NOT NULL,
		test_end DATETIME NOT NULL,
		status TEXT NOT NULL DEFAULT 'Invited',
		text_done INTEGER NOT NULL DEFAULT 0,
		image_done INTEGER NOT NULL DEFAULT 0,
		audio_done INTEGER NOT NULL DEFAULT 0,
		video_done INTEGER NOT NULL DEFAULT 0,
		final_locked INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		candidate_id INTEGER NOT NULL,
		modality TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		verdict TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (candidate_id) REFERENCES candidates(id)
	);

	CREATE TABLE IF NOT EXISTS admin_users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES admin_users(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// flagColumn maps a modality to its candidates column. The switch is
// the whitelist: column names never come from request input.
func flagColumn(m model.Modality) (string, error) {
	switch m {
	case model.ModalityText:
		return "text_done", nil
	case model.ModalityImage:
		return "image_done", nil
	case model.ModalityAudio:
		return "audio_done", nil
	case model.ModalityVideo:
		return "video_done", nil
	}
	return "", fmt.Errorf("unknown modality %q", m)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
