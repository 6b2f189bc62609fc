package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/pavelanni/screener/internal/model"
)

const authSessionTTL = 24 * time.Hour

// CreateAdminUser inserts a reviewer account.
func (s *Store) CreateAdminUser(u model.AdminUser) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO admin_users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		u.Username, u.PasswordHash, time.Now(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrConflict
		}
		slog.Error("failed to create admin user", "username", u.Username, "error", err)
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	slog.Info("created admin user", "id", id, "username", u.Username)
	return id, nil
}

// GetAdminUserByUsername returns an admin by username, or nil if absent.
func (s *Store) GetAdminUserByUsername(username string) (*model.AdminUser, error) {
	var u model.AdminUser
	err := s.db.QueryRow(
		`SELECT id, username, password_hash, created_at FROM admin_users WHERE username = ?`,
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// AdminUserCount returns the total number of admin accounts.
func (s *Store) AdminUserCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM admin_users`).Scan(&count)
	return count, err
}

// CreateAuthSession creates a new session token for an admin user.
func (s *Store) CreateAuthSession(userID int64) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		token, userID, now, now.Add(authSessionTTL),
	)
	if err != nil {
		return "", err
	}
	return token, nil
}

// GetAuthSession returns the session for the given token, or nil if
// missing or expired.
func (s *Store) GetAuthSession(token string) (*model.AuthSession, error) {
	var sess model.AuthSession
	err := s.db.QueryRow(
		`SELECT id, user_id, created_at, expires_at FROM auth_sessions WHERE id = ?`, token,
	).Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(sess.ExpiresAt) {
		_ = s.DeleteAuthSession(token)
		return nil, nil
	}
	return &sess, nil
}

// DeleteAuthSession removes a session token.
func (s *Store) DeleteAuthSession(token string) error {
	_, err := s.db.Exec(`DELETE FROM auth_sessions WHERE id = ?`, token)
	return err
}

// CleanupExpiredSessions removes all expired auth sessions.
func (s *Store) CleanupExpiredSessions() error {
	_, err := s.db.Exec(`DELETE FROM auth_sessions WHERE expires_at < ?`, time.Now())
	return err
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
