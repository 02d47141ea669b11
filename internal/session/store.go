// Package session owns the locally persisted client state: the identity
// record (user profile plus token pair) and the attempt history. All reads go
// through accessors and all writes through the store's mutators, so
// persistence stays centralized and testable.
package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/scriptbloxx/brainsift-cli/internal/model"

	_ "modernc.org/sqlite"
)

const identityKey = "identity"

// Store is the sqlite-backed local state store. The identity record is
// loaded once at open and cached; mutators write through to disk.
type Store struct {
	db *sql.DB

	mu   sync.RWMutex
	user *model.User
}

// Open opens (creating if needed) the local state database and loads the
// persisted identity. An absent record means unauthenticated.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping state database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.loadIdentity(); err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS client_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id TEXT NOT NULL,
		exam_title TEXT NOT NULL,
		score REAL NOT NULL DEFAULT 0,
		correct_answers INTEGER NOT NULL,
		total_questions INTEGER NOT NULL,
		percentage INTEGER NOT NULL,
		taken_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) loadIdentity() error {
	raw, err := s.getState(identityKey)
	if err != nil {
		return err
	}
	if raw == "" {
		return nil
	}
	var u model.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		// A corrupt record is indistinguishable from no record; start
		// unauthenticated rather than refuse to run.
		slog.Warn("discarding unreadable identity record", "error", err)
		return s.deleteState(identityKey)
	}
	s.user = &u
	return nil
}

// setState upserts a key-value pair in the client_state table.
func (s *Store) setState(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO client_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// getState returns the value for a state key, empty string if missing.
func (s *Store) getState(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM client_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *Store) deleteState(key string) error {
	_, err := s.db.Exec(`DELETE FROM client_state WHERE key = ?`, key)
	return err
}

// Current returns a copy of the persisted identity, or nil when
// unauthenticated.
func (s *Store) Current() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Store) persistLocked() error {
	data, err := json.Marshal(s.user)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	return s.setState(identityKey, string(data))
}

// SaveLogin stores the identity returned by a successful login or signup.
func (s *Store) SaveLogin(u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *u
	s.user = &copied
	if err := s.persistLocked(); err != nil {
		return err
	}
	slog.Debug("identity saved", "user", u.Email, "role", u.Role)
	return nil
}

// UpdateTokens merges a refreshed token pair into the identity record. An
// empty refresh token keeps the stored one.
func (s *Store) UpdateTokens(access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return fmt.Errorf("no identity to update")
	}
	s.user.AccessToken = access
	if refresh != "" {
		s.user.RefreshToken = refresh
	}
	return s.persistLocked()
}

// UpdateProfile applies a partial profile edit to the identity record.
func (s *Store) UpdateProfile(p model.ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return fmt.Errorf("no identity to update")
	}
	if p.Name != nil {
		s.user.Name = *p.Name
	}
	if p.Bio != nil {
		s.user.Bio = *p.Bio
	}
	if p.AvatarURL != nil {
		s.user.AvatarURL = *p.AvatarURL
	}
	if p.Language != nil {
		s.user.Language = *p.Language
	}
	if p.Timezone != nil {
		s.user.Timezone = *p.Timezone
	}
	return s.persistLocked()
}

// Clear erases the identity record, forcing re-authentication.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	return s.deleteState(identityKey)
}

// AccessTokenExpiry decodes the exp claim of the stored access token without
// verifying the signature. Display-only: the request path relies on the
// server's 401, never on this clock.
func (s *Store) AccessTokenExpiry() (time.Time, bool) {
	u := s.Current()
	if u == nil || u.AccessToken == "" {
		return time.Time{}, false
	}
	token, _, err := jwt.NewParser().ParseUnverified(u.AccessToken, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
