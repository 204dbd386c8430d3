// Package sqlitestore persists the session credential and cached profile in a
// local SQLite file so a session survives process restarts.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jrsteele09/go-task-client/credentials"
	"github.com/jrsteele09/go-task-client/users"
)

var _ credentials.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = db.Close()
		return nil, fmt.Errorf("chmod db path: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Put(cred credentials.Credential) error {
	return s.Save(cred, nil)
}

func (s *Store) Get() (*credentials.Credential, error) {
	values, err := s.load(credentials.KeyAccessToken, credentials.KeyRefreshToken)
	if err != nil {
		return nil, err
	}
	at, ok := values[credentials.KeyAccessToken]
	if !ok {
		return nil, nil
	}
	c := credentials.New(at, values[credentials.KeyRefreshToken])
	return &c, nil
}

func (s *Store) PutProfile(profile users.Profile) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	return s.write(map[string]string{credentials.KeyCurrentUser: string(raw)})
}

func (s *Store) GetProfile() (*users.Profile, error) {
	values, err := s.load(credentials.KeyCurrentUser)
	if err != nil {
		return nil, err
	}
	raw, ok := values[credentials.KeyCurrentUser]
	if !ok {
		return nil, nil
	}
	var p users.Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		// A corrupt cached profile is the same as no profile.
		return nil, nil
	}
	return &p, nil
}

func (s *Store) Save(cred credentials.Credential, profile *users.Profile) error {
	values := map[string]string{
		credentials.KeyAccessToken:  cred.AccessToken,
		credentials.KeyRefreshToken: cred.RefreshToken,
	}
	if profile != nil {
		raw, err := json.Marshal(profile)
		if err != nil {
			return fmt.Errorf("marshal profile: %w", err)
		}
		values[credentials.KeyCurrentUser] = string(raw)
	}
	return s.write(values)
}

func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM session_kv`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *Store) write(values map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin write: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for k, v := range values {
		if v == "" {
			if _, err := tx.Exec(`DELETE FROM session_kv WHERE key = ?`, k); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("delete %s: %w", k, err)
			}
			continue
		}
		if _, err := tx.Exec(`
INSERT INTO session_kv(key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, k, v, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit write: %w", err)
	}
	return nil
}

// load reads keys in a single statement so a concurrent Save is seen either
// entirely or not at all.
func (s *Store) load(keys ...string) (map[string]string, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := s.db.Query(`SELECT key, value FROM session_kv WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string, len(keys))
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	return values, nil
}
