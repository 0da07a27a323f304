package storage

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// APIKey represents an operator-managed client key. Only the hash and a
// short prefix are stored; the secret itself is returned once at creation.
type APIKey struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	Revoked    bool       `json:"revoked"`
}

// GenerateAPIKeyValue creates a random key string suitable for clients.
func GenerateAPIKeyValue() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

// CreateAPIKey stores a new key record, hashing the provided secret.
func (s *Store) CreateAPIKey(name, secret string) (*APIKey, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "key-" + strings.ToLower(ulid.Make().String())
	}

	now := time.Now().UTC()
	id := strings.ToLower(ulid.Make().String())

	_, err := s.db.Exec(`
		INSERT INTO api_keys (id, name, key_hash, key_prefix, created_at, revoked)
		VALUES (?, ?, ?, ?, ?, 0)
	`, id, name, hashSecret(secret), keyPrefix(secret), now)
	if err != nil {
		return nil, err
	}

	return &APIKey{
		ID:        id,
		Name:      name,
		Prefix:    keyPrefix(secret),
		CreatedAt: now,
		Revoked:   false,
	}, nil
}

// ListAPIKeys returns active and revoked keys for operator review.
func (s *Store) ListAPIKeys() ([]APIKey, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.Query(`
		SELECT id, name, key_prefix, created_at, last_used_at, revoked
		FROM api_keys
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var key APIKey
		var lastUsed sql.NullTime
		if err := rows.Scan(&key.ID, &key.Name, &key.Prefix, &key.CreatedAt, &lastUsed, &key.Revoked); err != nil {
			return nil, err
		}
		if lastUsed.Valid {
			ts := lastUsed.Time
			key.LastUsedAt = &ts
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// RevokeAPIKey marks the key as revoked.
func (s *Store) RevokeAPIKey(id string) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	_, err := s.db.Exec(`UPDATE api_keys SET revoked = 1 WHERE id = ?`, strings.TrimSpace(id))
	return err
}

// ValidateAPIKey verifies a key secret and updates last_used_at.
// Returns (nil, nil) when no active key matches.
func (s *Store) ValidateAPIKey(secret string) (*APIKey, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	var key APIKey
	var lastUsed sql.NullTime
	err := s.db.QueryRow(`
		SELECT id, name, key_prefix, created_at, last_used_at
		FROM api_keys
		WHERE key_hash = ? AND revoked = 0
	`, hashSecret(secret)).Scan(&key.ID, &key.Name, &key.Prefix, &key.CreatedAt, &lastUsed)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if lastUsed.Valid {
		ts := lastUsed.Time
		key.LastUsedAt = &ts
	}
	key.Revoked = false
	if err := s.touchAPIKey(key.ID); err != nil {
		return &key, err
	}
	return &key, nil
}

func (s *Store) touchAPIKey(id string) error {
	_, err := s.db.Exec(`UPDATE api_keys SET last_used_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	return err
}
