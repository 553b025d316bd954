// Package session implements Redis-backed login sessions and resolution of a
// caller's identity, workspaces, and effective permissions.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hallwayhq/console/pkg/cache"
	"github.com/hallwayhq/console/pkg/config"
)

// Record is the payload stored in Redis for one login session. The browser
// only ever holds the opaque session ID.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store manages session records with a sliding expiry window.
type Store struct {
	cache  *cache.Client
	config config.SessionConfig
}

// NewStore creates a session store backed by the given cache client
func NewStore(cacheClient *cache.Client, cfg config.SessionConfig) *Store {
	return &Store{
		cache:  cacheClient,
		config: cfg,
	}
}

// Create issues a new session for the user and returns its record
func (s *Store) Create(ctx context.Context, userID string) (*Record, error) {
	record := &Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.cache.SetSessionRecord(ctx, record.ID, data, s.config.TTL); err != nil {
		return nil, err
	}
	return record, nil
}

// Get returns the session record for the given ID, or (nil, nil) if the
// session does not exist or has expired. Every successful read refreshes the
// expiry window.
func (s *Store) Get(ctx context.Context, sessionID string) (*Record, error) {
	data, err := s.cache.GetSessionRecord(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		// Corrupt record: destroy it rather than locking the user out forever
		s.cache.DeleteSessionRecord(ctx, sessionID)
		return nil, nil
	}

	if _, err := s.cache.RefreshSessionExpiry(ctx, sessionID, s.config.TTL); err != nil {
		return nil, err
	}
	return &record, nil
}

// Destroy removes a session. Destroying an absent session is not an error.
func (s *Store) Destroy(ctx context.Context, sessionID string) error {
	return s.cache.DeleteSessionRecord(ctx, sessionID)
}
