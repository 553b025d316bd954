package apikeys

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hallwayhq/console/pkg/apperr"
	"github.com/hallwayhq/console/pkg/roles"
)

// Store persists API key records in PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a new API key store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create issues a new key and returns the record with the plaintext. The
// plaintext is not recoverable afterwards.
func (s *Store) Create(ctx context.Context, req CreateKeyRequest) (*CreatedKey, error) {
	plaintext, keyHash, keyPreview, err := GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	key := &Key{
		ID:             uuid.NewString(),
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		KeyHash:        keyHash,
		KeyPreview:     keyPreview,
		Scopes:         req.Scopes,
		CreatedBy:      req.CreatedBy,
		ExpiresAt:      req.ExpiresAt,
	}

	query := `
		INSERT INTO api_keys (id, organization_id, name, key_hash, key_preview, scopes, created_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query, key.ID, key.OrganizationID, key.Name,
		key.KeyHash, key.KeyPreview, pq.Array(scopeStrings(key.Scopes)), key.CreatedBy, key.ExpiresAt).
		Scan(&key.CreatedAt, &key.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Conflict("an API key with this name already exists")
		}
		return nil, fmt.Errorf("failed to create api key: %w", err)
	}

	return &CreatedKey{Key: key, Plaintext: plaintext}, nil
}

// GetByHash looks up a key by the hash of its plaintext. Returns (nil, nil)
// when no key matches.
func (s *Store) GetByHash(ctx context.Context, keyHash string) (*Key, error) {
	query := selectColumns + ` WHERE key_hash = $1`
	key, err := s.scanOne(s.db.QueryRowContext(ctx, query, keyHash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return key, nil
}

// Get retrieves a key by ID within an organization
func (s *Store) Get(ctx context.Context, orgID, keyID string) (*Key, error) {
	query := selectColumns + ` WHERE organization_id = $1 AND id = $2`
	key, err := s.scanOne(s.db.QueryRowContext(ctx, query, orgID, keyID))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("API key not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return key, nil
}

// List returns all keys for an organization, newest first. Plaintext is never
// included; callers only ever see previews and metadata.
func (s *Store) List(ctx context.Context, orgID string) ([]*Key, error) {
	query := selectColumns + ` WHERE organization_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	keys := []*Key{}
	for rows.Next() {
		key, err := s.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, nil
}

// Delete removes a key within an organization
func (s *Store) Delete(ctx context.Context, orgID, keyID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM api_keys WHERE organization_id = $1 AND id = $2`, orgID, keyID)
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("API key not found")
	}
	return nil
}

// TouchLastUsed records that a key was used for authentication
func (s *Store) TouchLastUsed(ctx context.Context, keyID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = $1, updated_at = NOW() WHERE id = $2`, at, keyID)
	if err != nil {
		return fmt.Errorf("failed to update last used: %w", err)
	}
	return nil
}

// DeleteExpired removes keys whose expiry passed more than the grace period
// ago. Used by the background sweeper.
func (s *Store) DeleteExpired(ctx context.Context, grace time.Duration) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM api_keys WHERE expires_at IS NOT NULL AND expires_at < $1`,
		time.Now().Add(-grace))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired api keys: %w", err)
	}
	return result.RowsAffected()
}

const selectColumns = `
	SELECT id, organization_id, name, key_hash, key_preview, scopes, created_by,
	       last_used_at, expires_at, created_at, updated_at
	FROM api_keys`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanOne(row rowScanner) (*Key, error) {
	key := &Key{}
	var scopes pq.StringArray
	err := row.Scan(
		&key.ID, &key.OrganizationID, &key.Name, &key.KeyHash, &key.KeyPreview,
		&scopes, &key.CreatedBy, &key.LastUsedAt, &key.ExpiresAt,
		&key.CreatedAt, &key.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	key.Scopes = toPermissions(scopes)
	return key, nil
}

func scopeStrings(scopes []roles.Permission) []string {
	out := make([]string, len(scopes))
	for i, s := range scopes {
		out[i] = string(s)
	}
	return out
}

func toPermissions(scopes []string) []roles.Permission {
	out := make([]roles.Permission, len(scopes))
	for i, s := range scopes {
		out[i] = roles.Permission(s)
	}
	return out
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
