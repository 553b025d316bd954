package workspaces

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hallwayhq/console/pkg/apperr"
)

// InvitationStore persists shadow invitation records in PostgreSQL
type InvitationStore struct {
	db *sql.DB
}

// NewInvitationStore creates a shadow invitation store
func NewInvitationStore(db *sql.DB) *InvitationStore {
	return &InvitationStore{db: db}
}

const invitationColumns = `
	SELECT id, organization_id, invitation_id, email, role_name, status,
	       invited_by, expires_at, created_at, updated_at
	FROM invitations`

// Create persists a new pending shadow record
func (s *InvitationStore) Create(ctx context.Context, inv *ShadowInvitation) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	inv.Status = ShadowPending

	query := `
		INSERT INTO invitations (id, organization_id, invitation_id, email, role_name, status, invited_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, inv.ID, inv.OrganizationID, inv.InvitationID,
		inv.Email, inv.RoleName, inv.Status, inv.InvitedBy, inv.ExpiresAt).
		Scan(&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create invitation record: %w", err)
	}
	return nil
}

// Get retrieves a shadow record by ID within an organization
func (s *InvitationStore) Get(ctx context.Context, orgID, id string) (*ShadowInvitation, error) {
	query := invitationColumns + ` WHERE organization_id = $1 AND id = $2`
	inv, err := s.scanOne(s.db.QueryRowContext(ctx, query, orgID, id))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("invitation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

// HasPending reports whether a pending invitation already exists for the
// email in the organization.
func (s *InvitationStore) HasPending(ctx context.Context, orgID, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM invitations WHERE organization_id = $1 AND lower(email) = lower($2) AND status = $3)`,
		orgID, email, ShadowPending).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check pending invitation: %w", err)
	}
	return exists, nil
}

// List returns an organization's shadow records, newest first
func (s *InvitationStore) List(ctx context.Context, orgID string) ([]*ShadowInvitation, error) {
	query := invitationColumns + ` WHERE organization_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	invitations := []*ShadowInvitation{}
	for rows.Next() {
		inv, err := s.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	return invitations, nil
}

// ListPending returns all pending shadow records across organizations, used
// by the background reconciler.
func (s *InvitationStore) ListPending(ctx context.Context, limit int) ([]*ShadowInvitation, error) {
	query := invitationColumns + ` WHERE status = $1 ORDER BY created_at ASC LIMIT $2`
	rows, err := s.db.QueryContext(ctx, query, ShadowPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending invitations: %w", err)
	}
	defer rows.Close()

	invitations := []*ShadowInvitation{}
	for rows.Next() {
		inv, err := s.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list pending invitations: %w", err)
	}
	return invitations, nil
}

// SetStatus moves a shadow record to a new lifecycle state
func (s *InvitationStore) SetStatus(ctx context.Context, id string, status ShadowInvitationStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE invitations SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update invitation status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update invitation status: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("invitation not found")
	}
	return nil
}

// Replace points an existing shadow record at a newly issued provider
// invitation, used when an invitation is resent.
func (s *InvitationStore) Replace(ctx context.Context, id, invitationID string, expiresAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE invitations SET invitation_id = $1, expires_at = $2, status = $3, updated_at = NOW() WHERE id = $4`,
		invitationID, expiresAt, ShadowPending, id)
	if err != nil {
		return fmt.Errorf("failed to replace invitation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to replace invitation: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("invitation not found")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *InvitationStore) scanOne(row rowScanner) (*ShadowInvitation, error) {
	inv := &ShadowInvitation{}
	err := row.Scan(
		&inv.ID, &inv.OrganizationID, &inv.InvitationID, &inv.Email, &inv.RoleName,
		&inv.Status, &inv.InvitedBy, &inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return inv, nil
}
