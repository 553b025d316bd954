package workspaces

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hallwayhq/console/pkg/apperr"
	"github.com/hallwayhq/console/pkg/cache"
	"github.com/hallwayhq/console/pkg/idp"
	"github.com/hallwayhq/console/pkg/observability"
	"github.com/hallwayhq/console/pkg/roles"
	"github.com/hallwayhq/console/pkg/storage"
)

const invitationLifetime = 7 * 24 * time.Hour

var logoContentTypes = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/svg+xml": ".svg",
	"image/webp":    ".webp",
}

// Service implements workspace operations. The identity provider owns the
// workspace, member, and invitation data; this service proxies to it and
// keeps the cache and shadow records consistent after mutations.
type Service struct {
	idp         *idp.Client
	cache       *cache.Client
	invitations *InvitationStore
	objects     *storage.ObjectStore
	roles       *roles.Table
	logger      *observability.Logger
}

// NewService creates a workspace service
func NewService(idpClient *idp.Client, cacheClient *cache.Client, invitations *InvitationStore, objects *storage.ObjectStore, table *roles.Table, logger *observability.Logger) *Service {
	return &Service{
		idp:         idpClient,
		cache:       cacheClient,
		invitations: invitations,
		objects:     objects,
		roles:       table,
		logger:      logger,
	}
}

// Create provisions a workspace and makes the creator its owner
func (s *Service) Create(ctx context.Context, creatorID string, req CreateWorkspaceRequest) (*idp.Organization, error) {
	org, err := s.idp.CreateOrganization(ctx, idp.CreateOrganizationRequest{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return nil, err
	}

	if err := s.idp.AddMember(ctx, org.ID, creatorID, []string{roles.RoleOwner}); err != nil {
		// The workspace exists but the creator is not in it; surface the
		// failure rather than leaving a workspace nobody can reach.
		return nil, apperr.Wrap(apperr.KindInternal, "failed to assign workspace owner", err)
	}

	s.invalidateMembership(ctx, creatorID)
	return org, nil
}

// Get reads a workspace, cache-first
func (s *Service) Get(ctx context.Context, orgID string) (*idp.Organization, error) {
	cached, err := s.cache.GetOrganization(ctx, orgID)
	if err != nil {
		s.logger.FromContext(ctx).WithError(err).Warn("organization cache read failed, falling back to origin")
	} else if cached != nil {
		return cached, nil
	}

	org, err := s.idp.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetOrganization(ctx, org); err != nil {
		s.logger.FromContext(ctx).WithError(err).Warn("organization cache write failed")
	}
	return org, nil
}

// Update patches a workspace and invalidates its cache entry
func (s *Service) Update(ctx context.Context, orgID string, req UpdateWorkspaceRequest) (*idp.Organization, error) {
	org, err := s.idp.UpdateOrganization(ctx, orgID, idp.UpdateOrganizationRequest{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return nil, err
	}

	s.invalidateOrganization(ctx, orgID)
	return org, nil
}

// Delete removes a workspace. Other members' membership caches go stale
// until their TTL lapses, which only shows them a workspace that rejects
// every call.
func (s *Service) Delete(ctx context.Context, orgID, actorID string) error {
	if err := s.idp.DeleteOrganization(ctx, orgID); err != nil {
		return err
	}

	s.invalidateOrganization(ctx, orgID)
	s.invalidateMembership(ctx, actorID)
	return nil
}

// ListMembers returns the workspace's members with their roles
func (s *Service) ListMembers(ctx context.Context, orgID string) ([]idp.Member, error) {
	return s.idp.ListMembers(ctx, orgID)
}

// UpdateMemberRoles replaces a member's roles in a workspace
func (s *Service) UpdateMemberRoles(ctx context.Context, orgID, userID string, roleNames []string) error {
	if err := s.validateRoleNames(roleNames); err != nil {
		return err
	}
	if len(roleNames) == 0 {
		return apperr.BadRequest("at least one role is required")
	}

	if err := s.idp.ReplaceMemberRoles(ctx, orgID, userID, roleNames); err != nil {
		return err
	}

	s.invalidateMembership(ctx, userID)
	return nil
}

// RemoveMember removes a user from a workspace
func (s *Service) RemoveMember(ctx context.Context, orgID, userID string) error {
	if err := s.idp.RemoveMember(ctx, orgID, userID); err != nil {
		return err
	}

	s.invalidateMembership(ctx, userID)
	return nil
}

// Invite creates invitations for a batch of addresses concurrently. Each
// address succeeds or fails independently; a duplicate pending invitation is
// a soft per-address failure, not an error.
func (s *Service) Invite(ctx context.Context, orgID, inviterID string, requests []InviteRequest) ([]InviteOutcome, error) {
	if len(requests) == 0 {
		return nil, apperr.BadRequest("at least one invitation is required")
	}
	for _, req := range requests {
		if err := s.validateRoleNames([]string{req.RoleName}); err != nil {
			return nil, err
		}
	}

	outcomes := make([]InviteOutcome, len(requests))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			outcomes[i] = s.inviteOne(gctx, orgID, inviterID, req)
			return nil
		})
	}
	g.Wait()

	return outcomes, nil
}

func (s *Service) inviteOne(ctx context.Context, orgID, inviterID string, req InviteRequest) InviteOutcome {
	pending, err := s.invitations.HasPending(ctx, orgID, req.Email)
	if err != nil {
		s.logger.FromContext(ctx).WithError(err).Error("pending invitation check failed")
		return InviteOutcome{Email: req.Email, Reason: "invitation could not be created"}
	}
	if pending {
		return InviteOutcome{Email: req.Email, Reason: "invitation already exists"}
	}

	expiresAt := time.Now().UTC().Add(invitationLifetime)
	providerInv, err := s.idp.CreateInvitation(ctx, idp.CreateInvitationRequest{
		OrganizationID: orgID,
		InviterID:      inviterID,
		Invitee:        req.Email,
		RoleNames:      []string{req.RoleName},
		ExpiresAt:      expiresAt,
	})
	if err != nil {
		s.logger.FromContext(ctx).WithError(err).WithField("email", req.Email).Error("provider invitation failed")
		return InviteOutcome{Email: req.Email, Reason: apperr.From(err).Message}
	}

	shadow := &ShadowInvitation{
		OrganizationID: orgID,
		InvitationID:   providerInv.ID,
		Email:          req.Email,
		RoleName:       req.RoleName,
		InvitedBy:      inviterID,
		ExpiresAt:      expiresAt,
	}
	if err := s.invitations.Create(ctx, shadow); err != nil {
		// The provider invitation exists; the reconciler cannot see it
		// without a shadow record, so revoke it to stay consistent.
		s.logger.FromContext(ctx).WithError(err).Error("shadow invitation write failed, revoking provider invitation")
		if delErr := s.idp.DeleteInvitation(ctx, providerInv.ID); delErr != nil {
			s.logger.FromContext(ctx).WithError(delErr).Error("orphaned provider invitation cleanup failed")
		}
		return InviteOutcome{Email: req.Email, Reason: "invitation could not be created"}
	}

	return InviteOutcome{Email: req.Email, Invitation: shadow}
}

// ListInvitations returns a workspace's invitation records
func (s *Service) ListInvitations(ctx context.Context, orgID string) ([]*ShadowInvitation, error) {
	return s.invitations.List(ctx, orgID)
}

// ResendInvitation revokes the provider invitation and issues a fresh one
// for the same address and role.
func (s *Service) ResendInvitation(ctx context.Context, orgID, id string) (*ShadowInvitation, error) {
	shadow, err := s.invitations.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if shadow.Status == ShadowAccepted {
		return nil, apperr.Conflict("invitation was already accepted")
	}

	if err := s.idp.DeleteInvitation(ctx, shadow.InvitationID); err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, err
	}

	expiresAt := time.Now().UTC().Add(invitationLifetime)
	providerInv, err := s.idp.CreateInvitation(ctx, idp.CreateInvitationRequest{
		OrganizationID: orgID,
		InviterID:      shadow.InvitedBy,
		Invitee:        shadow.Email,
		RoleNames:      []string{shadow.RoleName},
		ExpiresAt:      expiresAt,
	})
	if err != nil {
		return nil, err
	}

	if err := s.invitations.Replace(ctx, shadow.ID, providerInv.ID, expiresAt); err != nil {
		return nil, err
	}

	shadow.InvitationID = providerInv.ID
	shadow.Status = ShadowPending
	shadow.ExpiresAt = expiresAt
	return shadow, nil
}

// RevokeInvitation cancels a pending invitation
func (s *Service) RevokeInvitation(ctx context.Context, orgID, id string) error {
	shadow, err := s.invitations.Get(ctx, orgID, id)
	if err != nil {
		return err
	}
	if shadow.Status != ShadowPending {
		return apperr.Conflict("only pending invitations can be revoked")
	}

	if err := s.idp.DeleteInvitation(ctx, shadow.InvitationID); err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		return err
	}

	return s.invitations.SetStatus(ctx, shadow.ID, ShadowRevoked)
}

// UploadLogo stores a workspace logo and points the workspace branding at it
func (s *Service) UploadLogo(ctx context.Context, orgID string, content io.Reader, contentType string) (*idp.Organization, error) {
	ext, ok := logoContentTypes[contentType]
	if !ok {
		return nil, apperr.Validation(map[string][]string{
			"logo": {fmt.Sprintf("unsupported content type %q", contentType)},
		})
	}
	if s.objects == nil {
		return nil, apperr.ServiceUnavailable("logo storage not configured")
	}

	key := fmt.Sprintf("logos/%s/%s%s", orgID, uuid.NewString(), ext)
	logoURL, err := s.objects.PutObject(ctx, key, content, contentType)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "logo upload failed", err)
	}

	org, err := s.idp.UpdateOrganization(ctx, orgID, idp.UpdateOrganizationRequest{
		Branding: &idp.Branding{LogoURL: logoURL},
	})
	if err != nil {
		// Remove the uploaded object so failed updates do not leak assets
		if delErr := s.objects.DeleteObject(ctx, key); delErr != nil {
			s.logger.FromContext(ctx).WithError(delErr).Warn("orphaned logo cleanup failed")
		}
		return nil, err
	}

	s.invalidateOrganization(ctx, orgID)
	return org, nil
}

func (s *Service) validateRoleNames(roleNames []string) error {
	fieldErrors := map[string][]string{}
	for _, name := range roleNames {
		if _, ok := s.roles.Get(name); !ok {
			fieldErrors["role"] = append(fieldErrors["role"], fmt.Sprintf("unknown role %q", name))
		}
	}
	if len(fieldErrors) > 0 {
		return apperr.Validation(fieldErrors)
	}
	return nil
}

// Cache invalidation failures are logged, never surfaced: a stale entry
// expires on its own TTL.
func (s *Service) invalidateOrganization(ctx context.Context, orgID string) {
	if err := s.cache.InvalidateOrganization(ctx, orgID); err != nil {
		s.logger.FromContext(ctx).WithError(err).Warn("organization cache invalidation failed")
	}
}

func (s *Service) invalidateMembership(ctx context.Context, userID string) {
	if err := s.cache.InvalidateUserOrganizations(ctx, userID); err != nil {
		s.logger.FromContext(ctx).WithError(err).Warn("membership cache invalidation failed")
	}
}
