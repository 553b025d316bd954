package workspaces

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hallwayhq/console/pkg/apperr"
	"github.com/hallwayhq/console/pkg/idp"
)

const reconcileBatchSize = 200

// Reconciler syncs pending shadow invitations against the identity
// provider's invitation lifecycle. The provider is authoritative: accepted,
// expired, and revoked invitations are folded back into the shadow records
// on a schedule.
type Reconciler struct {
	store  *InvitationStore
	idp    *idp.Client
	logger *logrus.Logger
}

// NewReconciler creates an invitation reconciler
func NewReconciler(store *InvitationStore, idpClient *idp.Client, logger *logrus.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		idp:    idpClient,
		logger: logger,
	}
}

// Run performs one reconciliation pass
func (r *Reconciler) Run(ctx context.Context) error {
	pending, err := r.store.ListPending(ctx, reconcileBatchSize)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	r.logger.WithField("count", len(pending)).Info("Reconciling pending invitations")

	var updated int
	for _, shadow := range pending {
		status, err := r.providerStatus(ctx, shadow)
		if err != nil {
			r.logger.WithError(err).WithField("invitation_id", shadow.InvitationID).
				Warn("Failed to fetch invitation from provider")
			continue
		}

		next := r.nextStatus(shadow, status)
		if next == shadow.Status {
			continue
		}

		if err := r.store.SetStatus(ctx, shadow.ID, next); err != nil {
			r.logger.WithError(err).WithField("invitation_id", shadow.InvitationID).
				Warn("Failed to update invitation status")
			continue
		}
		updated++
	}

	if updated > 0 {
		r.logger.WithField("updated", updated).Info("Invitation reconciliation completed")
	}
	return nil
}

// providerStatus fetches the provider-side state. A missing provider
// invitation means it was revoked outside the dashboard.
func (r *Reconciler) providerStatus(ctx context.Context, shadow *ShadowInvitation) (idp.InvitationStatus, error) {
	inv, err := r.idp.GetInvitation(ctx, shadow.InvitationID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return idp.InvitationRevoked, nil
		}
		return "", err
	}
	return inv.Status, nil
}

func (r *Reconciler) nextStatus(shadow *ShadowInvitation, provider idp.InvitationStatus) ShadowInvitationStatus {
	switch provider {
	case idp.InvitationAccepted:
		return ShadowAccepted
	case idp.InvitationRevoked:
		return ShadowRevoked
	case idp.InvitationExpired:
		return ShadowExpired
	}

	// Still pending on the provider side; expire locally once the deadline
	// passes so stale rows do not accumulate.
	if time.Now().After(shadow.ExpiresAt) {
		return ShadowExpired
	}
	return ShadowPending
}
