package session

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hallwayhq/console/pkg/apperr"
	"github.com/hallwayhq/console/pkg/cache"
	"github.com/hallwayhq/console/pkg/idp"
	"github.com/hallwayhq/console/pkg/observability"
	"github.com/hallwayhq/console/pkg/roles"
)

// Membership pairs an organization with the role names the user holds in it.
type Membership struct {
	Organization idp.Organization `json:"organization"`
	RoleNames    []string         `json:"roleNames"`
}

// UserSession is the request-scoped aggregate produced by the resolver.
// Permissions are always recomputed from the current organization's role
// names and the static role table, never stored.
type UserSession struct {
	User                *idp.User          `json:"user"`
	Organizations       []Membership       `json:"organizations"`
	CurrentOrganization *idp.Organization  `json:"currentOrganization"`
	Permissions         []roles.Permission `json:"permissions"`
}

// HasPermission reports whether the session grants the given permission
func (s *UserSession) HasPermission(p roles.Permission) bool {
	return roles.HasPermission(s.Permissions, p)
}

// Resolver produces UserSessions by combining cached identity data with
// origin fetches. Cache failures degrade to direct origin reads.
type Resolver struct {
	cache   *cache.Client
	idp     *idp.Client
	roles   *roles.Table
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewResolver creates a session resolver
func NewResolver(cacheClient *cache.Client, idpClient *idp.Client, table *roles.Table, logger *observability.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		cache:   cacheClient,
		idp:     idpClient,
		roles:   table,
		logger:  logger,
		metrics: metrics,
	}
}

// Resolve builds the UserSession for the given user. stickyOrgID is the
// organization selector carried by the org cookie; if it names an
// organization the user is not a member of it is silently ignored. A user
// with zero memberships resolves to a valid session with no current
// organization and no permissions.
func (r *Resolver) Resolve(ctx context.Context, userID, stickyOrgID string) (*UserSession, error) {
	start := time.Now()
	sess, err := r.resolve(ctx, userID, stickyOrgID)
	r.observe(start, err)
	return sess, err
}

func (r *Resolver) resolve(ctx context.Context, userID, stickyOrgID string) (*UserSession, error) {
	var (
		user        *idp.User
		memberships []idp.UserOrganization
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = r.fetchUser(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		memberships, err = r.fetchMemberships(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if user == nil {
		return nil, apperr.Unauthorized("not authenticated")
	}
	if user.IsSuspended {
		return nil, apperr.Unauthorized("account suspended")
	}

	// Organization details are independent by id; fetch them concurrently.
	orgs := make([]*idp.Organization, len(memberships))
	g, gctx = errgroup.WithContext(ctx)
	for i, membership := range memberships {
		i, membership := i, membership
		g.Go(func() error {
			org, err := r.fetchOrganization(gctx, membership.OrganizationID)
			if err != nil {
				return err
			}
			orgs[i] = org
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sess := &UserSession{
		User:          user,
		Organizations: make([]Membership, 0, len(memberships)),
		Permissions:   []roles.Permission{},
	}

	var currentRoles []string
	for i, membership := range memberships {
		if orgs[i] == nil {
			// Membership names an organization the provider no longer knows;
			// skip it rather than failing the whole session.
			r.logger.FromContext(ctx).
				WithField("organization_id", membership.OrganizationID).
				Warn("membership references unknown organization")
			continue
		}
		sess.Organizations = append(sess.Organizations, Membership{
			Organization: *orgs[i],
			RoleNames:    membership.RoleNames,
		})
	}

	for i := range sess.Organizations {
		if sess.Organizations[i].Organization.ID == stickyOrgID {
			sess.CurrentOrganization = &sess.Organizations[i].Organization
			currentRoles = sess.Organizations[i].RoleNames
			break
		}
	}
	if sess.CurrentOrganization == nil && len(sess.Organizations) > 0 {
		sess.CurrentOrganization = &sess.Organizations[0].Organization
		currentRoles = sess.Organizations[0].RoleNames
	}

	if sess.CurrentOrganization != nil {
		sess.Permissions = r.roles.PermissionsFor(currentRoles)
	}

	return sess, nil
}

// fetchUser reads the profile cache-first, falling through to the identity
// provider. A cache backend error is logged and treated as a miss.
func (r *Resolver) fetchUser(ctx context.Context, userID string) (*idp.User, error) {
	cached, err := r.cache.GetUser(ctx, userID)
	if err != nil {
		r.logger.FromContext(ctx).WithError(err).Warn("user cache read failed, falling back to origin")
	} else if cached != nil {
		return cached, nil
	}

	user, err := r.idp.GetUser(ctx, userID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if err := r.cache.SetUser(ctx, user); err != nil {
		r.logger.FromContext(ctx).WithError(err).Warn("user cache write failed")
	}
	return user, nil
}

func (r *Resolver) fetchMemberships(ctx context.Context, userID string) ([]idp.UserOrganization, error) {
	cached, err := r.cache.GetUserOrganizations(ctx, userID)
	if err != nil {
		r.logger.FromContext(ctx).WithError(err).Warn("membership cache read failed, falling back to origin")
	} else if cached != nil {
		return cached, nil
	}

	memberships, err := r.idp.GetUserOrganizations(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := r.cache.SetUserOrganizations(ctx, userID, memberships); err != nil {
		r.logger.FromContext(ctx).WithError(err).Warn("membership cache write failed")
	}
	return memberships, nil
}

func (r *Resolver) fetchOrganization(ctx context.Context, orgID string) (*idp.Organization, error) {
	cached, err := r.cache.GetOrganization(ctx, orgID)
	if err != nil {
		r.logger.FromContext(ctx).WithError(err).Warn("organization cache read failed, falling back to origin")
	} else if cached != nil {
		return cached, nil
	}

	org, err := r.idp.GetOrganization(ctx, orgID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if err := r.cache.SetOrganization(ctx, org); err != nil {
		r.logger.FromContext(ctx).WithError(err).Warn("organization cache write failed")
	}
	return org, nil
}

func (r *Resolver) observe(start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		if apperr.IsKind(err, apperr.KindUnauthorized) {
			outcome = "unauthenticated"
		}
	}
	r.metrics.SessionResolutionsTotal.WithLabelValues(outcome).Inc()
	r.metrics.SessionResolutionDuration.Observe(time.Since(start).Seconds())
}
