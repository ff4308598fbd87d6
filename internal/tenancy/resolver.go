package tenancy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/store"
	"github.com/wolfeidau/crm/internal/telemetry"
)

// ResolverConfig configures the membership cache in front of the privileged client.
type ResolverConfig struct {
	CacheSize int           // zero disables caching
	CacheTTL  time.Duration // zero means entries never expire
}

// Resolver returns the organization membership a user acts within.
type Resolver struct {
	client      store.PrivilegedClient
	provisioner Provisioner
	cache       *lru.LRU[uuid.UUID, models.Membership]
	metrics     *telemetry.Metrics
}

// NewResolver creates a resolver that provisions through provisioner when a user has no membership.
func NewResolver(client store.PrivilegedClient, provisioner Provisioner, cfg ResolverConfig) *Resolver {
	r := &Resolver{
		client:      client,
		provisioner: provisioner,
		metrics:     telemetry.GetMetrics(),
	}
	if cfg.CacheSize > 0 {
		r.cache = lru.NewLRU[uuid.UUID, models.Membership](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return r
}

// ResolveOrg returns the user's membership, provisioning an organization if the user has none.
// Any failure is reported as ErrForbidden; the cause is logged, not returned to clients.
func (r *Resolver) ResolveOrg(ctx context.Context, user *models.User) (*models.Membership, error) {
	if m, ok := r.cached(ctx, user.UserID); ok {
		return m, nil
	}

	membership, err := r.client.FirstMembership(ctx, user.UserID)
	if errors.Is(err, store.ErrMembershipNotFound) {
		membership, err = r.provisioner.Bootstrap(ctx, user)
	}
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("user_id", user.UserID.String()).Msg("Failed to resolve organization")
		return nil, fmt.Errorf("%w: %w", ErrForbidden, err)
	}

	if r.cache != nil {
		r.cache.Add(user.UserID, *membership)
	}

	return membership, nil
}

// Organization returns the organization record for a resolved membership.
func (r *Resolver) Organization(ctx context.Context, membership *models.Membership) (*models.Organization, error) {
	org, err := r.client.GetOrganization(ctx, membership.OrgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

func (r *Resolver) cached(ctx context.Context, userID uuid.UUID) (*models.Membership, bool) {
	if r.cache == nil {
		return nil, false
	}

	m, ok := r.cache.Get(userID)
	if !ok {
		r.metrics.MembershipCacheMisses.Add(ctx, 1)
		return nil, false
	}

	r.metrics.MembershipCacheHits.Add(ctx, 1)
	return &m, true
}
