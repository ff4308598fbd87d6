package tenancy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/store"
	"github.com/wolfeidau/crm/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

const defaultMaxTries = 5

var _ Provisioner = (*Bootstrapper)(nil)

// Bootstrapper is the single provisioning routine shared by signup, the email confirmation
// callback and lazy organization resolution.
//
// Calls for the same user within this process are collapsed into one. Across processes the
// storage layer allows one membership per user; the losing insert fails with
// store.ErrMembershipAlreadyExists and the loser returns the winner's membership.
type Bootstrapper struct {
	client   store.PrivilegedClient
	group    singleflight.Group
	maxTries uint
	metrics  *telemetry.Metrics
	now      func() time.Time
}

// NewBootstrapper creates a bootstrapper using the privileged client.
// maxTries bounds attempts on transient storage conflicts; zero selects the default.
func NewBootstrapper(client store.PrivilegedClient, maxTries uint) *Bootstrapper {
	if maxTries == 0 {
		maxTries = defaultMaxTries
	}
	return &Bootstrapper{
		client:   client,
		maxTries: maxTries,
		metrics:  telemetry.GetMetrics(),
		now:      time.Now,
	}
}

// Bootstrap returns the user's membership, creating an organization with the user as owner
// if they have none.
func (b *Bootstrapper) Bootstrap(ctx context.Context, user *models.User) (*models.Membership, error) {
	// shared callers must not be failed by the first caller going away
	sharedCtx := context.WithoutCancel(ctx)

	v, err, shared := b.group.Do(user.UserID.String(), func() (any, error) {
		return b.bootstrap(sharedCtx, user)
	})
	if err != nil {
		return nil, err
	}

	if shared {
		zerolog.Ctx(ctx).Debug().Str("user_id", user.UserID.String()).Msg("joined in-flight provisioning")
	}

	membership := *v.(*models.Membership)
	return &membership, nil
}

func (b *Bootstrapper) bootstrap(ctx context.Context, user *models.User) (*models.Membership, error) {
	logger := zerolog.Ctx(ctx).With().Str("user_id", user.UserID.String()).Logger()
	start := time.Now()

	existing, err := b.client.FirstMembership(ctx, user.UserID)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, store.ErrMembershipNotFound):
		b.metrics.ProvisionFailuresTotal.Add(ctx, 1)
		return nil, fmt.Errorf("%w: %w", ErrProvisioningFailed, err)
	}

	displayName := user.DisplayName()
	if displayName == "" {
		displayName = DefaultDisplayName
	}

	op := func() (*models.Membership, error) {
		org, membership, err := b.newOrganization(user.UserID, displayName)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		err = b.client.CreateOrganizationWithOwner(ctx, org, membership)
		switch {
		case err == nil:
			b.metrics.OrgsProvisionedTotal.Add(ctx, 1)
			logger.Info().
				Str("org_id", org.OrgID.String()).
				Str("slug", org.Slug).
				Msg("Provisioned organization")
			return membership, nil

		case errors.Is(err, store.ErrMembershipAlreadyExists):
			// lost the race: adopt the winner's membership
			b.metrics.ProvisionConflictsTotal.Add(ctx, 1)
			winner, readErr := b.client.FirstMembership(ctx, user.UserID)
			if readErr != nil {
				return nil, backoff.Permanent(fmt.Errorf("failed to read membership after conflict: %w", readErr))
			}
			logger.Info().Str("org_id", winner.OrgID.String()).Msg("Adopted concurrently provisioned organization")
			return winner, nil

		case errors.Is(err, store.ErrTransient), errors.Is(err, store.ErrOrganizationAlreadyExists):
			// retried with a fresh id and slug
			return nil, err

		default:
			return nil, backoff.Permanent(err)
		}
	}

	expBackOff := backoff.NewExponentialBackOff()
	expBackOff.InitialInterval = 20 * time.Millisecond
	expBackOff.MaxInterval = time.Second

	membership, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(expBackOff),
		backoff.WithMaxTries(b.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			b.metrics.ProvisionRetriesTotal.Add(ctx, 1)
			logger.Warn().Err(err).Dur("retry_in", next).Msg("Retrying organization provisioning")
		}),
	)

	b.metrics.ProvisionDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.Bool("success", err == nil)))

	if err != nil {
		b.metrics.ProvisionFailuresTotal.Add(ctx, 1)
		logger.Error().Err(err).Msg("Organization provisioning failed")
		return nil, fmt.Errorf("%w: %w", ErrProvisioningFailed, err)
	}

	return membership, nil
}

func (b *Bootstrapper) newOrganization(userID uuid.UUID, displayName string) (*models.Organization, *models.Membership, error) {
	orgID, err := uuid.NewV7()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate organization id: %w", err)
	}

	slug, err := NewSlug(displayName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate slug: %w", err)
	}

	now := b.now()
	org := &models.Organization{
		OrgID:     orgID,
		Name:      OrganizationName(displayName),
		Slug:      slug,
		CreatedAt: now,
		UpdatedAt: now,
	}
	membership := &models.Membership{
		OrgID:     orgID,
		UserID:    userID,
		Role:      models.RoleOwner,
		CreatedAt: now,
	}

	return org, membership, nil
}
