package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/store"
)

var _ store.PrivilegedClient = (*OrganizationStore)(nil)

// OrganizationStore implements store.PrivilegedClient using PostgreSQL.
// It must be built on the privileged pool: membership lookups run before any tenant is known.
type OrganizationStore struct {
	pool *pgxpool.Pool
}

// NewOrganizationStore creates a new PostgreSQL-backed privileged client.
func NewOrganizationStore(pool *pgxpool.Pool) *OrganizationStore {
	return &OrganizationStore{
		pool: pool,
	}
}

// FirstMembership returns the membership for a user.
func (s *OrganizationStore) FirstMembership(ctx context.Context, userID uuid.UUID) (*models.Membership, error) {
	query := `
		SELECT org_id, user_id, role, created_at
		FROM org_members
		WHERE user_id = $1
		ORDER BY created_at
		LIMIT 1
	`

	var m models.Membership
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&m.OrgID,
		&m.UserID,
		&m.Role,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", mapPostgresError(err))
	}

	return &m, nil
}

// CreateOrganizationWithOwner inserts the organization and its owner membership in one transaction.
func (s *OrganizationStore) CreateOrganizationWithOwner(ctx context.Context, org *models.Organization, membership *models.Membership) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapPostgresError(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	_, err = tx.Exec(ctx, `
		INSERT INTO orgs (org_id, name, slug, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, org.OrgID, org.Name, org.Slug, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		return wrapCreateError("organization", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO org_members (org_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4)
	`, membership.OrgID, membership.UserID, membership.Role, membership.CreatedAt)
	if err != nil {
		return wrapCreateError("membership", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapCreateError("organization", err)
	}

	log.Debug().
		Str("org_id", org.OrgID.String()).
		Str("user_id", membership.UserID.String()).
		Str("slug", org.Slug).
		Msg("Created organization with owner")

	return nil
}

// GetOrganization retrieves an organization by ID.
func (s *OrganizationStore) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	query := `
		SELECT org_id, name, slug, created_at, updated_at
		FROM orgs
		WHERE org_id = $1
	`

	var org models.Organization
	err := s.pool.QueryRow(ctx, query, orgID).Scan(
		&org.OrgID,
		&org.Name,
		&org.Slug,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", mapPostgresError(err))
	}

	return &org, nil
}

// wrapCreateError keeps sentinel errors unwrapped so callers can match them directly.
func wrapCreateError(what string, err error) error {
	mapped := mapPostgresError(err)
	switch {
	case errors.Is(mapped, store.ErrMembershipAlreadyExists),
		errors.Is(mapped, store.ErrOrganizationAlreadyExists),
		errors.Is(mapped, store.ErrTransient):
		return mapped
	}
	return fmt.Errorf("failed to create %s: %w", what, mapped)
}
