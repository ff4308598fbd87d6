package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/crm/internal/models"
)

// Sentinel errors for organization and membership operations
var (
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrOrganizationAlreadyExists = errors.New("organization already exists")
	ErrMembershipNotFound        = errors.New("membership not found")
	ErrMembershipAlreadyExists   = errors.New("membership already exists")

	// ErrTransient marks a write that lost to a concurrent transaction and can be retried as is.
	ErrTransient = errors.New("transient storage conflict")
)

// PrivilegedClient is the data access handle used to provision and resolve organizations.
// Implementations bypass tenant scoping: the caller is establishing whether a user belongs
// to any organization, so the check cannot itself be gated by organization membership.
//
// Only the tenancy package receives a PrivilegedClient. Request handlers never do.
type PrivilegedClient interface {
	// FirstMembership returns the membership for a user.
	// Returns ErrMembershipNotFound if the user has none.
	FirstMembership(ctx context.Context, userID uuid.UUID) (*models.Membership, error)

	// CreateOrganizationWithOwner inserts the organization and its owner membership atomically.
	// Returns ErrMembershipAlreadyExists if the user already has a membership, in which case
	// neither row is written.
	CreateOrganizationWithOwner(ctx context.Context, org *models.Organization, membership *models.Membership) error

	// GetOrganization retrieves an organization by ID.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)
}
