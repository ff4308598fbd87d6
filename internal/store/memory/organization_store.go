package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/store"
)

var _ store.PrivilegedClient = (*OrganizationStore)(nil)

// OrganizationStore implements store.PrivilegedClient using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type OrganizationStore struct {
	mu sync.RWMutex

	organizations map[uuid.UUID]*models.Organization // org_id -> Organization
	slugs         map[string]uuid.UUID               // slug -> org_id
	memberships   map[uuid.UUID]*models.Membership   // user_id -> Membership (one per user)

	membershipInsertErr error // returned by the next membership insert, then cleared
}

// NewOrganizationStore creates a new in-memory organization store.
func NewOrganizationStore() *OrganizationStore {
	return &OrganizationStore{
		organizations: make(map[uuid.UUID]*models.Organization),
		slugs:         make(map[string]uuid.UUID),
		memberships:   make(map[uuid.UUID]*models.Membership),
	}
}

// FirstMembership returns the membership for a user.
func (s *OrganizationStore) FirstMembership(ctx context.Context, userID uuid.UUID) (*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.memberships[userID]
	if !exists {
		return nil, store.ErrMembershipNotFound
	}

	// Clone to avoid external modifications
	clone := *m
	return &clone, nil
}

// CreateOrganizationWithOwner inserts the organization and the owner membership as one unit.
// The organization is only kept if the membership insert succeeds.
func (s *OrganizationStore) CreateOrganizationWithOwner(ctx context.Context, org *models.Organization, membership *models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.organizations[org.OrgID]; exists {
		return store.ErrOrganizationAlreadyExists
	}
	if _, exists := s.slugs[org.Slug]; exists {
		return store.ErrOrganizationAlreadyExists
	}

	orgClone := *org
	s.organizations[org.OrgID] = &orgClone
	s.slugs[org.Slug] = org.OrgID

	if err := s.insertMembership(membership); err != nil {
		// roll back the organization insert
		delete(s.organizations, org.OrgID)
		delete(s.slugs, org.Slug)
		return err
	}

	return nil
}

func (s *OrganizationStore) insertMembership(membership *models.Membership) error {
	if err := s.membershipInsertErr; err != nil {
		s.membershipInsertErr = nil
		return err
	}

	if _, exists := s.memberships[membership.UserID]; exists {
		return store.ErrMembershipAlreadyExists
	}

	memberClone := *membership
	s.memberships[membership.UserID] = &memberClone

	return nil
}

// FailNextMembershipInsert makes the next membership insert fail with err after the
// organization row has been written, exercising the rollback path.
func (s *OrganizationStore) FailNextMembershipInsert(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.membershipInsertErr = err
}

// GetOrganization retrieves an organization by ID.
func (s *OrganizationStore) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.organizations[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	clone := *org
	return &clone, nil
}

// ListOrganizations returns every organization ordered by ID (UUIDv7, so creation order).
func (s *OrganizationStore) ListOrganizations(ctx context.Context) []*models.Organization {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Organization, 0, len(s.organizations))
	for _, org := range s.organizations {
		clone := *org
		result = append(result, &clone)
	}
	slices.SortFunc(result, func(a, b *models.Organization) int {
		return slices.Compare(a.OrgID[:], b.OrgID[:])
	})

	return result
}
