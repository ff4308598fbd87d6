package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/wolfeidau/crm/internal/store"
)

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, validationError("Validation failed", map[string]string{"id": "must be a valid UUID"})
	}
	return id, nil
}

// orNotFound names the missing record in a NOT_FOUND error.
func orNotFound(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound(what)
	}
	return err
}

// checkOrg rejects a body whose orgId names an organization other than the caller's.
func checkOrg(t *Tenant, orgID *uuid.UUID) error {
	if orgID != nil && *orgID != t.OrgID() {
		return errOrgMismatch
	}
	return nil
}

func newID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to generate id: %w", err)
	}
	return id, nil
}

// reference is an ID in a request body that must name a record of the caller's organization.
type reference struct {
	field  string
	id     *uuid.UUID
	exists func(ctx context.Context, orgID, id uuid.UUID) error
}

func (s *Server) companyRef(field string, id *uuid.UUID) reference {
	return reference{field: field, id: id, exists: func(ctx context.Context, orgID, id uuid.UUID) error {
		_, err := s.crm.GetCompany(ctx, orgID, id)
		return err
	}}
}

func (s *Server) personRef(field string, id *uuid.UUID) reference {
	return reference{field: field, id: id, exists: func(ctx context.Context, orgID, id uuid.UUID) error {
		_, err := s.crm.GetPerson(ctx, orgID, id)
		return err
	}}
}

func (s *Server) dealRef(field string, id *uuid.UUID) reference {
	return reference{field: field, id: id, exists: func(ctx context.Context, orgID, id uuid.UUID) error {
		_, err := s.crm.GetDeal(ctx, orgID, id)
		return err
	}}
}

// checkReferences reports every reference that does not resolve within orgID as a
// VALIDATION_ERROR. Records of other organizations are reported the same as missing ones.
func (s *Server) checkReferences(ctx context.Context, orgID uuid.UUID, refs ...reference) error {
	details := map[string]string{}
	for _, ref := range refs {
		if ref.id == nil {
			continue
		}
		err := ref.exists(ctx, orgID, *ref.id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			details[ref.field] = "does not exist"
		case err != nil:
			return err
		}
	}

	if len(details) > 0 {
		return validationError("Validation failed", details)
	}
	return nil
}
