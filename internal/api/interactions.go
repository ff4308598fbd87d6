package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/store"
)

type createInteractionRequest struct {
	OrgID      *uuid.UUID     `json:"orgId"`
	Type       string         `json:"type" validate:"required,oneof=note email sms call meeting system"`
	OccurredAt *time.Time     `json:"occurredAt"`
	Summary    *string        `json:"summary" validate:"omitempty,max=5000"`
	CompanyID  *uuid.UUID     `json:"companyId"`
	PersonID   *uuid.UUID     `json:"personId"`
	DealID     *uuid.UUID     `json:"dealId"`
	Metadata   map[string]any `json:"metadata"`
}

func (s *Server) listInteractions(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	q := newQueryParams(r)
	page := q.page()
	filter := store.InteractionFilter{
		CompanyID: q.uuid("companyId"),
		PersonID:  q.uuid("personId"),
		DealID:    q.uuid("dealId"),
	}
	if err := q.err(page); err != nil {
		writeError(w, r, err)
		return
	}
	filter.Page = page.store()

	interactions, total, err := s.crm.ListInteractions(r.Context(), t.OrgID(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeList(w, r, interactions, total, page)
}

// createInteraction appends to the interaction log. Interactions cannot be edited or deleted.
func (s *Server) createInteraction(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	var req createInteractionRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := checkOrg(t, req.OrgID); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.checkReferences(r.Context(), t.OrgID(),
		s.companyRef("companyId", req.CompanyID),
		s.personRef("personId", req.PersonID),
		s.dealRef("dealId", req.DealID),
	); err != nil {
		writeError(w, r, err)
		return
	}

	id, err := newID()
	if err != nil {
		writeError(w, r, err)
		return
	}

	now := s.now()
	occurredAt := now
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}
	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	interaction := &models.Interaction{
		ID:         id,
		OrgID:      t.OrgID(),
		Type:       req.Type,
		OccurredAt: occurredAt,
		Summary:    req.Summary,
		CompanyID:  req.CompanyID,
		PersonID:   req.PersonID,
		DealID:     req.DealID,
		Metadata:   metadata,
		CreatedAt:  now,
	}

	if err := s.crm.CreateInteraction(r.Context(), interaction); err != nil {
		writeError(w, r, err)
		return
	}

	writeData(w, r, http.StatusCreated, interaction)
}
