package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/store"
)

const defaultCurrency = "USD"

var errStageOutsidePipeline = validationError("Stage does not belong to deal pipeline",
	map[string]string{"stageId": "does not belong to the deal's pipeline"})

type createPipelineRequest struct {
	OrgID  *uuid.UUID `json:"orgId"`
	Name   string     `json:"name" validate:"required,max=100"`
	Stages []string   `json:"stages" validate:"required,min=1,max=20,dive,required,max=100"`
}

func (s *Server) listPipelines(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	pipelines, err := s.crm.ListPipelines(r.Context(), t.OrgID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if pipelines == nil {
		pipelines = []*models.Pipeline{}
	}

	writeData(w, r, http.StatusOK, pipelines)
}

func (s *Server) createPipeline(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	var req createPipelineRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := checkOrg(t, req.OrgID); err != nil {
		writeError(w, r, err)
		return
	}

	id, err := newID()
	if err != nil {
		writeError(w, r, err)
		return
	}

	pipeline := &models.Pipeline{
		ID:        id,
		OrgID:     t.OrgID(),
		Name:      req.Name,
		CreatedAt: s.now(),
	}
	for i, name := range req.Stages {
		stageID, err := newID()
		if err != nil {
			writeError(w, r, err)
			return
		}
		pipeline.Stages = append(pipeline.Stages, &models.Stage{
			ID:         stageID,
			OrgID:      t.OrgID(),
			PipelineID: id,
			Name:       name,
			Position:   i,
		})
	}

	if err := s.crm.CreatePipeline(r.Context(), pipeline); err != nil {
		writeError(w, r, err)
		return
	}

	writeData(w, r, http.StatusCreated, pipeline)
}

type createDealRequest struct {
	OrgID             *uuid.UUID `json:"orgId"`
	PipelineID        uuid.UUID  `json:"pipelineId" validate:"required"`
	StageID           uuid.UUID  `json:"stageId" validate:"required"`
	Name              string     `json:"name" validate:"required,max=200"`
	CompanyID         *uuid.UUID `json:"companyId"`
	PersonID          *uuid.UUID `json:"personId"`
	ValueCents        *int64     `json:"valueCents" validate:"omitempty,gt=0"`
	Currency          string     `json:"currency" validate:"omitempty,len=3,alpha"`
	ExpectedCloseDate *string    `json:"expectedCloseDate" validate:"omitempty,isodate"`
}

type updateDealRequest struct {
	Name              *string             `json:"name" validate:"omitempty,min=1,max=200"`
	StageID           *uuid.UUID          `json:"stageId"`
	CompanyID         nullable[uuid.UUID] `json:"companyId"`
	PersonID          nullable[uuid.UUID] `json:"personId"`
	ValueCents        nullable[int64]     `json:"valueCents" validate:"omitempty,gt=0"`
	Currency          *string             `json:"currency" validate:"omitempty,len=3,alpha"`
	ExpectedCloseDate nullable[string]    `json:"expectedCloseDate" validate:"omitempty,isodate"`
	Status            *string             `json:"status" validate:"omitempty,oneof=open won lost"`
}

type moveDealRequest struct {
	StageID uuid.UUID `json:"stageId" validate:"required"`
}

func (s *Server) listDeals(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	q := newQueryParams(r)
	page := q.page()
	filter := store.DealFilter{
		PipelineID: q.uuid("pipelineId"),
		StageID:    q.uuid("stageId"),
		Status:     q.oneOf("status", models.DealStatusOpen, models.DealStatusWon, models.DealStatusLost),
	}
	if err := q.err(page); err != nil {
		writeError(w, r, err)
		return
	}
	filter.Page = page.store()

	deals, total, err := s.crm.ListDeals(r.Context(), t.OrgID(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeList(w, r, deals, total, page)
}

func (s *Server) createDeal(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	var req createDealRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := checkOrg(t, req.OrgID); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.checkStage(r.Context(), t.OrgID(), req.PipelineID, req.StageID); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.checkReferences(r.Context(), t.OrgID(),
		s.companyRef("companyId", req.CompanyID),
		s.personRef("personId", req.PersonID),
	); err != nil {
		writeError(w, r, err)
		return
	}

	id, err := newID()
	if err != nil {
		writeError(w, r, err)
		return
	}

	currency := defaultCurrency
	if req.Currency != "" {
		currency = strings.ToUpper(req.Currency)
	}

	now := s.now()
	ownerID := t.User.UserID
	deal := &models.Deal{
		ID:                id,
		OrgID:             t.OrgID(),
		PipelineID:        req.PipelineID,
		StageID:           req.StageID,
		CompanyID:         req.CompanyID,
		PersonID:          req.PersonID,
		Name:              req.Name,
		ValueCents:        req.ValueCents,
		Currency:          currency,
		OwnerID:           &ownerID,
		ExpectedCloseDate: req.ExpectedCloseDate,
		Status:            models.DealStatusOpen,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.crm.CreateDeal(r.Context(), deal); err != nil {
		writeError(w, r, err)
		return
	}

	writeData(w, r, http.StatusCreated, deal)
}

func (s *Server) getDeal(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	deal, err := s.crm.GetDeal(r.Context(), t.OrgID(), id)
	if err != nil {
		writeError(w, r, orNotFound(err, "Deal"))
		return
	}

	writeData(w, r, http.StatusOK, deal)
}

func (s *Server) updateDeal(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateDealRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if req.StageID != nil {
		current, err := s.crm.GetDeal(r.Context(), t.OrgID(), id)
		if err != nil {
			writeError(w, r, orNotFound(err, "Deal"))
			return
		}
		if err := s.checkStage(r.Context(), t.OrgID(), current.PipelineID, *req.StageID); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if err := s.checkReferences(r.Context(), t.OrgID(),
		s.companyRef("companyId", req.CompanyID.ptr()),
		s.personRef("personId", req.PersonID.ptr()),
	); err != nil {
		writeError(w, r, err)
		return
	}

	now := s.now()
	deal, err := s.crm.UpdateDeal(r.Context(), t.OrgID(), id, func(d *models.Deal) {
		setIf(&d.Name, req.Name)
		setIf(&d.StageID, req.StageID)
		req.CompanyID.assign(&d.CompanyID)
		req.PersonID.assign(&d.PersonID)
		req.ValueCents.assign(&d.ValueCents)
		req.ExpectedCloseDate.assign(&d.ExpectedCloseDate)
		if req.Currency != nil {
			d.Currency = strings.ToUpper(*req.Currency)
		}
		if req.Status != nil {
			d.SetStatus(*req.Status, now)
		}
		d.UpdatedAt = now
	})
	if err != nil {
		writeError(w, r, orNotFound(err, "Deal"))
		return
	}

	writeData(w, r, http.StatusOK, deal)
}

func (s *Server) deleteDeal(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.crm.DeleteDeal(r.Context(), t.OrgID(), id); err != nil {
		writeError(w, r, orNotFound(err, "Deal"))
		return
	}

	writeData(w, r, http.StatusOK, map[string]uuid.UUID{"id": id})
}

// moveDeal moves a deal to another stage of its own pipeline.
func (s *Server) moveDeal(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req moveDealRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	current, err := s.crm.GetDeal(r.Context(), t.OrgID(), id)
	if err != nil {
		writeError(w, r, orNotFound(err, "Deal"))
		return
	}

	stage, err := s.crm.GetStage(r.Context(), t.OrgID(), req.StageID)
	if err != nil {
		writeError(w, r, orNotFound(err, "Stage"))
		return
	}
	if stage.PipelineID != current.PipelineID {
		writeError(w, r, errStageOutsidePipeline)
		return
	}

	now := s.now()
	deal, err := s.crm.UpdateDeal(r.Context(), t.OrgID(), id, func(d *models.Deal) {
		d.StageID = stage.ID
		d.UpdatedAt = now
	})
	if err != nil {
		writeError(w, r, orNotFound(err, "Deal"))
		return
	}

	writeData(w, r, http.StatusOK, deal)
}

// checkStage verifies stageID is a stage of pipelineID within the caller's organization.
func (s *Server) checkStage(ctx context.Context, orgID, pipelineID, stageID uuid.UUID) error {
	stage, err := s.crm.GetStage(ctx, orgID, stageID)
	if errors.Is(err, store.ErrNotFound) {
		return validationError("Validation failed", map[string]string{"stageId": "does not exist"})
	}
	if err != nil {
		return err
	}
	if stage.PipelineID != pipelineID {
		return errStageOutsidePipeline
	}
	return nil
}
