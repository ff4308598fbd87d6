package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/store"
)

type createCompanyRequest struct {
	OrgID        *uuid.UUID `json:"orgId"`
	Name         string     `json:"name" validate:"required,max=200"`
	Website      *string    `json:"website" validate:"omitempty,url"`
	Phone        *string    `json:"phone" validate:"omitempty,phone"`
	AddressLine1 *string    `json:"addressLine1" validate:"omitempty,max=200"`
	AddressLine2 *string    `json:"addressLine2" validate:"omitempty,max=200"`
	City         *string    `json:"city" validate:"omitempty,max=100"`
	State        *string    `json:"state" validate:"omitempty,max=100"`
	PostalCode   *string    `json:"postalCode" validate:"omitempty,max=20"`
	Country      *string    `json:"country" validate:"omitempty,max=100"`
	Tags         []string   `json:"tags" validate:"omitempty,dive,required,max=50"`
}

type updateCompanyRequest struct {
	Name         *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Website      nullable[string] `json:"website" validate:"omitempty,url"`
	Phone        nullable[string] `json:"phone" validate:"omitempty,phone"`
	AddressLine1 nullable[string] `json:"addressLine1" validate:"omitempty,max=200"`
	AddressLine2 nullable[string] `json:"addressLine2" validate:"omitempty,max=200"`
	City         nullable[string] `json:"city" validate:"omitempty,max=100"`
	State        nullable[string] `json:"state" validate:"omitempty,max=100"`
	PostalCode   nullable[string] `json:"postalCode" validate:"omitempty,max=20"`
	Country      nullable[string] `json:"country" validate:"omitempty,max=100"`
	Tags         *[]string        `json:"tags" validate:"omitempty,dive,required,max=50"`
}

func (s *Server) listCompanies(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	q := newQueryParams(r)
	page := q.page()
	filter := store.CompanyFilter{Search: q.string("search")}
	if err := q.err(page); err != nil {
		writeError(w, r, err)
		return
	}
	filter.Page = page.store()

	companies, total, err := s.crm.ListCompanies(r.Context(), t.OrgID(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeList(w, r, companies, total, page)
}

func (s *Server) createCompany(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	var req createCompanyRequest
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

	now := s.now()
	ownerID := t.User.UserID
	company := &models.Company{
		ID:           id,
		OrgID:        t.OrgID(),
		Name:         req.Name,
		Website:      req.Website,
		Phone:        req.Phone,
		AddressLine1: req.AddressLine1,
		AddressLine2: req.AddressLine2,
		City:         req.City,
		State:        req.State,
		PostalCode:   req.PostalCode,
		Country:      req.Country,
		Tags:         tagsOrEmpty(req.Tags),
		OwnerID:      &ownerID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.crm.CreateCompany(r.Context(), company); err != nil {
		writeError(w, r, err)
		return
	}

	writeData(w, r, http.StatusCreated, company)
}

func (s *Server) getCompany(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	company, err := s.crm.GetCompany(r.Context(), t.OrgID(), id)
	if err != nil {
		writeError(w, r, orNotFound(err, "Company"))
		return
	}

	writeData(w, r, http.StatusOK, company)
}

func (s *Server) updateCompany(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateCompanyRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	now := s.now()
	company, err := s.crm.UpdateCompany(r.Context(), t.OrgID(), id, func(c *models.Company) {
		setIf(&c.Name, req.Name)
		req.Website.assign(&c.Website)
		req.Phone.assign(&c.Phone)
		req.AddressLine1.assign(&c.AddressLine1)
		req.AddressLine2.assign(&c.AddressLine2)
		req.City.assign(&c.City)
		req.State.assign(&c.State)
		req.PostalCode.assign(&c.PostalCode)
		req.Country.assign(&c.Country)
		setIf(&c.Tags, req.Tags)
		c.UpdatedAt = now
	})
	if err != nil {
		writeError(w, r, orNotFound(err, "Company"))
		return
	}

	writeData(w, r, http.StatusOK, company)
}

func (s *Server) deleteCompany(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.crm.DeleteCompany(r.Context(), t.OrgID(), id); err != nil {
		writeError(w, r, orNotFound(err, "Company"))
		return
	}

	writeData(w, r, http.StatusOK, map[string]uuid.UUID{"id": id})
}
