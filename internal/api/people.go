package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/store"
)

type createPersonRequest struct {
	OrgID       *uuid.UUID `json:"orgId"`
	FirstName   string     `json:"firstName" validate:"required,max=100"`
	LastName    string     `json:"lastName" validate:"required,max=100"`
	Email       *string    `json:"email" validate:"omitempty,email"`
	Phone       *string    `json:"phone" validate:"omitempty,phone"`
	Title       *string    `json:"title" validate:"omitempty,max=100"`
	LinkedInURL *string    `json:"linkedinUrl" validate:"omitempty,url"`
	CompanyID   *uuid.UUID `json:"companyId"`
	Tags        []string   `json:"tags" validate:"omitempty,dive,required,max=50"`
}

type updatePersonRequest struct {
	FirstName   *string             `json:"firstName" validate:"omitempty,min=1,max=100"`
	LastName    *string             `json:"lastName" validate:"omitempty,min=1,max=100"`
	Email       nullable[string]    `json:"email" validate:"omitempty,email"`
	Phone       nullable[string]    `json:"phone" validate:"omitempty,phone"`
	Title       nullable[string]    `json:"title" validate:"omitempty,max=100"`
	LinkedInURL nullable[string]    `json:"linkedinUrl" validate:"omitempty,url"`
	CompanyID   nullable[uuid.UUID] `json:"companyId"`
	Tags        *[]string           `json:"tags" validate:"omitempty,dive,required,max=50"`
}

func (s *Server) listPeople(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	q := newQueryParams(r)
	page := q.page()
	filter := store.PersonFilter{
		Search:    q.string("search"),
		CompanyID: q.uuid("companyId"),
	}
	if err := q.err(page); err != nil {
		writeError(w, r, err)
		return
	}
	filter.Page = page.store()

	people, total, err := s.crm.ListPeople(r.Context(), t.OrgID(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeList(w, r, people, total, page)
}

func (s *Server) createPerson(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	var req createPersonRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := checkOrg(t, req.OrgID); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.checkReferences(r.Context(), t.OrgID(), s.companyRef("companyId", req.CompanyID)); err != nil {
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
	person := &models.Person{
		ID:          id,
		OrgID:       t.OrgID(),
		CompanyID:   req.CompanyID,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Phone:       req.Phone,
		Title:       req.Title,
		LinkedInURL: req.LinkedInURL,
		Tags:        tagsOrEmpty(req.Tags),
		OwnerID:     &ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.crm.CreatePerson(r.Context(), person); err != nil {
		writeError(w, r, err)
		return
	}

	writeData(w, r, http.StatusCreated, person)
}

func (s *Server) getPerson(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	person, err := s.crm.GetPerson(r.Context(), t.OrgID(), id)
	if err != nil {
		writeError(w, r, orNotFound(err, "Person"))
		return
	}

	writeData(w, r, http.StatusOK, person)
}

func (s *Server) updatePerson(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updatePersonRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.checkReferences(r.Context(), t.OrgID(), s.companyRef("companyId", req.CompanyID.ptr())); err != nil {
		writeError(w, r, err)
		return
	}

	now := s.now()
	person, err := s.crm.UpdatePerson(r.Context(), t.OrgID(), id, func(p *models.Person) {
		setIf(&p.FirstName, req.FirstName)
		setIf(&p.LastName, req.LastName)
		req.Email.assign(&p.Email)
		req.Phone.assign(&p.Phone)
		req.Title.assign(&p.Title)
		req.LinkedInURL.assign(&p.LinkedInURL)
		req.CompanyID.assign(&p.CompanyID)
		setIf(&p.Tags, req.Tags)
		p.UpdatedAt = now
	})
	if err != nil {
		writeError(w, r, orNotFound(err, "Person"))
		return
	}

	writeData(w, r, http.StatusOK, person)
}

func (s *Server) deletePerson(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.crm.DeletePerson(r.Context(), t.OrgID(), id); err != nil {
		writeError(w, r, orNotFound(err, "Person"))
		return
	}

	writeData(w, r, http.StatusOK, map[string]uuid.UUID{"id": id})
}

// setIf assigns *v to dst when the field was present in a PATCH body.
func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
