package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/store"
)

type createTaskRequest struct {
	OrgID     *uuid.UUID `json:"orgId"`
	Title     string     `json:"title" validate:"required,max=200"`
	DueAt     *time.Time `json:"dueAt"`
	Priority  string     `json:"priority" validate:"omitempty,oneof=low medium high"`
	CompanyID *uuid.UUID `json:"companyId"`
	PersonID  *uuid.UUID `json:"personId"`
	DealID    *uuid.UUID `json:"dealId"`
}

type updateTaskRequest struct {
	Title    *string             `json:"title" validate:"omitempty,min=1,max=200"`
	DueAt    nullable[time.Time] `json:"dueAt"`
	Priority *string             `json:"priority" validate:"omitempty,oneof=low medium high"`
	Status   *string             `json:"status" validate:"omitempty,oneof=pending completed"`
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	q := newQueryParams(r)
	page := q.page()
	filter := store.TaskFilter{
		Status:   q.oneOf("status", models.TaskStatusPending, models.TaskStatusCompleted),
		DealID:   q.uuid("dealId"),
		PersonID: q.uuid("personId"),
	}
	if err := q.err(page); err != nil {
		writeError(w, r, err)
		return
	}
	filter.Page = page.store()

	tasks, total, err := s.crm.ListTasks(r.Context(), t.OrgID(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeList(w, r, tasks, total, page)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	var req createTaskRequest
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

	priority := req.Priority
	if priority == "" {
		priority = models.TaskPriorityMedium
	}

	ownerID := t.User.UserID
	task := &models.Task{
		ID:        id,
		OrgID:     t.OrgID(),
		Title:     req.Title,
		DueAt:     req.DueAt,
		Status:    models.TaskStatusPending,
		Priority:  priority,
		OwnerID:   &ownerID,
		CompanyID: req.CompanyID,
		PersonID:  req.PersonID,
		DealID:    req.DealID,
		CreatedAt: s.now(),
	}

	if err := s.crm.CreateTask(r.Context(), task); err != nil {
		writeError(w, r, err)
		return
	}

	writeData(w, r, http.StatusCreated, task)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	task, err := s.crm.GetTask(r.Context(), t.OrgID(), id)
	if err != nil {
		writeError(w, r, orNotFound(err, "Task"))
		return
	}

	writeData(w, r, http.StatusOK, task)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req updateTaskRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	now := s.now()
	task, err := s.crm.UpdateTask(r.Context(), t.OrgID(), id, func(task *models.Task) {
		setIf(&task.Title, req.Title)
		req.DueAt.assign(&task.DueAt)
		setIf(&task.Priority, req.Priority)
		if req.Status != nil && *req.Status != task.Status {
			task.SetStatus(*req.Status, now)
		}
	})
	if err != nil {
		writeError(w, r, orNotFound(err, "Task"))
		return
	}

	writeData(w, r, http.StatusOK, task)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.crm.DeleteTask(r.Context(), t.OrgID(), id); err != nil {
		writeError(w, r, orNotFound(err, "Task"))
		return
	}

	writeData(w, r, http.StatusOK, map[string]uuid.UUID{"id": id})
}
