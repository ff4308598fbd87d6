package models

import (
	"time"

	"github.com/google/uuid"
)

// Task statuses and priorities.
const (
	TaskStatusPending   = "pending"
	TaskStatusCompleted = "completed"

	TaskPriorityLow    = "low"
	TaskPriorityMedium = "medium"
	TaskPriorityHigh   = "high"
)

// Task is a follow-up item, optionally linked to a company, person or deal.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	OrgID       uuid.UUID  `json:"orgId"`
	Title       string     `json:"title"`
	DueAt       *time.Time `json:"dueAt"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	OwnerID     *uuid.UUID `json:"ownerId"`
	CompanyID   *uuid.UUID `json:"companyId"`
	PersonID    *uuid.UUID `json:"personId"`
	DealID      *uuid.UUID `json:"dealId"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt"`
}

// SetStatus updates the status and stamps or clears CompletedAt.
func (t *Task) SetStatus(status string, now time.Time) {
	t.Status = status
	if status == TaskStatusCompleted {
		t.CompletedAt = &now
		return
	}
	t.CompletedAt = nil
}
