package models

import (
	"time"

	"github.com/google/uuid"
)

// Deal statuses.
const (
	DealStatusOpen = "open"
	DealStatusWon  = "won"
	DealStatusLost = "lost"
)

// Pipeline is an ordered set of stages deals move through.
type Pipeline struct {
	ID        uuid.UUID `json:"id"`
	OrgID     uuid.UUID `json:"orgId"`
	Name      string    `json:"name"`
	Stages    []*Stage  `json:"stages"`
	CreatedAt time.Time `json:"createdAt"`
}

// Stage is a single step of a pipeline.
type Stage struct {
	ID         uuid.UUID `json:"id"`
	OrgID      uuid.UUID `json:"orgId"`
	PipelineID uuid.UUID `json:"pipelineId"`
	Name       string    `json:"name"`
	Position   int       `json:"position"`
}

// Deal is an opportunity progressing through a pipeline.
type Deal struct {
	ID                uuid.UUID  `json:"id"`
	OrgID             uuid.UUID  `json:"orgId"`
	PipelineID        uuid.UUID  `json:"pipelineId"`
	StageID           uuid.UUID  `json:"stageId"`
	CompanyID         *uuid.UUID `json:"companyId"`
	PersonID          *uuid.UUID `json:"personId"`
	Name              string     `json:"name"`
	ValueCents        *int64     `json:"valueCents"`
	Currency          string     `json:"currency"`
	OwnerID           *uuid.UUID `json:"ownerId"`
	ExpectedCloseDate *string    `json:"expectedCloseDate"` // YYYY-MM-DD
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	ClosedAt          *time.Time `json:"closedAt"`
}

// SetStatus updates the status and keeps ClosedAt consistent with it:
// won and lost deals are closed at now, reopened deals have ClosedAt cleared.
func (d *Deal) SetStatus(status string, now time.Time) {
	d.Status = status
	if status == DealStatusWon || status == DealStatusLost {
		d.ClosedAt = &now
		return
	}
	d.ClosedAt = nil
}
