package models

import (
	"time"

	"github.com/google/uuid"
)

// Interaction types.
const (
	InteractionNote    = "note"
	InteractionEmail   = "email"
	InteractionSMS     = "sms"
	InteractionCall    = "call"
	InteractionMeeting = "meeting"
	InteractionSystem  = "system"
)

// Interaction is an immutable activity log entry.
type Interaction struct {
	ID         uuid.UUID      `json:"id"`
	OrgID      uuid.UUID      `json:"orgId"`
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurredAt"`
	Summary    *string        `json:"summary"`
	CompanyID  *uuid.UUID     `json:"companyId"`
	PersonID   *uuid.UUID     `json:"personId"`
	DealID     *uuid.UUID     `json:"dealId"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"createdAt"`
}
