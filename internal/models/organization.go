package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents an organization (tenant) in the system.
// Every CRM record belongs to exactly one organization.
type Organization struct {
	OrgID     uuid.UUID // UUIDv7
	Name      string
	Slug      string // unique across all organizations
	CreatedAt time.Time
	UpdatedAt time.Time
}
