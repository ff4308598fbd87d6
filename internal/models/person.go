package models

import (
	"time"

	"github.com/google/uuid"
)

// Person is a contact tracked by an organization.
type Person struct {
	ID              uuid.UUID  `json:"id"`
	OrgID           uuid.UUID  `json:"orgId"`
	CompanyID       *uuid.UUID `json:"companyId"`
	FirstName       string     `json:"firstName"`
	LastName        string     `json:"lastName"`
	Email           *string    `json:"email"`
	Phone           *string    `json:"phone"`
	Title           *string    `json:"title"`
	LinkedInURL     *string    `json:"linkedinUrl"`
	Tags            []string   `json:"tags"`
	OwnerID         *uuid.UUID `json:"ownerId"`
	LastContactedAt *time.Time `json:"lastContactedAt"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	DeletedAt       *time.Time `json:"-"` // soft delete
}
