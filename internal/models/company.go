package models

import (
	"time"

	"github.com/google/uuid"
)

// Company is an account tracked by an organization.
type Company struct {
	ID           uuid.UUID  `json:"id"`
	OrgID        uuid.UUID  `json:"orgId"`
	Name         string     `json:"name"`
	Website      *string    `json:"website"`
	Phone        *string    `json:"phone"`
	AddressLine1 *string    `json:"addressLine1"`
	AddressLine2 *string    `json:"addressLine2"`
	City         *string    `json:"city"`
	State        *string    `json:"state"`
	PostalCode   *string    `json:"postalCode"`
	Country      *string    `json:"country"`
	Tags         []string   `json:"tags"`
	OwnerID      *uuid.UUID `json:"ownerId"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	DeletedAt    *time.Time `json:"-"` // soft delete
}
