package models

import (
	"time"

	"github.com/google/uuid"
)

// Membership roles.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// Membership links a user to the organization they act within.
// A user has at most one membership, enforced by the store.
type Membership struct {
	OrgID     uuid.UUID
	UserID    uuid.UUID
	Role      string
	CreatedAt time.Time
}
