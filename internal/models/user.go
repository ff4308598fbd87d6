package models

import (
	"time"

	"github.com/google/uuid"
)

// MetadataFullName is the user metadata key holding the display name given at signup.
const MetadataFullName = "full_name"

// User is an authenticated identity. Credentials and confirmation state are owned by the
// identity service; the rest of the system only reads the id, email and metadata.
type User struct {
	UserID       uuid.UUID // UUIDv7
	Email        string
	PasswordHash []byte
	Metadata     map[string]any

	// Email confirmation
	ConfirmationTokenHash *string // SHA256 hex of the emailed token, cleared once confirmed
	ConfirmationSentAt    *time.Time
	EmailConfirmedAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName returns the full name from the user's metadata, or "" when absent.
func (u *User) DisplayName() string {
	name, _ := u.Metadata[MetadataFullName].(string)
	return name
}

// IsConfirmed returns true once the user has confirmed their email address.
func (u *User) IsConfirmed() bool {
	return u.EmailConfirmedAt != nil
}
