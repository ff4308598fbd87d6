package tenancy

import (
	"strings"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// DefaultDisplayName is used when the user has no full name in their metadata.
const DefaultDisplayName = "User"

// OrganizationName returns the name of the default organization for a user.
func OrganizationName(displayName string) string {
	return displayName + "'s Organization"
}

// Slugify lower-cases name and replaces whitespace runs with a single "-".
func Slugify(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

// NewSlug derives a globally unique slug from a display name.
// The suffix is the base58 encoding of a fresh UUIDv7, so no clock coordination is needed.
func NewSlug(displayName string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}

	suffix := base58.Encode(id[:])
	if base := Slugify(displayName); base != "" {
		return base + "-" + suffix, nil
	}
	return suffix, nil
}
