// Package tenancy resolves the organization a user acts within and provisions one
// when the user has none.
package tenancy

import (
	"context"
	"errors"

	"github.com/wolfeidau/crm/internal/models"
)

var (
	// ErrForbidden is returned when no organization can be resolved or provisioned for a user.
	ErrForbidden = errors.New("forbidden")

	// ErrProvisioningFailed is returned when the organization or owner membership could not be created.
	ErrProvisioningFailed = errors.New("organization provisioning failed")
)

// Provisioner creates a user's first organization and owner membership.
// Implementations must be idempotent: a user who already has a membership gets it back.
type Provisioner interface {
	Bootstrap(ctx context.Context, user *models.User) (*models.Membership, error)
}
