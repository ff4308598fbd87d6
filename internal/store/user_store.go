package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/crm/internal/models"
)

// Sentinel errors for user store operations
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
)

// UserStore defines the interface for user credential storage.
type UserStore interface {
	// Create creates a new user.
	// Returns ErrUserAlreadyExists if the email is already registered.
	Create(ctx context.Context, user *models.User) error

	// Get retrieves a user by ID.
	Get(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// GetByEmail retrieves a user by email address (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// GetByConfirmationToken retrieves the user holding an outstanding confirmation token hash.
	GetByConfirmationToken(ctx context.Context, tokenHash string) (*models.User, error)

	// ConfirmEmail marks the email as confirmed and clears the confirmation token, provided the
	// user still holds tokenHash. Returns ErrUserNotFound once the token has been consumed.
	ConfirmEmail(ctx context.Context, userID uuid.UUID, tokenHash string, confirmedAt time.Time) error
}
