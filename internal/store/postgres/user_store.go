package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/store"
)

var _ store.UserStore = (*UserStore)(nil)

const userColumns = `
	user_id, email, password_hash, metadata,
	confirmation_token_hash, confirmation_sent_at, email_confirmed_at,
	created_at, updated_at
`

// UserStore implements store.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new PostgreSQL-backed user store.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{
		pool: pool,
	}
}

// Create creates a new user.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	metadata := user.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		user.UserID,
		user.Email,
		user.PasswordHash,
		metadata,
		user.ConfirmationTokenHash,
		user.ConfirmationSentAt,
		user.EmailConfirmedAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		mapped := mapPostgresError(err)
		if errors.Is(mapped, store.ErrUserAlreadyExists) {
			return store.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", mapped)
	}

	log.Debug().
		Str("user_id", user.UserID.String()).
		Msg("Created user")

	return nil
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID)
}

// GetByEmail retrieves a user by email address (case-insensitive).
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

// GetByConfirmationToken retrieves the user holding an outstanding confirmation token hash.
func (s *UserStore) GetByConfirmationToken(ctx context.Context, tokenHash string) (*models.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE confirmation_token_hash = $1`, tokenHash)
}

// ConfirmEmail marks the email as confirmed and clears the confirmation token. Only the
// caller that still matches tokenHash updates the row.
func (s *UserStore) ConfirmEmail(ctx context.Context, userID uuid.UUID, tokenHash string, confirmedAt time.Time) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE users
		SET email_confirmed_at = $2, confirmation_token_hash = NULL, updated_at = $2
		WHERE user_id = $1 AND confirmation_token_hash = $3
	`, userID, confirmedAt, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to confirm email: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrUserNotFound
	}

	return nil
}

func (s *UserStore) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&user.UserID,
		&user.Email,
		&user.PasswordHash,
		&user.Metadata,
		&user.ConfirmationTokenHash,
		&user.ConfirmationSentAt,
		&user.EmailConfirmedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", mapPostgresError(err))
	}

	return &user, nil
}
