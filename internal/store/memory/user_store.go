package memory

import (
	"context"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/store"
)

var _ store.UserStore = (*UserStore)(nil)

// UserStore implements store.UserStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type UserStore struct {
	mu sync.RWMutex

	users   map[uuid.UUID]*models.User // user_id -> User
	byEmail map[string]uuid.UUID       // lower(email) -> user_id
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		users:   make(map[uuid.UUID]*models.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

// Create creates a new user in memory.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, exists := s.byEmail[key]; exists {
		return store.ErrUserAlreadyExists
	}
	if _, exists := s.users[user.UserID]; exists {
		return store.ErrUserAlreadyExists
	}

	s.users[user.UserID] = cloneUser(user)
	s.byEmail[key] = user.UserID

	return nil
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[userID]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	return cloneUser(user), nil
}

// GetByEmail retrieves a user by email address.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, exists := s.byEmail[strings.ToLower(email)]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	return cloneUser(s.users[userID]), nil
}

// GetByConfirmationToken retrieves the user holding the given confirmation token hash.
func (s *UserStore) GetByConfirmationToken(ctx context.Context, tokenHash string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.ConfirmationTokenHash != nil && *user.ConfirmationTokenHash == tokenHash {
			return cloneUser(user), nil
		}
	}

	return nil, store.ErrUserNotFound
}

// ConfirmEmail marks the user's email as confirmed if tokenHash is still outstanding.
func (s *UserStore) ConfirmEmail(ctx context.Context, userID uuid.UUID, tokenHash string, confirmedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists || user.ConfirmationTokenHash == nil || *user.ConfirmationTokenHash != tokenHash {
		return store.ErrUserNotFound
	}

	user.EmailConfirmedAt = &confirmedAt
	user.ConfirmationTokenHash = nil
	user.UpdatedAt = confirmedAt

	return nil
}

func cloneUser(user *models.User) *models.User {
	clone := *user
	clone.Metadata = maps.Clone(user.Metadata)
	clone.PasswordHash = append([]byte(nil), user.PasswordHash...)
	return &clone
}
