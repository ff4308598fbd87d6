package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/store"
)

func newUser(email string) *models.User {
	now := time.Now()
	return &models.User{
		UserID:       uuid.Must(uuid.NewV7()),
		Email:        email,
		PasswordHash: []byte("hash"),
		Metadata:     map[string]any{models.MetadataFullName: "Jane Doe"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUserStore_Create(t *testing.T) {
	t.Run("create and fetch by id and email", func(t *testing.T) {
		st := NewUserStore()
		ctx := context.Background()
		user := newUser("jane@example.com")

		require.NoError(t, st.Create(ctx, user))

		got, err := st.Get(ctx, user.UserID)
		require.NoError(t, err)
		require.Equal(t, "Jane Doe", got.DisplayName())

		got, err = st.GetByEmail(ctx, "JANE@example.com")
		require.NoError(t, err)
		require.Equal(t, user.UserID, got.UserID)
	})

	t.Run("duplicate email is rejected case insensitively", func(t *testing.T) {
		st := NewUserStore()
		ctx := context.Background()

		require.NoError(t, st.Create(ctx, newUser("jane@example.com")))

		err := st.Create(ctx, newUser("Jane@Example.com"))
		require.ErrorIs(t, err, store.ErrUserAlreadyExists)
	})

	t.Run("missing user", func(t *testing.T) {
		st := NewUserStore()
		ctx := context.Background()

		_, err := st.Get(ctx, uuid.Must(uuid.NewV7()))
		require.ErrorIs(t, err, store.ErrUserNotFound)

		_, err = st.GetByEmail(ctx, "nobody@example.com")
		require.ErrorIs(t, err, store.ErrUserNotFound)
	})
}

func TestUserStore_ReturnsCopies(t *testing.T) {
	st := NewUserStore()
	ctx := context.Background()
	user := newUser("jane@example.com")
	require.NoError(t, st.Create(ctx, user))

	got, err := st.Get(ctx, user.UserID)
	require.NoError(t, err)
	got.Metadata[models.MetadataFullName] = "mutated"

	again, err := st.Get(ctx, user.UserID)
	require.NoError(t, err)
	require.Equal(t, "Jane Doe", again.DisplayName())
}

func TestUserStore_ConfirmEmail(t *testing.T) {
	st := NewUserStore()
	ctx := context.Background()

	tokenHash := "abc123"
	sentAt := time.Now()
	user := newUser("jane@example.com")
	user.ConfirmationTokenHash = &tokenHash
	user.ConfirmationSentAt = &sentAt
	require.NoError(t, st.Create(ctx, user))

	got, err := st.GetByConfirmationToken(ctx, tokenHash)
	require.NoError(t, err)
	require.False(t, got.IsConfirmed())

	confirmedAt := time.Now()
	require.ErrorIs(t, st.ConfirmEmail(ctx, user.UserID, "other", confirmedAt), store.ErrUserNotFound)
	require.NoError(t, st.ConfirmEmail(ctx, user.UserID, tokenHash, confirmedAt))

	// a second confirmation holding the same hash loses
	require.ErrorIs(t, st.ConfirmEmail(ctx, user.UserID, tokenHash, confirmedAt), store.ErrUserNotFound)

	got, err = st.Get(ctx, user.UserID)
	require.NoError(t, err)
	require.True(t, got.IsConfirmed())
	require.Nil(t, got.ConfirmationTokenHash)

	// the token is single use
	_, err = st.GetByConfirmationToken(ctx, tokenHash)
	require.ErrorIs(t, err, store.ErrUserNotFound)

	require.ErrorIs(t, st.ConfirmEmail(ctx, uuid.Must(uuid.NewV7()), tokenHash, confirmedAt), store.ErrUserNotFound)
}
