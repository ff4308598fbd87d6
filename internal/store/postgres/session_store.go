package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/store"
)

var _ store.SessionStore = (*SessionStore)(nil)

const sessionColumns = `session_id, user_id, created_at, expires_at, last_used_at, user_agent, host(ip_address)`

// SessionStore implements store.SessionStore using PostgreSQL.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a new PostgreSQL-backed session store.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func scanSession(row scanner) (*models.Session, error) {
	var (
		session   models.Session
		ipAddress *string
	)
	if err := row.Scan(
		&session.SessionID, &session.UserID,
		&session.CreatedAt, &session.ExpiresAt, &session.LastUsedAt,
		&session.UserAgent, &ipAddress,
	); err != nil {
		return nil, err
	}
	if ipAddress != nil {
		session.IPAddress = *ipAddress
	}
	return &session, nil
}

// Create inserts a session. An empty IP address is stored as NULL.
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	var ipAddress any
	if session.IPAddress != "" {
		ipAddress = session.IPAddress
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, created_at, expires_at, last_used_at, user_agent, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7::inet)`,
		session.SessionID, session.UserID,
		session.CreatedAt, session.ExpiresAt, session.LastUsedAt,
		session.UserAgent, ipAddress,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", mapPostgresError(err))
	}

	log.Debug().Stringer("session_id", session.SessionID).Stringer("user_id", session.UserID).Msg("Created session")
	return nil
}

// Get returns a live session. Expired rows are reported as ErrSessionExpired until swept.
func (s *SessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	session, err := scanSession(s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1`, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", mapPostgresError(err))
	}

	if session.IsExpired() {
		return nil, store.ErrSessionExpired
	}
	return session, nil
}

// UpdateLastUsed stamps the session with the database clock.
func (s *SessionStore) UpdateLastUsed(ctx context.Context, sessionID uuid.UUID) error {
	return s.execSession(ctx, "touch session", `UPDATE sessions SET last_used_at = now() WHERE session_id = $1`, sessionID)
}

// Delete removes a single session (logout).
func (s *SessionStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	return s.execSession(ctx, "delete session", `DELETE FROM sessions WHERE session_id = $1`, sessionID)
}

func (s *SessionStore) execSession(ctx context.Context, what, query string, sessionID uuid.UUID) error {
	err := execOne(ctx, s.pool, what, query, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return store.ErrSessionNotFound
	}
	return err
}

// DeleteByUser removes every session of a user and returns how many were removed.
func (s *SessionStore) DeleteByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions for user: %w", mapPostgresError(err))
	}
	return int(tag.RowsAffected()), nil
}

// DeleteExpired removes sessions past their expiry.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", mapPostgresError(err))
	}
	return int(tag.RowsAffected()), nil
}
