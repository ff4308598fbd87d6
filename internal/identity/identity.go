// Package identity owns user credentials and sessions: sign up, email confirmation,
// sign in, sign out, and resolving a request's session to a user.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/store"
	"github.com/wolfeidau/crm/internal/telemetry"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUnauthenticated is returned when a request carries no valid session.
	ErrUnauthenticated = errors.New("unauthenticated")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid or expired confirmation token")
)

// Confirmation link types accepted by VerifyOTP.
const (
	OTPTypeSignup = "signup"
	OTPTypeEmail  = "email"
)

// dummyHash is compared against when the email is unknown so both paths cost one bcrypt.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)

// SessionContext is the request state the identity service needs, extracted once by the
// HTTP layer and passed explicitly.
type SessionContext struct {
	AccessToken string
	UserAgent   string
	IPAddress   string
}

// Config configures the identity service.
type Config struct {
	// TokenSecret signs access tokens (HS256). At least 32 bytes.
	TokenSecret []byte

	// SessionTTL is the lifetime of a session and its access token.
	SessionTTL time.Duration

	// RequireEmailConfirmation withholds a session at signup until the emailed link is followed.
	RequireEmailConfirmation bool

	// ConfirmationTTL bounds how long a confirmation link stays valid.
	ConfirmationTTL time.Duration

	// SiteURL is the public base URL used to build confirmation links.
	SiteURL string
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if len(c.TokenSecret) < 32 {
		return fmt.Errorf("token secret must be at least 32 bytes")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be greater than 0")
	}
	if c.RequireEmailConfirmation && c.ConfirmationTTL <= 0 {
		return fmt.Errorf("confirmation TTL must be greater than 0")
	}
	if _, err := url.Parse(c.SiteURL); err != nil {
		return fmt.Errorf("invalid site URL: %w", err)
	}
	return nil
}

// IssuedSession is a freshly created session and the access token that refers to it.
type IssuedSession struct {
	SessionID   uuid.UUID
	AccessToken string
	ExpiresAt   time.Time
}

// SignUpInput is a validated signup request.
type SignUpInput struct {
	Email    string
	Password string
	Name     string
}

// SignUpResult is returned by SignUp. Session is nil when confirmation is required.
type SignUpResult struct {
	User                 *models.User
	Session              *IssuedSession
	RequiresConfirmation bool
}

// Service implements the identity flows on top of the user and session stores.
type Service struct {
	users    store.UserStore
	sessions store.SessionStore
	mailer   Mailer
	signer   *tokenSigner
	cfg      Config
	metrics  *telemetry.Metrics
	now      func() time.Time
}

// NewService creates an identity service.
func NewService(cfg Config, users store.UserStore, sessions store.SessionStore, mailer Mailer) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid identity config: %w", err)
	}
	if mailer == nil {
		mailer = LogMailer{}
	}

	return &Service{
		users:    users,
		sessions: sessions,
		mailer:   mailer,
		signer:   &tokenSigner{secret: cfg.TokenSecret},
		cfg:      cfg,
		metrics:  telemetry.GetMetrics(),
		now:      time.Now,
	}, nil
}

// RequiresConfirmation reports whether new users must confirm their email before signing in.
func (s *Service) RequiresConfirmation() bool {
	return s.cfg.RequireEmailConfirmation
}

// SignUp registers a user. When confirmation is not required the user is signed in immediately.
func (s *Service) SignUp(ctx context.Context, in SignUpInput, sc SessionContext) (*SignUpResult, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	userID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate user id: %w", err)
	}

	now := s.now()
	user := &models.User{
		UserID:       userID,
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: hash,
		Metadata:     map[string]any{models.MetadataFullName: in.Name},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var confirmationToken string
	if s.cfg.RequireEmailConfirmation {
		confirmationToken = rand.Text()
		tokenHash := hashToken(confirmationToken)
		user.ConfirmationTokenHash = &tokenHash
		user.ConfirmationSentAt = &now
	} else {
		user.EmailConfirmedAt = &now
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrUserAlreadyExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.metrics.SignupsTotal.Add(ctx, 1)
	zerolog.Ctx(ctx).Info().Str("user_id", user.UserID.String()).Msg("User signed up")

	if s.cfg.RequireEmailConfirmation {
		if err := s.mailer.SendConfirmation(ctx, user.Email, s.confirmationLink(confirmationToken)); err != nil {
			return nil, fmt.Errorf("failed to send confirmation: %w", err)
		}
		return &SignUpResult{User: user, RequiresConfirmation: true}, nil
	}

	session, err := s.issueSession(ctx, user, sc)
	if err != nil {
		return nil, err
	}

	return &SignUpResult{User: user, Session: session}, nil
}

// VerifyOTP confirms an email address from the token in a confirmation link and signs the user in.
func (s *Service) VerifyOTP(ctx context.Context, token, otpType string, sc SessionContext) (*models.User, *IssuedSession, error) {
	if token == "" || (otpType != OTPTypeSignup && otpType != OTPTypeEmail) {
		return nil, nil, ErrInvalidToken
	}

	tokenHash := hashToken(token)
	user, err := s.users.GetByConfirmationToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, fmt.Errorf("failed to look up confirmation token: %w", err)
	}

	now := s.now()
	if user.ConfirmationSentAt == nil || now.Sub(*user.ConfirmationSentAt) > s.cfg.ConfirmationTTL {
		return nil, nil, ErrInvalidToken
	}

	if err := s.users.ConfirmEmail(ctx, user.UserID, tokenHash, now); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, fmt.Errorf("failed to confirm email: %w", err)
	}
	user.EmailConfirmedAt = &now
	user.ConfirmationTokenHash = nil

	s.metrics.EmailsConfirmedTotal.Add(ctx, 1)

	session, err := s.issueSession(ctx, user, sc)
	if err != nil {
		return nil, nil, err
	}

	return user, session, nil
}

// SignIn checks credentials and creates a session.
func (s *Service) SignIn(ctx context.Context, email, password string, sc SessionContext) (*models.User, *IssuedSession, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil && !errors.Is(err, store.ErrUserNotFound) {
		return nil, nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if user == nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		s.metrics.LoginFailuresTotal.Add(ctx, 1)
		return nil, nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		s.metrics.LoginFailuresTotal.Add(ctx, 1)
		return nil, nil, ErrInvalidCredentials
	}

	if !user.IsConfirmed() {
		s.metrics.LoginFailuresTotal.Add(ctx, 1)
		return nil, nil, ErrEmailNotConfirmed
	}

	session, err := s.issueSession(ctx, user, sc)
	if err != nil {
		return nil, nil, err
	}

	s.metrics.LoginsTotal.Add(ctx, 1)
	return user, session, nil
}

// SignOut deletes the session referenced by the access token. Signing out twice is not an error.
func (s *Service) SignOut(ctx context.Context, sc SessionContext) error {
	_, sessionID, err := s.signer.parse(sc.AccessToken)
	if err != nil {
		return ErrUnauthenticated
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, store.ErrSessionNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

// ResolveIdentity returns the user behind the request's access token.
// Every failure is ErrUnauthenticated; there is nothing to retry.
func (s *Service) ResolveIdentity(ctx context.Context, sc SessionContext) (*models.User, error) {
	logger := zerolog.Ctx(ctx)

	if sc.AccessToken == "" {
		return nil, ErrUnauthenticated
	}

	userID, sessionID, err := s.signer.parse(sc.AccessToken)
	if err != nil {
		logger.Debug().Err(err).Msg("Access token rejected")
		return nil, ErrUnauthenticated
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		logger.Debug().Err(err).Str("session_id", sessionID.String()).Msg("Session rejected")
		return nil, ErrUnauthenticated
	}
	if session.UserID != userID {
		return nil, ErrUnauthenticated
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		logger.Debug().Err(err).Str("user_id", userID.String()).Msg("User rejected")
		return nil, ErrUnauthenticated
	}

	if err := s.sessions.UpdateLastUsed(ctx, sessionID); err != nil {
		logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Failed to update session last used")
	}

	return user, nil
}

// SweepExpiredSessions removes sessions past their expiry.
func (s *Service) SweepExpiredSessions(ctx context.Context) (int, error) {
	count, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep sessions: %w", err)
	}
	s.metrics.SessionsSweptTotal.Add(ctx, int64(count))
	return count, nil
}

func (s *Service) issueSession(ctx context.Context, user *models.User, sc SessionContext) (*IssuedSession, error) {
	sessionID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	now := s.now()
	session := &models.Session{
		SessionID:  sessionID,
		UserID:     user.UserID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.cfg.SessionTTL),
		LastUsedAt: now,
		UserAgent:  sc.UserAgent,
		IPAddress:  sc.IPAddress,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := s.signer.issue(user.UserID, sessionID, now, session.ExpiresAt)
	if err != nil {
		return nil, err
	}

	return &IssuedSession{SessionID: sessionID, AccessToken: token, ExpiresAt: session.ExpiresAt}, nil
}

func (s *Service) confirmationLink(token string) string {
	q := url.Values{}
	q.Set("token_hash", token)
	q.Set("type", OTPTypeSignup)
	return strings.TrimSuffix(s.cfg.SiteURL, "/") + "/api/auth/callback?" + q.Encode()
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
