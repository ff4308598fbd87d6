package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/crm/internal/identity"
	"github.com/wolfeidau/crm/internal/models"
)

const defaultCallbackRedirect = "/dashboard"

// Login page error codes used by the confirmation callback.
const (
	loginErrorConfirmationFailed = "email_confirmation_failed"
	loginErrorInvalidLink        = "invalid_confirmation_link"
)

type userResponse struct {
	ID               uuid.UUID      `json:"id"`
	Email            string         `json:"email"`
	Metadata         map[string]any `json:"metadata"`
	EmailConfirmedAt *time.Time     `json:"emailConfirmedAt,omitempty"`
	CreatedAt        time.Time      `json:"createdAt,omitzero"`
}

func newUserResponse(u *models.User) userResponse {
	metadata := u.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return userResponse{
		ID:               u.UserID,
		Email:            u.Email,
		Metadata:         metadata,
		EmailConfirmedAt: u.EmailConfirmedAt,
		CreatedAt:        u.CreatedAt,
	}
}

type signUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Name     string `json:"name" validate:"required,max=100"`
}

type signUpResponse struct {
	User                 userResponse `json:"user"`
	RequiresConfirmation bool         `json:"requiresConfirmation,omitempty"`
}

// signUp registers a user and provisions their organization inline. A provisioning failure
// does not fail the signup: the confirmation callback and the first authenticated request
// both provision again.
func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.identity.SignUp(r.Context(), identity.SignUpInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	}, sessionContext(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	if _, err := s.provisioner.Bootstrap(r.Context(), result.User); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).
			Str("user_id", result.User.UserID.String()).
			Msg("Failed to provision organization at signup")
	}

	if result.Session != nil {
		s.setSessionCookie(w, result.Session)
	}

	writeData(w, r, http.StatusCreated, signUpResponse{
		User:                 newUserResponse(result.User),
		RequiresConfirmation: result.RequiresConfirmation,
	})
}

// callback completes email confirmation from the emailed link and redirects into the app.
// Failures redirect to the login page with a coarse error code.
func (s *Server) callback(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())
	q := r.URL.Query()

	tokenHash := q.Get("token_hash")
	otpType := q.Get("type")
	if tokenHash == "" || otpType == "" {
		redirectToLogin(w, r, loginErrorInvalidLink)
		return
	}

	user, session, err := s.identity.VerifyOTP(r.Context(), tokenHash, otpType, sessionContext(r))
	if err != nil {
		logger.Warn().Err(err).Msg("Email confirmation failed")
		redirectToLogin(w, r, loginErrorConfirmationFailed)
		return
	}

	if _, err := s.provisioner.Bootstrap(r.Context(), user); err != nil {
		logger.Error().Err(err).Str("user_id", user.UserID.String()).Msg("Failed to provision organization at confirmation")
		redirectToLogin(w, r, loginErrorConfirmationFailed)
		return
	}

	s.setSessionCookie(w, session)
	http.Redirect(w, r, safeRedirect(q.Get("next")), http.StatusFound)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	ExpiresAt time.Time `json:"expiresAt"`
}

type loginResponse struct {
	User    userResponse    `json:"user"`
	Session sessionResponse `json:"session"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, session, err := s.identity.SignIn(r.Context(), req.Email, req.Password, sessionContext(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.setSessionCookie(w, session)
	writeData(w, r, http.StatusOK, loginResponse{
		User:    newUserResponse(user),
		Session: sessionResponse{ExpiresAt: session.ExpiresAt},
	})
}

// logout deletes the session and clears the cookie. It succeeds without a session.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.identity.SignOut(r.Context(), sessionContext(r)); err != nil && !errors.Is(err, identity.ErrUnauthenticated) {
		writeError(w, r, err)
		return
	}

	s.clearSessionCookie(w)
	writeData(w, r, http.StatusOK, map[string]bool{"success": true})
}

type ensureOrgResponse struct {
	OrgID uuid.UUID `json:"orgId"`
}

// ensureOrg returns the caller's organization, provisioning one if needed.
func (s *Server) ensureOrg(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	membership, err := s.provisioner.Bootstrap(r.Context(), t.User)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, ensureOrgResponse{OrgID: membership.OrgID})
}

type orgResponse struct {
	OrgID uuid.UUID `json:"orgId"`
	Name  string    `json:"name"`
	Slug  string    `json:"slug"`
	Role  string    `json:"role"`
}

type meResponse struct {
	User userResponse `json:"user"`
	Org  orgResponse  `json:"org"`
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	t := tenantFrom(r)

	org, err := s.orgs.Organization(r.Context(), t.Membership)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeData(w, r, http.StatusOK, meResponse{
		User: newUserResponse(t.User),
		Org:  orgResponse{OrgID: org.OrgID, Name: org.Name, Slug: org.Slug, Role: t.Membership.Role},
	})
}

func (s *Server) setSessionCookie(w http.ResponseWriter, session *identity.IssuedSession) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookie,
		Value:    session.AccessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   max(1, int(time.Until(session.ExpiresAt).Seconds())),
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func redirectToLogin(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, "/login?error="+url.QueryEscape(code), http.StatusFound)
}

// safeRedirect only allows same-origin absolute paths, falling back to the dashboard.
func safeRedirect(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, `/\`) {
		return defaultCallbackRedirect
	}

	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return defaultCallbackRedirect
	}

	return u.RequestURI()
}
