package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/crm/internal/identity"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/ratelimit"
)

var errMembershipInsert = errors.New("membership insert failed")

type meBody struct {
	User struct {
		ID       uuid.UUID      `json:"id"`
		Email    string         `json:"email"`
		Metadata map[string]any `json:"metadata"`
	} `json:"user"`
	Org struct {
		OrgID uuid.UUID `json:"orgId"`
		Name  string    `json:"name"`
		Slug  string    `json:"slug"`
		Role  string    `json:"role"`
	} `json:"org"`
}

func TestSignUp_ProvisionsOrganization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	token := env.signUp(t, "ada@example.com", "Ada Lovelace")

	orgs := env.orgs.ListOrganizations(ctx)
	require.Len(t, orgs, 1)
	require.Equal(t, "Ada Lovelace's Organization", orgs[0].Name)

	rec := env.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	me := decodeData[meBody](t, rec)
	require.Equal(t, "ada@example.com", me.User.Email)
	require.Equal(t, "Ada Lovelace", me.User.Metadata[models.MetadataFullName])
	require.Equal(t, orgs[0].OrgID, me.Org.OrgID)
	require.Equal(t, "Ada Lovelace's Organization", me.Org.Name)
	require.Equal(t, orgs[0].Slug, me.Org.Slug)
	require.Equal(t, models.RoleOwner, me.Org.Role)

	// later requests reuse the same organization
	rec = env.do(t, http.MethodPost, "/api/auth/ensure-org", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, env.orgs.ListOrganizations(ctx), 1)
}

func TestSignUp_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    "not-an-email",
		"password": "123",
	})

	body := requireError(t, rec, http.StatusBadRequest, CodeValidation)
	require.Contains(t, body.Error.Details, "email")
	require.Contains(t, body.Error.Details, "password")
	require.Contains(t, body.Error.Details, "name")
	require.Empty(t, env.orgs.ListOrganizations(context.Background()))
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "dup@example.com", "First")

	rec := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    "dup@example.com",
		"password": "password123",
		"name":     "Second",
	})
	requireError(t, rec, http.StatusConflict, CodeConflict)
	require.Len(t, env.orgs.ListOrganizations(context.Background()), 1)
}

func TestSignUp_MalformedBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	requireError(t, rec, http.StatusBadRequest, CodeValidation)
}

func TestConfirmationFlow(t *testing.T) {
	env := newTestEnv(t, withConfirmation())
	ctx := context.Background()

	rec := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    "grace@example.com",
		"password": "password123",
		"name":     "Grace Hopper",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Empty(t, accessCookie(rec), "no session before confirmation")

	signup := decodeData[struct {
		RequiresConfirmation bool `json:"requiresConfirmation"`
	}](t, rec)
	require.True(t, signup.RequiresConfirmation)

	// provisioned at signup even though the user cannot sign in yet
	orgs := env.orgs.ListOrganizations(ctx)
	require.Len(t, orgs, 1)

	// unconfirmed users cannot sign in
	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "grace@example.com",
		"password": "password123",
	})
	requireError(t, rec, http.StatusUnauthorized, CodeUnauthorized)

	callback := env.mailer.lastCallback(t) + "&next=/people"
	rec = env.do(t, http.MethodGet, callback, "", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/people", rec.Header().Get("Location"))

	token := accessCookie(rec)
	require.NotEmpty(t, token)

	rec = env.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, orgs[0].OrgID, decodeData[meBody](t, rec).Org.OrgID)
	require.Len(t, env.orgs.ListOrganizations(ctx), 1, "callback must not provision a second organization")

	// links are single use
	rec = env.do(t, http.MethodGet, callback, "", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/login?error=email_confirmation_failed", rec.Header().Get("Location"))
}

func TestCallback_ProvisionsWhenSignupDidNot(t *testing.T) {
	env := newTestEnv(t, withConfirmation())
	ctx := context.Background()

	// sign up through the identity service only, as if inline provisioning had failed
	_, err := env.identity.SignUp(ctx, identity.SignUpInput{
		Email:    "late@example.com",
		Password: "password123",
		Name:     "Late Bloomer",
	}, identity.SessionContext{})
	require.NoError(t, err)
	require.Empty(t, env.orgs.ListOrganizations(ctx))

	rec := env.do(t, http.MethodGet, env.mailer.lastCallback(t), "", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, defaultCallbackRedirect, rec.Header().Get("Location"))

	orgs := env.orgs.ListOrganizations(ctx)
	require.Len(t, orgs, 1)
	require.Equal(t, "Late Bloomer's Organization", orgs[0].Name)
}

func TestCallback_InvalidLinks(t *testing.T) {
	env := newTestEnv(t, withConfirmation())

	tests := []struct {
		name     string
		path     string
		location string
	}{
		{"missing token", "/api/auth/callback?type=signup", "/login?error=invalid_confirmation_link"},
		{"missing type", "/api/auth/callback?token_hash=abc", "/login?error=invalid_confirmation_link"},
		{"unknown token", "/api/auth/callback?token_hash=abc&type=signup", "/login?error=email_confirmation_failed"},
		{"unsupported type", "/api/auth/callback?token_hash=abc&type=recovery", "/login?error=email_confirmation_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.path, "", nil)
			require.Equal(t, http.StatusFound, rec.Code)
			require.Equal(t, tt.location, rec.Header().Get("Location"))
			require.Empty(t, accessCookie(rec))
		})
	}
}

func TestSafeRedirect(t *testing.T) {
	tests := []struct {
		next string
		want string
	}{
		{"", "/dashboard"},
		{"/people", "/people"},
		{"/deals?status=open", "/deals?status=open"},
		{"https://evil.example.com", "/dashboard"},
		{"//evil.example.com/path", "/dashboard"},
		{`/\evil.example.com`, "/dashboard"},
		{"people", "/dashboard"},
		{"javascript:alert(1)", "/dashboard"},
	}

	for _, tt := range tests {
		t.Run(tt.next, func(t *testing.T) {
			require.Equal(t, tt.want, safeRedirect(tt.next))
		})
	}
}

func TestLoginLogout(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "linus@example.com", "Linus")

	rec := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "linus@example.com",
		"password": "wrong-password",
	})
	body := requireError(t, rec, http.StatusUnauthorized, CodeUnauthorized)
	require.Equal(t, "Invalid email or password", body.Error.Message)

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "linus@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	login := decodeData[struct {
		Session struct {
			ExpiresAt time.Time `json:"expiresAt"`
		} `json:"session"`
	}](t, rec)
	require.WithinDuration(t, time.Now().Add(time.Hour), login.Session.ExpiresAt, time.Minute)

	token := accessCookie(rec)
	require.NotEmpty(t, token)

	rec = env.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, AccessTokenCookie, cookies[0].Name)
	require.Negative(t, cookies[0].MaxAge)

	rec = env.do(t, http.MethodGet, "/api/auth/me", token, nil)
	requireError(t, rec, http.StatusUnauthorized, CodeUnauthorized)

	// logging out without a session still clears the cookie
	rec = env.do(t, http.MethodPost, "/api/auth/logout", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestEnsureOrg(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := env.do(t, http.MethodPost, "/api/auth/ensure-org", "", nil)
	requireError(t, rec, http.StatusUnauthorized, CodeUnauthorized)

	// a user with a session but no organization
	result, err := env.identity.SignUp(ctx, identity.SignUpInput{
		Email:    "lazy@example.com",
		Password: "password123",
		Name:     "Lazy User",
	}, identity.SessionContext{})
	require.NoError(t, err)
	token := result.Session.AccessToken

	type ensureBody struct {
		OrgID uuid.UUID `json:"orgId"`
	}

	rec = env.do(t, http.MethodPost, "/api/auth/ensure-org", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decodeData[ensureBody](t, rec)
	require.NotEqual(t, uuid.Nil, first.OrgID)

	rec = env.do(t, http.MethodPost, "/api/auth/ensure-org", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, first.OrgID, decodeData[ensureBody](t, rec).OrgID)

	require.Len(t, env.orgs.ListOrganizations(ctx), 1)
}

func TestEnsureOrg_ProvisioningFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.identity.SignUp(ctx, identity.SignUpInput{
		Email:    "unlucky@example.com",
		Password: "password123",
		Name:     "Unlucky",
	}, identity.SessionContext{})
	require.NoError(t, err)

	env.orgs.FailNextMembershipInsert(errMembershipInsert)

	rec := env.do(t, http.MethodPost, "/api/auth/ensure-org", result.Session.AccessToken, nil)
	body := requireError(t, rec, http.StatusInternalServerError, CodeProvisioningFailed)
	require.Equal(t, "Failed to create organization", body.Error.Message)
	require.NotContains(t, rec.Body.String(), errMembershipInsert.Error())
	require.Empty(t, env.orgs.ListOrganizations(ctx), "failed provisioning must not leave an organization behind")

	// the next attempt succeeds
	rec = env.do(t, http.MethodPost, "/api/auth/ensure-org", result.Session.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestLazyProvisioningOnFirstRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.identity.SignUp(ctx, identity.SignUpInput{
		Email:    "first@example.com",
		Password: "password123",
		Name:     "First Request",
	}, identity.SessionContext{})
	require.NoError(t, err)
	token := result.Session.AccessToken

	var wg sync.WaitGroup
	codes := make([]int, 8)
	for i := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i] = env.do(t, http.MethodGet, "/api/people", token, nil).Code
		}()
	}
	wg.Wait()

	for _, code := range codes {
		require.Equal(t, http.StatusOK, code)
	}
	require.Len(t, env.orgs.ListOrganizations(ctx), 1)
}

func TestRequireTenant_ForbiddenWhenProvisioningFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.identity.SignUp(ctx, identity.SignUpInput{
		Email:    "forbidden@example.com",
		Password: "password123",
		Name:     "Forbidden",
	}, identity.SessionContext{})
	require.NoError(t, err)

	env.orgs.FailNextMembershipInsert(errMembershipInsert)

	rec := env.do(t, http.MethodGet, "/api/people", result.Session.AccessToken, nil)
	body := requireError(t, rec, http.StatusForbidden, CodeForbidden)
	require.Equal(t, "Not a member of any organization", body.Error.Message)
}

func TestRateLimitedLogin(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := ratelimit.NewRedisLimiter(client, ratelimit.Config{Requests: 2, Window: time.Minute})
	require.NoError(t, err)

	env := newTestEnv(t, withLimiter(limiter))

	login := map[string]string{"email": "nobody@example.com", "password": "password123"}
	for range 2 {
		rec := env.do(t, http.MethodPost, "/api/auth/login", "", login)
		requireError(t, rec, http.StatusUnauthorized, CodeUnauthorized)
	}

	rec := env.do(t, http.MethodPost, "/api/auth/login", "", login)
	requireError(t, rec, http.StatusTooManyRequests, CodeRateLimitExceeded)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	// signup is counted separately
	rec = env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "new@example.com", "password": "password123", "name": "New",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	mr.FastForward(time.Minute)

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", login)
	requireError(t, rec, http.StatusUnauthorized, CodeUnauthorized)
}
