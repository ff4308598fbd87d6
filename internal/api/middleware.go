package api

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	httpmiddleware "github.com/wolfeidau/crm/internal/http"
	"github.com/wolfeidau/crm/internal/identity"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/telemetry"
)

// AccessTokenCookie carries the access token for browser clients.
const AccessTokenCookie = "sb-access-token"

type contextKey string

const tenantContextKey contextKey = "tenant"

// Tenant is the resolved caller of a request. Membership is nil on routes that only
// require a user.
type Tenant struct {
	User       *models.User
	Membership *models.Membership
}

// OrgID returns the caller's organization ID.
func (t *Tenant) OrgID() uuid.UUID {
	return t.Membership.OrgID
}

// TenantFromContext returns the caller stored by RequireUser or RequireTenant.
func TenantFromContext(ctx context.Context) (*Tenant, bool) {
	t, ok := ctx.Value(tenantContextKey).(*Tenant)
	return t, ok
}

func tenantFrom(r *http.Request) *Tenant {
	t, _ := TenantFromContext(r.Context())
	return t
}

// sessionContext extracts the credential and audit data for the identity service.
// The cookie wins over an Authorization header.
func sessionContext(r *http.Request) identity.SessionContext {
	sc := identity.SessionContext{
		UserAgent: r.UserAgent(),
		IPAddress: httpmiddleware.ClientIPFromContext(r.Context()),
	}

	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		sc.AccessToken = cookie.Value
		return sc
	}

	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		sc.AccessToken = strings.TrimSpace(token)
	}

	return sc
}

// RequireUser rejects requests without a valid session and stores the user in the context.
func (s *Server) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.identity.ResolveIdentity(r.Context(), sessionContext(r))
		if err != nil {
			writeError(w, r, err)
			return
		}

		logger := zerolog.Ctx(r.Context()).With().Str("user_id", user.UserID.String()).Logger()
		ctx := logger.WithContext(r.Context())
		ctx = context.WithValue(ctx, tenantContextKey, &Tenant{User: user})

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireTenant resolves the caller's identity and organization, provisioning an organization
// for users that have none. Unauthenticated requests get 401 and unresolvable organizations 403.
func (s *Server) RequireTenant(next http.Handler) http.Handler {
	return s.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := tenantFrom(r)

		membership, err := s.orgs.ResolveOrg(r.Context(), t.User)
		if err != nil {
			writeError(w, r, err)
			return
		}

		logger := zerolog.Ctx(r.Context()).With().Str("org_id", membership.OrgID.String()).Logger()
		ctx := logger.WithContext(r.Context())
		ctx = context.WithValue(ctx, tenantContextKey, &Tenant{User: t.User, Membership: membership})

		next.ServeHTTP(w, r.WithContext(ctx))
	}))
}

// rateLimited throttles a route per client IP. Limiter failures let the request through.
func (s *Server) rateLimited(route string, next http.Handler) http.Handler {
	if s.cfg.Limiter == nil {
		return next
	}

	metrics := telemetry.GetMetrics()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httpmiddleware.ClientIPFromContext(r.Context())
		if ip == "" {
			ip = "unknown"
		}

		allowed, retryAfter, err := s.cfg.Limiter.Allow(r.Context(), route+":"+ip)
		if err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Str("route", route).Msg("Rate limiter unavailable, allowing request")
		}

		if !allowed {
			metrics.RateLimitedTotal.Add(r.Context(), 1)
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(retryAfter.Seconds())))))
			writeError(w, r, newError(http.StatusTooManyRequests, CodeRateLimitExceeded, "Too many requests"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
