// Package api implements the JSON HTTP surface of the CRM.
//
// Every tenant-scoped route runs behind RequireTenant, which resolves the caller's identity and
// organization once per request. Handlers only ever query the CRM store with that organization's
// ID, so a record owned by another organization is reported exactly like a missing one.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/wolfeidau/crm/internal/identity"
	"github.com/wolfeidau/crm/internal/models"
	"github.com/wolfeidau/crm/internal/store"
	"github.com/wolfeidau/crm/internal/tenancy"
)

// Identity is the subset of identity.Service the HTTP layer uses.
type Identity interface {
	RequiresConfirmation() bool
	SignUp(ctx context.Context, in identity.SignUpInput, sc identity.SessionContext) (*identity.SignUpResult, error)
	VerifyOTP(ctx context.Context, token, otpType string, sc identity.SessionContext) (*models.User, *identity.IssuedSession, error)
	SignIn(ctx context.Context, email, password string, sc identity.SessionContext) (*models.User, *identity.IssuedSession, error)
	SignOut(ctx context.Context, sc identity.SessionContext) error
	ResolveIdentity(ctx context.Context, sc identity.SessionContext) (*models.User, error)
}

// OrgResolver resolves the organization a user acts within.
type OrgResolver interface {
	ResolveOrg(ctx context.Context, user *models.User) (*models.Membership, error)
	Organization(ctx context.Context, membership *models.Membership) (*models.Organization, error)
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// Config configures the HTTP surface.
type Config struct {
	// SecureCookies marks the session cookie Secure. Disable only for local HTTP development.
	SecureCookies bool

	// Limiter throttles signup and login per client IP. Nil disables rate limiting.
	Limiter Limiter
}

// Server serves the CRM API.
type Server struct {
	cfg         Config
	identity    Identity
	orgs        OrgResolver
	provisioner tenancy.Provisioner
	crm         store.CRMStore
	now         func() time.Time
}

// NewServer creates the API server. The provisioner is shared by signup, the confirmation
// callback and ensure-org; orgs is expected to use the same provisioner for lazy resolution.
func NewServer(cfg Config, ident Identity, orgs OrgResolver, provisioner tenancy.Provisioner, crm store.CRMStore) *Server {
	return &Server{
		cfg:         cfg,
		identity:    ident,
		orgs:        orgs,
		provisioner: provisioner,
		crm:         crm,
		now:         time.Now,
	}
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.healthz)

	// auth
	mux.Handle("POST /api/auth/signup", s.rateLimited("signup", http.HandlerFunc(s.signUp)))
	mux.HandleFunc("GET /api/auth/callback", s.callback)
	mux.Handle("POST /api/auth/login", s.rateLimited("login", http.HandlerFunc(s.login)))
	mux.HandleFunc("POST /api/auth/logout", s.logout)
	mux.Handle("POST /api/auth/ensure-org", s.RequireUser(http.HandlerFunc(s.ensureOrg)))
	mux.Handle("GET /api/auth/me", s.RequireTenant(http.HandlerFunc(s.me)))

	tenant := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.RequireTenant(h))
	}

	tenant("GET /api/people", s.listPeople)
	tenant("POST /api/people", s.createPerson)
	tenant("GET /api/people/{id}", s.getPerson)
	tenant("PATCH /api/people/{id}", s.updatePerson)
	tenant("DELETE /api/people/{id}", s.deletePerson)

	tenant("GET /api/companies", s.listCompanies)
	tenant("POST /api/companies", s.createCompany)
	tenant("GET /api/companies/{id}", s.getCompany)
	tenant("PATCH /api/companies/{id}", s.updateCompany)
	tenant("DELETE /api/companies/{id}", s.deleteCompany)

	tenant("GET /api/pipelines", s.listPipelines)
	tenant("POST /api/pipelines", s.createPipeline)

	tenant("GET /api/deals", s.listDeals)
	tenant("POST /api/deals", s.createDeal)
	tenant("GET /api/deals/{id}", s.getDeal)
	tenant("PATCH /api/deals/{id}", s.updateDeal)
	tenant("DELETE /api/deals/{id}", s.deleteDeal)
	tenant("POST /api/deals/{id}/move", s.moveDeal)

	tenant("GET /api/tasks", s.listTasks)
	tenant("POST /api/tasks", s.createTask)
	tenant("GET /api/tasks/{id}", s.getTask)
	tenant("PATCH /api/tasks/{id}", s.updateTask)
	tenant("DELETE /api/tasks/{id}", s.deleteTask)

	tenant("GET /api/interactions", s.listInteractions)
	tenant("POST /api/interactions", s.createInteraction)

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, notFound("Route"))
	})

	return mux
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.crm.Ping(ctx); err != nil {
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
