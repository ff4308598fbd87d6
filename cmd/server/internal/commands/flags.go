package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/wolfeidau/crm/internal/identity"
	"github.com/wolfeidau/crm/internal/ratelimit"
	postgresstore "github.com/wolfeidau/crm/internal/store/postgres"
	"github.com/wolfeidau/crm/internal/tenancy"
)

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString      string `help:"PostgreSQL connection string for tenant-scoped queries" env:"POSTGRES_CONNECTION_STRING"`
	AdminConnString string `help:"PostgreSQL connection string for the privileged client, defaults to the tenant connection" env:"POSTGRES_ADMIN_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`
	ConnectAttempts uint  `help:"pings attempted before giving up on the database at startup" default:"5"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"CRM_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	if s.MinConns > s.MaxConns {
		return fmt.Errorf("postgres min conns (%d) exceeds max conns (%d)", s.MinConns, s.MaxConns)
	}
	return nil
}

func (s *PostgresStoreFlags) poolConfig(connString string) *postgresstore.PoolConfig {
	return &postgresstore.PoolConfig{
		ConnString:      connString,
		MaxConns:        s.MaxConns,
		MinConns:        s.MinConns,
		MaxConnLifetime: s.MaxConnLifetime,
		MaxConnIdleTime: s.MaxConnIdleTime,
		ConnectAttempts: s.ConnectAttempts,
	}
}

// adminConnString returns the privileged connection string.
func (s *PostgresStoreFlags) adminConnString() string {
	if s.AdminConnString != "" {
		return s.AdminConnString
	}
	return s.ConnString
}

// AuthFlags configures sessions and email confirmation.
type AuthFlags struct {
	TokenSecret              string        `help:"secret used to sign access tokens (at least 32 bytes)" env:"CRM_AUTH_TOKEN_SECRET"`
	SessionTTL               time.Duration `help:"session TTL" default:"168h" env:"CRM_AUTH_SESSION_TTL"`
	RequireEmailConfirmation bool          `help:"withhold sessions at signup until the email is confirmed" default:"false" env:"CRM_AUTH_REQUIRE_EMAIL_CONFIRMATION"`
	ConfirmationTTL          time.Duration `help:"how long confirmation links stay valid" default:"24h" env:"CRM_AUTH_CONFIRMATION_TTL"`
	SiteURL                  string        `help:"public base URL used in confirmation links" default:"http://localhost:8080" env:"CRM_AUTH_SITE_URL"`
	SecureCookies            bool          `help:"mark session cookies as Secure" default:"true" env:"CRM_AUTH_SECURE_COOKIES" negatable:""`
}

func (a *AuthFlags) Validate() error {
	if a.TokenSecret == "" {
		return errors.New("token secret is required (--auth-token-secret or CRM_AUTH_TOKEN_SECRET)")
	}
	return a.identityConfig().Validate()
}

func (a *AuthFlags) identityConfig() identity.Config {
	return identity.Config{
		TokenSecret:              []byte(a.TokenSecret),
		SessionTTL:               a.SessionTTL,
		RequireEmailConfirmation: a.RequireEmailConfirmation,
		ConfirmationTTL:          a.ConfirmationTTL,
		SiteURL:                  a.SiteURL,
	}
}

// TenancyFlags configures organization resolution and provisioning.
type TenancyFlags struct {
	CacheSize         int           `help:"number of memberships cached by the org resolver, 0 disables the cache" default:"10000" env:"CRM_TENANCY_CACHE_SIZE"`
	CacheTTL          time.Duration `help:"how long a cached membership is trusted, 0 never expires" default:"5m" env:"CRM_TENANCY_CACHE_TTL"`
	ProvisionMaxTries uint          `help:"attempts made to provision an organization before giving up" default:"3" env:"CRM_TENANCY_PROVISION_MAX_TRIES"`
}

func (t *TenancyFlags) Validate() error {
	if t.CacheSize < 0 {
		return errors.New("tenancy cache size must not be negative")
	}
	if t.CacheTTL < 0 {
		return errors.New("tenancy cache TTL must not be negative")
	}
	return nil
}

func (t *TenancyFlags) resolverConfig() tenancy.ResolverConfig {
	return tenancy.ResolverConfig{
		CacheSize: t.CacheSize,
		CacheTTL:  t.CacheTTL,
	}
}

// RateLimitFlags configures the Redis-backed limiter on signup and login.
type RateLimitFlags struct {
	RedisAddr     string        `help:"Redis address for rate limiting, empty disables limiting" default:"" env:"CRM_REDIS_ADDR"`
	RedisPassword string        `help:"Redis password" default:"" env:"CRM_REDIS_PASSWORD"`
	RedisDB       int           `help:"Redis database number" default:"0" env:"CRM_REDIS_DB"`
	Requests      int           `help:"requests allowed per client per window on auth routes" default:"10" env:"CRM_RATE_LIMIT_REQUESTS"`
	Window        time.Duration `help:"rate limit window" default:"1m" env:"CRM_RATE_LIMIT_WINDOW"`
}

func (r *RateLimitFlags) Enabled() bool {
	return r.RedisAddr != ""
}

func (r *RateLimitFlags) limiterConfig() ratelimit.Config {
	return ratelimit.Config{
		Requests: r.Requests,
		Window:   r.Window,
		Prefix:   "crm:ratelimit",
	}
}

func (r *RateLimitFlags) Validate() error {
	if !r.Enabled() {
		return nil
	}
	return r.limiterConfig().Validate()
}
