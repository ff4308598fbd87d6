package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"filippo.io/csrf"
	"github.com/go-redis/redis/v8"
	"github.com/klauspost/compress/gzhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/wolfeidau/crm/internal/api"
	httpmiddleware "github.com/wolfeidau/crm/internal/http"
	"github.com/wolfeidau/crm/internal/identity"
	"github.com/wolfeidau/crm/internal/logger"
	"github.com/wolfeidau/crm/internal/ratelimit"
	"github.com/wolfeidau/crm/internal/store"
	memorystore "github.com/wolfeidau/crm/internal/store/memory"
	postgresstore "github.com/wolfeidau/crm/internal/store/postgres"
	"github.com/wolfeidau/crm/internal/telemetry"
	"github.com/wolfeidau/crm/internal/tenancy"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"CRM_LISTEN"`
	Cert   string `help:"path to TLS cert file" default:"" env:"CRM_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"CRM_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:3000" env:"CRM_CORS_ORIGINS"`
	TrustProxy  bool     `help:"use X-Forwarded-For and X-Real-IP to determine the client IP" default:"false" env:"CRM_TRUST_PROXY"`

	// Telemetry
	Tracing          bool    `help:"enable tracing" default:"false" env:"CRM_TRACING"`
	TraceSampleRatio float64 `help:"fraction of root traces recorded" default:"1.0" env:"CRM_TRACE_SAMPLE_RATIO"`

	// Background jobs
	SessionSweepSchedule string `help:"cron schedule for removing expired sessions, empty disables the sweep" default:"@every 1h" env:"CRM_SESSION_SWEEP_SCHEDULE"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"CRM_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`

	Auth      AuthFlags      `embed:"" prefix:"auth-"`
	Tenancy   TenancyFlags   `embed:"" prefix:"tenancy-"`
	RateLimit RateLimitFlags `embed:"" prefix:"rate-limit-"`
}

func (c *ServeCmd) validate() error {
	if (c.Cert == "") != (c.Key == "") {
		return errors.New("TLS cert and key must be provided together")
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return fmt.Errorf("trace sample ratio must be between 0 and 1, got %v", c.TraceSampleRatio)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("invalid auth flags: %w", err)
	}
	if err := c.Tenancy.Validate(); err != nil {
		return fmt.Errorf("invalid tenancy flags: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit flags: %w", err)
	}
	if c.StoreType == "postgres" {
		if err := c.PostgresStore.Validate(); err != nil {
			return fmt.Errorf("invalid postgres flags: %w", err)
		}
	}
	return nil
}

// stores bundles the backends selected by --store-type.
type stores struct {
	users    store.UserStore
	sessions store.SessionStore
	orgs     store.PrivilegedClient
	crm      store.CRMStore
	close    func()
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	zlog.Logger = log
	zerolog.DefaultContextLogger = &log

	if err := c.validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Tracing {
		log.Info().Float64("sample_ratio", c.TraceSampleRatio).Msg("Tracing is enabled")
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: "crm-server",
			Version:     globals.Version,
			SampleRatio: c.TraceSampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	st, err := c.createStores(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	ident, err := identity.NewService(c.Auth.identityConfig(), st.users, st.sessions, identity.LogMailer{})
	if err != nil {
		return fmt.Errorf("failed to create identity service: %w", err)
	}

	bootstrapper := tenancy.NewBootstrapper(st.orgs, c.Tenancy.ProvisionMaxTries)
	resolver := tenancy.NewResolver(st.orgs, bootstrapper, c.Tenancy.resolverConfig())

	apiCfg := api.Config{SecureCookies: c.Auth.SecureCookies}
	if c.RateLimit.Enabled() {
		limiter, closeLimiter, err := c.createLimiter(ctx)
		if err != nil {
			return err
		}
		defer closeLimiter()
		apiCfg.Limiter = limiter
		log.Info().Str("redis_addr", c.RateLimit.RedisAddr).Int("requests", c.RateLimit.Requests).Dur("window", c.RateLimit.Window).Msg("Rate limiting is enabled")
	}

	srv := api.NewServer(apiCfg, ident, resolver, bootstrapper, st.crm)

	var handler http.Handler = srv.Handler()
	handler = gzhttp.GzipHandler(handler)
	handler = csrf.New().Handler(handler)
	handler = withCORS(c.CORSOrigins, handler)
	handler = httpmiddleware.ClientIPMiddleware(c.TrustProxy)(handler)
	handler = logger.HTTPRequests(log)(handler)
	if c.Tracing {
		handler = otelhttp.NewHandler(handler, "crm-api")
	}

	scheduler, err := c.startScheduler(ctx, ident)
	if err != nil {
		return err
	}
	defer func() {
		<-scheduler.Stop().Done()
	}()

	server := configureHTTPServer(c.Listen, handler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Msg("Listening")
		var err error
		if c.Cert != "" {
			err = server.ListenAndServeTLS(c.Cert, c.Key)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}

func (c *ServeCmd) createStores(ctx context.Context) (*stores, error) {
	if c.StoreType != "postgres" {
		zerolog.Ctx(ctx).Info().Msg("Using in-memory stores")
		return &stores{
			users:    memorystore.NewUserStore(),
			sessions: memorystore.NewSessionStore(),
			orgs:     memorystore.NewOrganizationStore(),
			crm:      memorystore.NewCRMStore(),
			close:    func() {},
		}, nil
	}

	pool, err := postgresstore.NewPool(ctx, c.PostgresStore.poolConfig(c.PostgresStore.ConnString))
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	adminPool := pool
	if c.PostgresStore.AdminConnString != "" {
		adminPool, err = postgresstore.NewPool(ctx, c.PostgresStore.poolConfig(c.PostgresStore.adminConnString()))
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create privileged connection pool: %w", err)
		}
	}

	closeAll := func() {
		pool.Close()
		if adminPool != pool {
			adminPool.Close()
		}
	}

	if c.PostgresStore.AutoMigrate {
		if err := postgresstore.RunMigrations(ctx, adminPool); err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		zerolog.Ctx(ctx).Info().Msg("Database migrations completed")
	}

	zerolog.Ctx(ctx).Info().Bool("separate_admin_pool", adminPool != pool).Msg("Using PostgreSQL stores")

	return &stores{
		users:    postgresstore.NewUserStore(adminPool),
		sessions: postgresstore.NewSessionStore(adminPool),
		orgs:     postgresstore.NewOrganizationStore(adminPool),
		crm:      postgresstore.NewCRMStore(pool),
		close:    closeAll,
	}, nil
}

func (c *ServeCmd) createLimiter(ctx context.Context) (*ratelimit.RedisLimiter, func(), error) {
	client := redis.NewClient(&redis.Options{
		Addr:     c.RateLimit.RedisAddr,
		Password: c.RateLimit.RedisPassword,
		DB:       c.RateLimit.RedisDB,
	})

	limiter, err := ratelimit.NewRedisLimiter(client, c.RateLimit.limiterConfig())
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := limiter.Ping(pingCtx); err != nil {
		// the limiter fails open
		zerolog.Ctx(ctx).Warn().Err(err).Str("redis_addr", c.RateLimit.RedisAddr).Msg("Redis is not reachable, requests will not be limited until it is")
	}

	return limiter, func() { _ = client.Close() }, nil
}

// startScheduler runs the periodic maintenance jobs.
func (c *ServeCmd) startScheduler(ctx context.Context, ident *identity.Service) (*cron.Cron, error) {
	scheduler := cron.New()

	if c.SessionSweepSchedule != "" {
		_, err := scheduler.AddFunc(c.SessionSweepSchedule, func() {
			sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()

			count, err := ident.SweepExpiredSessions(sweepCtx)
			if err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to sweep expired sessions")
				return
			}
			zerolog.Ctx(ctx).Info().Int("count", count).Msg("Swept expired sessions")
		})
		if err != nil {
			return nil, fmt.Errorf("invalid session sweep schedule %q: %w", c.SessionSweepSchedule, err)
		}
	}

	scheduler.Start()
	return scheduler, nil
}

// withCORS adds CORS support to the API handler.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true, // Required for cookie-based authentication
	})
	return middleware.Handler(h)
}
