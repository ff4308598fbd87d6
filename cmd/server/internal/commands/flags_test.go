package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validServeCmd() *ServeCmd {
	return &ServeCmd{
		TraceSampleRatio: 1,
		StoreType:        "memory",
		Auth: AuthFlags{
			TokenSecret:     "test-secret-key-min-32-bytes-long",
			SessionTTL:      time.Hour,
			ConfirmationTTL: time.Hour,
			SiteURL:         "http://localhost:8080",
		},
		Tenancy:   TenancyFlags{CacheSize: 100, CacheTTL: time.Minute, ProvisionMaxTries: 3},
		RateLimit: RateLimitFlags{Requests: 10, Window: time.Minute},
	}
}

func TestServeCmdValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *ServeCmd)
		wantErr string
	}{
		{name: "valid", mutate: func(c *ServeCmd) {}},
		{name: "cert without key", mutate: func(c *ServeCmd) { c.Cert = "cert.pem" }, wantErr: "TLS cert and key"},
		{name: "sample ratio out of range", mutate: func(c *ServeCmd) { c.TraceSampleRatio = 1.5 }, wantErr: "sample ratio"},
		{name: "missing token secret", mutate: func(c *ServeCmd) { c.Auth.TokenSecret = "" }, wantErr: "token secret is required"},
		{name: "short token secret", mutate: func(c *ServeCmd) { c.Auth.TokenSecret = "short" }, wantErr: "at least 32 bytes"},
		{name: "negative cache size", mutate: func(c *ServeCmd) { c.Tenancy.CacheSize = -1 }, wantErr: "cache size"},
		{name: "rate limit disabled ignores requests", mutate: func(c *ServeCmd) { c.RateLimit.Requests = 0 }},
		{name: "rate limit enabled needs requests", mutate: func(c *ServeCmd) {
			c.RateLimit.RedisAddr = "localhost:6379"
			c.RateLimit.Requests = 0
		}, wantErr: "requests per window"},
		{name: "postgres needs connection string", mutate: func(c *ServeCmd) { c.StoreType = "postgres" }, wantErr: "connection string is required"},
		{name: "postgres min above max", mutate: func(c *ServeCmd) {
			c.StoreType = "postgres"
			c.PostgresStore = PostgresStoreFlags{ConnString: "postgres://localhost/crm", MaxConns: 2, MinConns: 5}
		}, wantErr: "exceeds max conns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validServeCmd()
			tt.mutate(c)

			err := c.validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestAdminConnStringFallsBack(t *testing.T) {
	flags := PostgresStoreFlags{ConnString: "postgres://app@localhost/crm"}
	require.Equal(t, "postgres://app@localhost/crm", flags.adminConnString())

	flags.AdminConnString = "postgres://admin@localhost/crm"
	require.Equal(t, "postgres://admin@localhost/crm", flags.adminConnString())
}

func TestStartSchedulerRejectsBadSchedule(t *testing.T) {
	c := validServeCmd()
	c.SessionSweepSchedule = "not a schedule"

	_, err := c.startScheduler(t.Context(), nil)
	require.ErrorContains(t, err, "invalid session sweep schedule")
}
