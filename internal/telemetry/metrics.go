package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/crm"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Organization provisioning
	OrgsProvisionedTotal    metric.Int64Counter
	ProvisionConflictsTotal metric.Int64Counter
	ProvisionFailuresTotal  metric.Int64Counter
	ProvisionRetriesTotal   metric.Int64Counter
	ProvisionDuration       metric.Float64Histogram

	// Organization resolution
	MembershipCacheHits   metric.Int64Counter
	MembershipCacheMisses metric.Int64Counter

	// Authentication
	SignupsTotal         metric.Int64Counter
	LoginsTotal          metric.Int64Counter
	LoginFailuresTotal   metric.Int64Counter
	EmailsConfirmedTotal metric.Int64Counter
	SessionsSweptTotal   metric.Int64Counter

	// Rate limiting
	RateLimitedTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.OrgsProvisionedTotal, _ = meter.Int64Counter(
		"crm.orgs.provisioned.total",
		metric.WithDescription("Total number of organizations created by the bootstrapper"),
		metric.WithUnit("{organization}"),
	)

	m.ProvisionConflictsTotal, _ = meter.Int64Counter(
		"crm.orgs.provision.conflicts.total",
		metric.WithDescription("Provisioning attempts that lost a race and adopted an existing membership"),
		metric.WithUnit("{attempt}"),
	)

	m.ProvisionFailuresTotal, _ = meter.Int64Counter(
		"crm.orgs.provision.failures.total",
		metric.WithDescription("Provisioning attempts that failed"),
		metric.WithUnit("{attempt}"),
	)

	m.ProvisionRetriesTotal, _ = meter.Int64Counter(
		"crm.orgs.provision.retries.total",
		metric.WithDescription("Provisioning transactions retried after a transient storage error"),
		metric.WithUnit("{retry}"),
	)

	m.ProvisionDuration, _ = meter.Float64Histogram(
		"crm.orgs.provision.duration",
		metric.WithDescription("Duration of organization provisioning"),
		metric.WithUnit("ms"),
	)

	m.MembershipCacheHits, _ = meter.Int64Counter(
		"crm.membership_cache.hits.total",
		metric.WithDescription("Organization resolutions served from the membership cache"),
		metric.WithUnit("{lookup}"),
	)

	m.MembershipCacheMisses, _ = meter.Int64Counter(
		"crm.membership_cache.misses.total",
		metric.WithDescription("Organization resolutions that read the membership store"),
		metric.WithUnit("{lookup}"),
	)

	m.SignupsTotal, _ = meter.Int64Counter(
		"crm.auth.signups.total",
		metric.WithDescription("Total number of user signups"),
		metric.WithUnit("{user}"),
	)

	m.LoginsTotal, _ = meter.Int64Counter(
		"crm.auth.logins.total",
		metric.WithDescription("Total number of successful logins"),
		metric.WithUnit("{session}"),
	)

	m.LoginFailuresTotal, _ = meter.Int64Counter(
		"crm.auth.login_failures.total",
		metric.WithDescription("Total number of rejected logins"),
		metric.WithUnit("{attempt}"),
	)

	m.EmailsConfirmedTotal, _ = meter.Int64Counter(
		"crm.auth.emails_confirmed.total",
		metric.WithDescription("Total number of confirmed email addresses"),
		metric.WithUnit("{user}"),
	)

	m.SessionsSweptTotal, _ = meter.Int64Counter(
		"crm.auth.sessions_swept.total",
		metric.WithDescription("Expired sessions removed by the cleanup job"),
		metric.WithUnit("{session}"),
	)

	m.RateLimitedTotal, _ = meter.Int64Counter(
		"crm.ratelimit.rejected.total",
		metric.WithDescription("Requests rejected by the rate limiter"),
		metric.WithUnit("{request}"),
	)

	return m
}
