package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh token usage outcomes for the app_refresh_token_usage_total counter.
const (
	RefreshOutcomeRotated  = "rotated"
	RefreshOutcomeReused   = "reused"
	RefreshOutcomeRejected = "rejected"
)

// Metrics holds the Prometheus counters for the authentication flows,
// registered on a private registry and exposed on GET /metrics.
type Metrics struct {
	registry      *prometheus.Registry
	logins        prometheus.Counter
	registrations prometheus.Counter
	refreshUsage  *prometheus.CounterVec
	adminActions  prometheus.Counter
	guestLogins   prometheus.Counter
}

// NewMetrics creates and registers the application counters.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "app_user_logins_total",
			Help: "Total successful credential logins.",
		}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "app_user_registrations_total",
			Help: "Total user registrations.",
		}),
		refreshUsage: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "app_refresh_token_usage_total",
			Help: "Refresh token presentations by outcome.",
		}, []string{"outcome"}),
		adminActions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "app_admin_actions_total",
			Help: "Total role-gated administrative operations.",
		}),
		guestLogins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "app_guest_logins_total",
			Help: "Total logins by the seeded guest account.",
		}),
	}

	m.registry.MustRegister(m.logins, m.registrations, m.refreshUsage, m.adminActions, m.guestLogins)
	return m
}

// UserLogin counts a successful credential login
func (m *Metrics) UserLogin() {
	m.logins.Inc()
}

// UserRegistration counts a completed registration
func (m *Metrics) UserRegistration() {
	m.registrations.Inc()
}

// RefreshUsage counts a refresh token presentation with its outcome
func (m *Metrics) RefreshUsage(outcome string) {
	m.refreshUsage.WithLabelValues(outcome).Inc()
}

// AdminAction counts an administrative operation
func (m *Metrics) AdminAction() {
	m.adminActions.Inc()
}

// GuestLogin counts a login by the guest account
func (m *Metrics) GuestLogin() {
	m.guestLogins.Inc()
}

// Handler returns the Prometheus text exposition endpoint for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
