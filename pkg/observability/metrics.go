package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Access control metrics
	AuthzDecisionsTotal *prometheus.CounterVec

	// Session metrics
	SessionOperationsTotal *prometheus.CounterVec
	OrgSelectionsTotal     *prometheus.CounterVec
	RoleResolutionsTotal   *prometheus.CounterVec
	SessionDegradedTotal   prometheus.Counter

	// Subscription metrics
	SubscriptionEventsTotal *prometheus.CounterVec
	ActiveSubscriptions     *prometheus.GaugeVec
	CatalogLookupsTotal     *prometheus.CounterVec

	// Mail metrics
	MailSentTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gazette_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gazette_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gazette_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),

		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gazette_authz_decisions_total",
				Help: "Permission checks by resource, action, role and outcome",
			},
			[]string{"resource", "action", "role", "decision"},
		),

		SessionOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gazette_session_operations_total",
				Help: "Session store operations by outcome",
			},
			[]string{"operation", "status"},
		),
		OrgSelectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gazette_org_selections_total",
				Help: "Active organization selections by source",
			},
			[]string{"source"},
		),
		RoleResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gazette_role_resolutions_total",
				Help: "Effective roles handed out to sessions",
			},
			[]string{"role"},
		),

		SessionDegradedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gazette_session_degraded_total",
				Help: "Requests served anonymously because their session could not be loaded",
			},
		),

		SubscriptionEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gazette_subscription_events_total",
				Help: "Subscription lifecycle events by tier",
			},
			[]string{"event", "tier"},
		),
		ActiveSubscriptions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gazette_active_subscriptions",
				Help: "Unexpired subscriptions by tier",
			},
			[]string{"tier"},
		),
		CatalogLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gazette_catalog_lookups_total",
				Help: "Subscription catalog lookups by cache result",
			},
			[]string{"result"},
		),

		MailSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gazette_mail_sent_total",
				Help: "Outbound email by kind and outcome",
			},
			[]string{"kind", "status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.AuthzDecisionsTotal,
		m.SessionOperationsTotal,
		m.OrgSelectionsTotal,
		m.RoleResolutionsTotal,
		m.SessionDegradedTotal,
		m.SubscriptionEventsTotal,
		m.ActiveSubscriptions,
		m.CatalogLookupsTotal,
		m.MailSentTotal,
	)

	return m
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordAuthzDecision counts a permission check
func (m *Metrics) RecordAuthzDecision(resource, action, role string, allowed bool) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.AuthzDecisionsTotal.WithLabelValues(resource, action, role, decision).Inc()
}

// RecordSessionOperation counts a session store call
func (m *Metrics) RecordSessionOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.SessionOperationsTotal.WithLabelValues(operation, statusLabel(err)).Inc()
}

// RecordSessionDegraded counts a session read that fell back to anonymous
func (m *Metrics) RecordSessionDegraded() {
	if m == nil {
		return
	}
	m.SessionDegradedTotal.Inc()
}

// RecordOrgSelection counts where an active organization came from
func (m *Metrics) RecordOrgSelection(source string) {
	if m == nil {
		return
	}
	m.OrgSelectionsTotal.WithLabelValues(source).Inc()
}

// RecordRoleResolution counts an effective role assignment
func (m *Metrics) RecordRoleResolution(role string) {
	if m == nil {
		return
	}
	m.RoleResolutionsTotal.WithLabelValues(role).Inc()
}

// RecordSubscriptionEvent counts a purchase, renewal, change or cancel
func (m *Metrics) RecordSubscriptionEvent(event, tier string) {
	if m == nil {
		return
	}
	m.SubscriptionEventsTotal.WithLabelValues(event, tier).Inc()
}

// SetActiveSubscriptions sets the active subscription gauge for a tier
func (m *Metrics) SetActiveSubscriptions(tier string, n int) {
	if m == nil {
		return
	}
	m.ActiveSubscriptions.WithLabelValues(tier).Set(float64(n))
}

// RecordCatalogLookup counts a catalog cache hit or miss
func (m *Metrics) RecordCatalogLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CatalogLookupsTotal.WithLabelValues(result).Inc()
}

// RecordMail counts an outbound email
func (m *Metrics) RecordMail(kind string, err error) {
	if m == nil {
		return
	}
	m.MailSentTotal.WithLabelValues(kind, statusLabel(err)).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel prefers the mux route template so IDs do not explode label
// cardinality.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(serveMux *http.ServeMux, registry *prometheus.Registry) {
	serveMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
