package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec

	Checkouts      *prometheus.CounterVec
	Callbacks      *prometheus.CounterVec
	CourierUpdates *prometheus.CounterVec
	RefundsCents   prometheus.Counter
	registry       *prometheus.Registry
}

func New(service string) *Metrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "HTTP requests by route, method and status.",
			ConstLabels: labels,
		}, []string{"route", "method", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_latency_ms",
			Help:        "HTTP request latency in milliseconds.",
			ConstLabels: labels,
			Buckets:     []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route", "method"}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "checkout_total",
			Help:        "Checkout attempts by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		Callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "payment_callbacks_total",
			Help:        "Gateway callbacks by provider and outcome.",
			ConstLabels: labels,
		}, []string{"provider", "outcome"}),
		CourierUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "courier_updates_total",
			Help:        "Courier status updates by courier and outcome.",
			ConstLabels: labels,
		}, []string{"courier", "outcome"}),
		RefundsCents: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "refunded_cents_total",
			Help:        "Gateway-confirmed refunded amount in minor units.",
			ConstLabels: labels,
		}),
		registry: reg,
	}
	reg.MustRegister(m.Requests, m.LatencyMS, m.Checkouts, m.Callbacks, m.CourierUpdates, m.RefundsCents,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records requests against the matched chi route pattern so ids
// in paths do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.Requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		m.LatencyMS.WithLabelValues(route, r.Method).Observe(float64(time.Since(start).Milliseconds()))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
