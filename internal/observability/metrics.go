package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	documentsIssued  *prometheus.CounterVec
	documentsVoided  *prometheus.CounterVec
	paymentsPosted   *prometheus.CounterVec
	paymentAmount    prometheus.Counter
	txRetries        prometheus.Counter
	statementBuilds  *prometheus.CounterVec
	periodTransition *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookledger_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bookledger_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	issued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookledger_documents_issued_total",
		Help: "Documents issued by kind.",
	}, []string{"kind"})
	voided := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookledger_documents_voided_total",
		Help: "Documents voided by kind.",
	}, []string{"kind"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookledger_payments_posted_total",
		Help: "Payments posted by mode.",
	}, []string{"mode"})
	amount := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bookledger_payments_amount_total",
		Help: "Sum of posted payment amounts.",
	})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bookledger_tx_retries_total",
		Help: "Transactions restarted after a serialization failure or deadlock.",
	})
	statements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookledger_statement_builds_total",
		Help: "Statement requests by cache outcome.",
	}, []string{"source"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookledger_period_transitions_total",
		Help: "Period lifecycle transitions.",
	}, []string{"action"})
	registry.MustRegister(requests, duration, issued, voided, payments, amount, retries, statements, transitions)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		documentsIssued:  issued,
		documentsVoided:  voided,
		paymentsPosted:   payments,
		paymentAmount:    amount,
		txRetries:        retries,
		statementBuilds:  statements,
		periodTransition: transitions,
	}
}

// DocumentIssued menghitung dokumen baru per jenis.
func (m *Metrics) DocumentIssued(kind string) {
	if m == nil {
		return
	}
	m.documentsIssued.WithLabelValues(kind).Inc()
}

// DocumentVoided menghitung dokumen yang dibatalkan.
func (m *Metrics) DocumentVoided(kind string) {
	if m == nil {
		return
	}
	m.documentsVoided.WithLabelValues(kind).Inc()
}

// PaymentPosted records one posted payment and its amount.
func (m *Metrics) PaymentPosted(mode string, amount float64) {
	if m == nil {
		return
	}
	m.paymentsPosted.WithLabelValues(mode).Inc()
	if amount > 0 {
		m.paymentAmount.Add(amount)
	}
}

// TxRetried counts one restarted transaction.
func (m *Metrics) TxRetried() {
	if m == nil {
		return
	}
	m.txRetries.Inc()
}

// StatementServed counts a statement served from "cache" or "build".
func (m *Metrics) StatementServed(source string) {
	if m == nil {
		return
	}
	m.statementBuilds.WithLabelValues(source).Inc()
}

// PeriodTransition counts create, close, open and update calls that committed.
func (m *Metrics) PeriodTransition(action string) {
	if m == nil {
		return
	}
	m.periodTransition.WithLabelValues(action).Inc()
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
