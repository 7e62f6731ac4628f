// Package metrics agrupa las métricas Prometheus del servicio.
// Las funciones Record*/Observe* son no-op hasta que se llama Register,
// así los paquetes de dominio pueden usarlas sin wiring en tests.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricsOnce sync.Once
	metricsErr  error

	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        prometheus.Gauge

	// Login / tokens
	loginAttemptsTotal   *prometheus.CounterVec
	tokensIssuedTotal    *prometheus.CounterVec
	tokenRejectionsTotal *prometheus.CounterVec
	reconcileTotal       *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec
	rateLimitedTotal     *prometheus.CounterVec
)

// Config agrupa dependencias para exponer /metrics.
type Config struct {
	Registry prometheus.Registerer
	Gatherer prometheus.Gatherer
	// Pool es opcional; si está, se exportan gauges del pgxpool.
	Pool func() *pgxpool.Pool
}

// Register inicializa y registra las métricas. Devuelve el handler de /metrics.
func Register(cfg Config) (http.Handler, error) {
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	metricsOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Número total de requests procesadas",
		}, []string{"method", "route", "status"})

		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latencia de los requests HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})

		httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Requests en vuelo",
		})

		loginAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "login_attempts_total",
			Help: "Logins federados por provider y resultado",
		}, []string{"provider", "result"})

		tokensIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "access_tokens_issued_total",
			Help: "Access tokens emitidos por modo de entrega",
		}, []string{"delivery"})

		tokenRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "access_token_rejections_total",
			Help: "Access tokens rechazados por el autenticador, por sub-tipo",
		}, []string{"kind"})

		reconcileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_reconcile_total",
			Help: "Resultado de la reconciliación de usuarios (created|updated|unchanged)",
		}, []string{"action"})

		providerCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "identity_provider_call_duration_seconds",
			Help:    "Latencia de llamadas al identity provider",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider", "stage", "outcome"})

		rateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limited_requests_total",
			Help: "Requests rechazadas por rate limiting",
		}, []string{"route"})

		for _, c := range []prometheus.Collector{
			httpRequestsTotal, httpRequestDuration, httpInflight,
			loginAttemptsTotal, tokensIssuedTotal, tokenRejectionsTotal,
			reconcileTotal, providerCallDuration, rateLimitedTotal,
		} {
			if err := registerCollector(registry, c); err != nil {
				metricsErr = err
				return
			}
		}
	})
	if metricsErr != nil {
		return nil, metricsErr
	}

	if cfg.Pool != nil {
		if err := registerCollector(registry, newDBPoolCollector(cfg.Pool)); err != nil {
			return nil, err
		}
	}

	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}), nil
}

// Instrument mide requests HTTP. La ruta se etiqueta con el patrón de chi
// para no explotar la cardinalidad con valores dinámicos.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if httpRequestsTotal == nil {
			next.ServeHTTP(w, r)
			return
		}
		httpInflight.Inc()
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		defer func() {
			httpInflight.Dec()
			method := strings.ToUpper(r.Method)
			route := routeLabel(r)
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		}()

		next.ServeHTTP(rec, r)
	})
}

func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// RecordLogin registra el resultado de un login federado.
func RecordLogin(provider, result string) {
	if loginAttemptsTotal != nil {
		loginAttemptsTotal.WithLabelValues(provider, result).Inc()
	}
}

// RecordTokenIssued registra un token emitido.
func RecordTokenIssued(delivery string) {
	if tokensIssuedTotal != nil {
		tokensIssuedTotal.WithLabelValues(delivery).Inc()
	}
}

// RecordTokenRejected registra un token rechazado por sub-tipo.
func RecordTokenRejected(kind string) {
	if tokenRejectionsTotal != nil {
		tokenRejectionsTotal.WithLabelValues(kind).Inc()
	}
}

// RecordReconcile registra created|updated|unchanged.
func RecordReconcile(action string) {
	if reconcileTotal != nil {
		reconcileTotal.WithLabelValues(action).Inc()
	}
}

// ObserveProviderCall mide una llamada al provider (stage: exchange|userinfo).
func ObserveProviderCall(provider, stage string, d time.Duration, err error) {
	if providerCallDuration == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	providerCallDuration.WithLabelValues(provider, stage, outcome).Observe(d.Seconds())
}

// RecordRateLimited registra un request rechazado por rate limiting.
func RecordRateLimited(route string) {
	if rateLimitedTotal != nil {
		rateLimitedTotal.WithLabelValues(route).Inc()
	}
}

// registerCollector registra el collector ignorando duplicados.
func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) error {
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// dbPoolCollector expone gauges del pool de Postgres.
type dbPoolCollector struct {
	pool func() *pgxpool.Pool

	acquiredDesc *prometheus.Desc
	idleDesc     *prometheus.Desc
	totalDesc    *prometheus.Desc
}

func newDBPoolCollector(pool func() *pgxpool.Pool) *dbPoolCollector {
	return &dbPoolCollector{
		pool:         pool,
		acquiredDesc: prometheus.NewDesc("pg_pool_acquired", "Conexiones adquiridas", nil, nil),
		idleDesc:     prometheus.NewDesc("pg_pool_idle", "Conexiones inactivas", nil, nil),
		totalDesc:    prometheus.NewDesc("pg_pool_total", "Conexiones totales", nil, nil),
	}
}

func (c *dbPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquiredDesc
	ch <- c.idleDesc
	ch <- c.totalDesc
}

func (c *dbPoolCollector) Collect(ch chan<- prometheus.Metric) {
	p := c.pool()
	if p == nil {
		return
	}
	stat := p.Stat()
	ch <- prometheus.MustNewConstMetric(c.acquiredDesc, prometheus.GaugeValue, float64(stat.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idleDesc, prometheus.GaugeValue, float64(stat.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.totalDesc, prometheus.GaugeValue, float64(stat.TotalConns()))
}
