package prometheus

import (
	"strconv"
	"time"

	"github.com/covxx/Paleta-sub000/pkg/config"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Sync engine metrics
	SyncRunCounter        *prometheus.CounterVec
	SyncRecordCounter     *prometheus.CounterVec
	SyncRunDuration       *prometheus.HistogramVec
	InstantSyncCounter    *prometheus.CounterVec
	TokenRefreshCounter   *prometheus.CounterVec
	ConnectedGauge        prometheus.Gauge

	// QuickBooks API metrics
	QBRequestCounter *prometheus.CounterVec
	QBRetryCounter   *prometheus.CounterVec
	QBRequestLatency *prometheus.HistogramVec

	// Database operation metrics
	DBOperationHistogram *prometheus.HistogramVec

	// Request metrics
	RequestDurationHistogram *prometheus.HistogramVec
	APIRequestCounter        *prometheus.CounterVec
	APIErrorCounter          *prometheus.CounterVec

	// Namespace prefix for metrics
	namespace string
)

// InitMetrics initializes all Prometheus metrics
func InitMetrics(cfg *config.Config) {
	namespace = cfg.Metrics.Prefix

	// Sync engine metrics
	SyncRunCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Total number of sync runs per entity type and outcome",
		},
		[]string{"entity", "status"},
	)

	SyncRecordCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_records_total",
			Help:      "Total number of records processed by the sync engine",
		},
		[]string{"entity", "direction", "result"},
	)

	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_run_duration_seconds",
			Help:      "Duration of sync runs in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"entity"},
	)

	InstantSyncCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instant_sync_total",
			Help:      "Total number of instant order sync attempts",
		},
		[]string{"result"},
	)

	TokenRefreshCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refresh_total",
			Help:      "Total number of OAuth token refresh attempts",
		},
		[]string{"result"},
	)

	ConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "quickbooks_connected",
		Help:      "Whether a QuickBooks company is currently connected (1/0)",
	})

	// QuickBooks API metrics
	QBRequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quickbooks_requests_total",
			Help:      "Total number of QuickBooks API requests",
		},
		[]string{"operation", "status"},
	)

	QBRetryCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quickbooks_retries_total",
			Help:      "Total number of retried QuickBooks API requests",
		},
		[]string{"reason"},
	)

	QBRequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quickbooks_request_duration_seconds",
			Help:      "Duration of QuickBooks API requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Database operation metrics
	DBOperationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_operation_duration_seconds",
			Help:      "Duration of database operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Request metrics
	RequestDurationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	APIRequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"method", "path"},
	)

	APIErrorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_errors_total",
			Help:      "Total number of API errors",
		},
		[]string{"method", "path", "status"},
	)
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			// Track API request count
			APIRequestCounter.With(prometheus.Labels{
				"method": c.Request().Method,
				"path":   c.Path(),
			}).Inc()

			// Process the request
			err := next(c)

			// Track request duration
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			RequestDurationHistogram.With(prometheus.Labels{
				"method": c.Request().Method,
				"path":   c.Path(),
				"status": status,
			}).Observe(duration)

			// Track errors
			if c.Response().Status >= 400 {
				APIErrorCounter.With(prometheus.Labels{
					"method": c.Request().Method,
					"path":   c.Path(),
					"status": status,
				}).Inc()
			}

			return err
		}
	}
}

// HandlerFunc returns a HTTP handler for metrics endpoint
func HandlerFunc() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}

// TrackDBOperation returns a function that tracks database operation duration
func TrackDBOperation(operation string) func(time.Time) {
	return func(startTime time.Time) {
		if DBOperationHistogram == nil {
			return
		}
		duration := time.Since(startTime).Seconds()
		DBOperationHistogram.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// RecordSyncRun increments the sync run counter and observes its duration
func RecordSyncRun(entity, status string, elapsed time.Duration) {
	if SyncRunCounter == nil {
		return
	}
	SyncRunCounter.With(prometheus.Labels{"entity": entity, "status": status}).Inc()
	SyncRunDuration.With(prometheus.Labels{"entity": entity}).Observe(elapsed.Seconds())
}

// RecordSyncRecord increments the per-record sync counter
func RecordSyncRecord(entity, direction, result string) {
	if SyncRecordCounter == nil {
		return
	}
	SyncRecordCounter.With(prometheus.Labels{
		"entity":    entity,
		"direction": direction,
		"result":    result,
	}).Inc()
}

// RecordInstantSync increments the instant order sync counter
func RecordInstantSync(result string) {
	if InstantSyncCounter == nil {
		return
	}
	InstantSyncCounter.With(prometheus.Labels{"result": result}).Inc()
}

// RecordTokenRefresh increments the token refresh counter
func RecordTokenRefresh(result string) {
	if TokenRefreshCounter == nil {
		return
	}
	TokenRefreshCounter.With(prometheus.Labels{"result": result}).Inc()
}

// RecordQBRequest tracks a single QuickBooks API call
func RecordQBRequest(operation, status string, elapsed time.Duration) {
	if QBRequestCounter == nil {
		return
	}
	QBRequestCounter.With(prometheus.Labels{"operation": operation, "status": status}).Inc()
	QBRequestLatency.With(prometheus.Labels{"operation": operation}).Observe(elapsed.Seconds())
}

// RecordQBRetry tracks a retried QuickBooks API call
func RecordQBRetry(reason string) {
	if QBRetryCounter == nil {
		return
	}
	QBRetryCounter.With(prometheus.Labels{"reason": reason}).Inc()
}

// SetConnected flips the connection gauge
func SetConnected(connected bool) {
	if ConnectedGauge == nil {
		return
	}
	if connected {
		ConnectedGauge.Set(1)
	} else {
		ConnectedGauge.Set(0)
	}
}
