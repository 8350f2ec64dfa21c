package prometheus

import (
	"inventory-service/pkg/config"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HttpRequestsTotal   prometheus.CounterVec
	HttpRequestDuration prometheus.HistogramVec

	// Authentication metrics
	AuthErrorsCounter prometheus.Counter

	// Database operation metrics
	DbOperationDuration prometheus.HistogramVec

	// Ledger metrics
	LedgerTransactionsTotal   prometheus.CounterVec
	AuditSessionsTotal        prometheus.CounterVec
	InsufficientStockCounter  prometheus.Counter
	ProjectionConflictCounter prometheus.Counter
	StockLevelGauge           prometheus.GaugeVec
)

// InitMetrics initializes Prometheus metrics with configuration
func InitMetrics(config *config.Config) {
	// Use metric prefix from configuration
	prefix := config.Metrics.Prefix

	// HTTP request metrics
	HttpRequestsTotal = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTP request duration
	HttpRequestDuration = *promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// Authentication metrics
	AuthErrorsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_auth_errors_total",
			Help: "Total number of authentication errors",
		},
	)

	// Database operation metrics
	DbOperationDuration = *promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation_type"},
	)

	// Ledger metrics
	LedgerTransactionsTotal = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_ledger_transactions_total",
			Help: "Total number of ledger transactions appended",
		},
		[]string{"transaction_type"},
	)

	AuditSessionsTotal = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_audit_sessions_total",
			Help: "Total number of submitted audits and quantity edits",
		},
		[]string{"is_audit"},
	)

	InsufficientStockCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_insufficient_stock_total",
			Help: "Total number of transfers rejected for insufficient stock",
		},
	)

	ProjectionConflictCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_projection_conflicts_total",
			Help: "Total number of ledger appends that exhausted conflict retries",
		},
	)

	StockLevelGauge = *promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "_stock_level_quantity",
			Help: "Current on-hand quantity per item and location",
		},
		[]string{"item_id", "location_id"},
	)
}

// TrackDBOperation returns a function that records the duration of a database operation
func TrackDBOperation(operationType string) func(startTime time.Time) {
	return func(startTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DbOperationDuration.WithLabelValues(operationType).Observe(duration)
	}
}

// RecordLedgerTransactions increments the transaction counter per type
func RecordLedgerTransactions(transactionType string, count int) {
	LedgerTransactionsTotal.WithLabelValues(transactionType).Add(float64(count))
}

// RecordAuditSession increments the audit session counter
func RecordAuditSession(isAudit bool) {
	label := "false"
	if isAudit {
		label = "true"
	}
	AuditSessionsTotal.WithLabelValues(label).Inc()
}

// SetStockLevel updates the stock level gauge for one (item, location) pair
func SetStockLevel(itemID, locationID uint, quantity int64) {
	StockLevelGauge.WithLabelValues(
		strconv.FormatUint(uint64(itemID), 10),
		strconv.FormatUint(uint64(locationID), 10),
	).Set(float64(quantity))
}
