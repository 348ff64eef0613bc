package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Explorer API Metrics
	explorerRequestsTotal   *prometheus.CounterVec
	explorerRequestDuration *prometheus.HistogramVec
	explorerRecordsPerPage  *prometheus.HistogramVec

	// Aggregation Metrics
	recordsFetchedTotal  *prometheus.CounterVec
	recordsSkippedTotal  *prometheus.CounterVec
	transfersOrphanTotal prometheus.Counter

	// Price Cache Metrics
	priceLookupsTotal     *prometheus.CounterVec
	priceFetchDuration    *prometheus.HistogramVec
	priceCacheEntries     prometheus.Gauge
	priceStoreOpsTotal    *prometheus.CounterVec
	priceStoreOpsDuration *prometheus.HistogramVec

	// Ledger Metrics
	splitsBuiltTotal      *prometheus.CounterVec
	transfersDroppedTotal *prometheus.CounterVec

	// Workflow Metrics
	exportWorkflowDuration *prometheus.HistogramVec
	exportActivityDuration *prometheus.HistogramVec

	// Outbound HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Explorer API Metrics
		explorerRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "explorer_requests_total",
				Help: "Total number of block explorer API requests by action and status",
			},
			[]string{"action", "status"},
		),
		explorerRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "explorer_request_duration_seconds",
				Help:    "Duration of block explorer API requests in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"action"},
		),
		explorerRecordsPerPage: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "explorer_records_per_page",
				Help:    "Number of records returned per explorer page request",
				Buckets: []float64{0, 1, 10, 25, 50, 100, 250, 1000},
			},
			[]string{"action"},
		),

		// Aggregation Metrics
		recordsFetchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "records_fetched_total",
				Help: "Total number of raw records fetched per stream",
			},
			[]string{"stream"},
		),
		recordsSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "records_skipped_total",
				Help: "Total number of raw records dropped during construction",
			},
			[]string{"stream", "reason"},
		),
		transfersOrphanTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "transfers_orphaned_total",
				Help: "Total number of token transfer events without a matching normal transaction",
			},
		),

		// Price Cache Metrics
		priceLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_cache_lookups_total",
				Help: "Total number of price cache lookups by result (hit, miss, error)",
			},
			[]string{"result"},
		),
		priceFetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "price_fetch_duration_seconds",
				Help:    "Duration of remote price lookups in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"asset_kind"},
		),
		priceCacheEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "price_cache_entries",
				Help: "Number of entries held by the price cache",
			},
		),
		priceStoreOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_store_operations_total",
				Help: "Total number of price store operations",
			},
			[]string{"store", "operation", "status"},
		),
		priceStoreOpsDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "price_store_operation_duration_seconds",
				Help:    "Duration of price store operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"store", "operation"},
		),

		// Ledger Metrics
		splitsBuiltTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_splits_built_total",
				Help: "Total number of ledger splits built by commodity",
			},
			[]string{"commodity"},
		),
		transfersDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transfers_dropped_total",
				Help: "Total number of token transfers dropped while building splits",
			},
			[]string{"reason"},
		),

		// Workflow Metrics
		exportWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "export_workflow_duration_seconds",
				Help:    "Duration of export workflow execution in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
		exportActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "export_activity_duration_seconds",
				Help:    "Duration of export workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"activity"},
		),

		// Outbound HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_client_request_duration_seconds",
				Help:    "Duration of outbound HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"host", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_client_requests_total",
				Help: "Total number of outbound HTTP requests",
			},
			[]string{"host", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Explorer API metric helpers

// RecordExplorerRequest records an explorer API call with duration.
func (m *Metrics) RecordExplorerRequest(action, status string, duration float64) {
	m.explorerRequestsTotal.WithLabelValues(action, status).Inc()
	m.explorerRequestDuration.WithLabelValues(action).Observe(duration)
}

// RecordRecordsPerPage records the number of records returned by one page.
func (m *Metrics) RecordRecordsPerPage(action string, count int) {
	m.explorerRecordsPerPage.WithLabelValues(action).Observe(float64(count))
}

// Aggregation metric helpers

// RecordRecordsFetched records raw records fetched from one stream.
func (m *Metrics) RecordRecordsFetched(stream string, count int) {
	m.recordsFetchedTotal.WithLabelValues(stream).Add(float64(count))
}

// RecordRecordSkipped records a raw record dropped during construction.
func (m *Metrics) RecordRecordSkipped(stream, reason string) {
	m.recordsSkippedTotal.WithLabelValues(stream, reason).Inc()
}

// RecordOrphanTransfers records transfer events left without a parent transaction.
func (m *Metrics) RecordOrphanTransfers(count int) {
	m.transfersOrphanTotal.Add(float64(count))
}

// Price cache metric helpers

// RecordPriceLookup records a cache lookup outcome ("hit", "miss" or "error").
func (m *Metrics) RecordPriceLookup(result string) {
	m.priceLookupsTotal.WithLabelValues(result).Inc()
}

// RecordPriceFetch records the duration of one remote price lookup.
func (m *Metrics) RecordPriceFetch(assetKind string, duration float64) {
	m.priceFetchDuration.WithLabelValues(assetKind).Observe(duration)
}

// SetPriceCacheEntries sets the current number of cache entries.
func (m *Metrics) SetPriceCacheEntries(n int) {
	m.priceCacheEntries.Set(float64(n))
}

// RecordPriceStoreOp records a price store load or save.
func (m *Metrics) RecordPriceStoreOp(store, operation string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.priceStoreOpsDuration.WithLabelValues(store, operation).Observe(duration)
	m.priceStoreOpsTotal.WithLabelValues(store, operation, status).Inc()
}

// Ledger metric helpers

// RecordSplitBuilt records one split for a commodity.
func (m *Metrics) RecordSplitBuilt(commodity string) {
	m.splitsBuiltTotal.WithLabelValues(commodity).Inc()
}

// RecordTransferDropped records a token transfer that produced no split.
func (m *Metrics) RecordTransferDropped(reason string) {
	m.transfersDroppedTotal.WithLabelValues(reason).Inc()
}

// Workflow metric helpers

// RecordWorkflowDuration records export workflow duration.
func (m *Metrics) RecordWorkflowDuration(status string, duration float64) {
	m.exportWorkflowDuration.WithLabelValues(status).Observe(duration)
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	m.exportActivityDuration.WithLabelValues(activity).Observe(duration)
}

// HTTP metric helpers

// RecordHTTPRequest records an outbound HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(host, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(host, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(host, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
