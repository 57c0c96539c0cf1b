package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScanCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscan_cycles_total",
		Help: "The total number of scan cycles by platform and outcome",
	}, []string{"platform", "status"})

	ScanCycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leadscan_cycle_duration_seconds",
		Help:    "Duration of scan cycles",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300, 600},
	}, []string{"platform"})

	ItemsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscan_items_fetched_total",
		Help: "The total number of candidate items fetched from sources",
	}, []string{"platform"})

	DropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscan_drops_total",
		Help: "Total number of dropped candidate items by reason",
	}, []string{"platform", "reason"})

	ItemsAnalyzed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscan_items_analyzed_total",
		Help: "The total number of items sent to classification",
	}, []string{"platform"})

	LeadsFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscan_leads_found_total",
		Help: "The total number of leads detected",
	}, []string{"platform", "category"})

	SourcesScanned = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "leadscan_sources_scanned",
		Help: "Number of enabled sources in the last cycle",
	}, []string{"platform"})

	SourceFetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscan_source_fetch_errors_total",
		Help: "Total number of per-source fetch failures",
	}, []string{"platform"})

	FetchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscan_fetch_requests_total",
		Help: "Total number of history fetch requests by platform",
	}, []string{"platform", "status"})

	FloodWaitSecondsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leadscan_flood_wait_seconds_total",
		Help: "Total time in seconds spent waiting for Telegram flood control",
	})

	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscan_llm_requests_total",
		Help: "Total number of LLM requests",
	}, []string{"provider", "status"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leadscan_llm_request_duration_seconds",
		Help:    "Duration of LLM requests",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"provider"})

	LLMCircuitBreakerOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscan_llm_circuit_breaker_opens_total",
		Help: "Total number of times an LLM circuit breaker opened",
	}, []string{"provider"})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscan_notifications_total",
		Help: "Total number of notification messages by kind and status",
	}, []string{"kind", "status"})
)

// Values for the status label of ScanCycles.
const (
	CycleStatusCompleted = "completed"
	CycleStatusAborted   = "aborted"
	CycleStatusFailed    = "failed"
	CycleStatusSkipped   = "skipped"
)
