// Package metrics exposes the Prometheus collectors for this system:
// broker rate-limit/queue/cache/retry gauges and counters, fetcher
// request/item/latency series, and job-state gauges. It is the single
// concrete implementation of every *MetricsSink interface the broker
// and collector packages declare, so those packages stay free of a
// direct Prometheus import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every collector this module registers. The control
// surface serves them at /metrics through promhttp.Handler(); callers
// pass Registry itself wherever a *MetricsSink is expected.
type Registry struct {
	RateLimit        *prometheus.GaugeVec
	RateRemaining    *prometheus.GaugeVec
	BudgetLimitTotal *prometheus.GaugeVec
	BudgetRemaining  *prometheus.GaugeVec
	QueueLen         *prometheus.GaugeVec
	RetriesTotal     *prometheus.CounterVec
	CacheEvents      *prometheus.CounterVec

	FetchRequests *prometheus.CounterVec
	FetchItems    *prometheus.CounterVec
	FetchLatency  *prometheus.HistogramVec

	JobsState *prometheus.GaugeVec
}

// New constructs and registers every collector against reg. cmd/worker
// passes prometheus.DefaultRegisterer, the registry promhttp.Handler()
// serves; tests pass a throwaway registry so repeated construction
// across test cases never double registers.
func New(reg prometheus.Registerer) *Registry {
	m := &Registry{
		RateLimit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "broker_rate_limit",
			Help: "Per-credential, per-budget rate limit ceiling last observed from upstream.",
		}, []string{"token", "budget"}),
		RateRemaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "broker_rate_remaining",
			Help: "Per-credential, per-budget rate limit remaining.",
		}, []string{"token", "budget"}),
		BudgetLimitTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "broker_budget_limit_total",
			Help: "Aggregate rate limit ceiling across all credentials for a budget.",
		}, []string{"budget"}),
		BudgetRemaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "broker_budget_remaining_total",
			Help: "Aggregate rate limit remaining across all credentials for a budget.",
		}, []string{"budget"}),
		QueueLen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "broker_queue_length",
			Help: "Pending requests in one budget's priority class FIFO.",
		}, []string{"budget", "class"}),
		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_retries_total",
			Help: "Retries issued by the executor, labelled by reason.",
		}, []string{"budget", "reason"}),
		CacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_cache_events_total",
			Help: "Cache lookups by outcome: hit, miss, in_flight_coalesced, evicted.",
		}, []string{"event"}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fetch_requests_total",
			Help: "Fetcher operations by outcome.",
		}, []string{"fetcher", "op", "outcome"}),
		FetchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fetch_items_total",
			Help: "Items yielded by a fetcher operation.",
		}, []string{"fetcher", "op"}),
		FetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fetch_latency_seconds",
			Help:    "Latency of a fetcher operation round trip.",
			Buckets: prometheus.DefBuckets,
		}, []string{"fetcher", "op"}),
		JobsState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jobs_state",
			Help: "Collection jobs currently in each status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.RateLimit, m.RateRemaining, m.BudgetLimitTotal, m.BudgetRemaining,
		m.QueueLen, m.RetriesTotal, m.CacheEvents,
		m.FetchRequests, m.FetchItems, m.FetchLatency, m.JobsState,
	)
	return m
}

// --- broker.CacheMetricsSink ---

func (m *Registry) CacheEvent(event string) {
	m.CacheEvents.WithLabelValues(event).Inc()
}

// --- broker.SchedulerMetricsSink / ExecutorMetricsSink ---

func (m *Registry) QueueLength(budget, class string, n int) {
	m.QueueLen.WithLabelValues(budget, class).Set(float64(n))
}

func (m *Registry) RetryObserved(budget, reason string) {
	m.RetriesTotal.WithLabelValues(budget, reason).Inc()
}

// ObserveTokens pushes a token-pool snapshot into the per-credential
// and aggregate gauges. It is not a *MetricsSink method, and nothing in
// this module calls it, so broker_rate_limit, broker_rate_remaining and
// the two broker_budget_* gauges stay unset unless a caller does.
func (m *Registry) ObserveTokens(budget string, snapshots []TokenObservation) {
	var limitTotal, remainingTotal float64
	for _, s := range snapshots {
		m.RateLimit.WithLabelValues(s.Credential, budget).Set(float64(s.Limit))
		m.RateRemaining.WithLabelValues(s.Credential, budget).Set(float64(s.Remaining))
		limitTotal += float64(s.Limit)
		remainingTotal += float64(s.Remaining)
	}
	m.BudgetLimitTotal.WithLabelValues(budget).Set(limitTotal)
	m.BudgetRemaining.WithLabelValues(budget).Set(remainingTotal)
}

// TokenObservation is the minimal shape ObserveTokens needs, decoupled
// from broker.TokenSnapshot's Go type so pkg/metrics never imports
// internal/broker.
type TokenObservation struct {
	Credential string
	Limit      int
	Remaining  int
}

// --- fetcher-level instrumentation, called by a wrapping decorator ---

func (m *Registry) FetchObserved(fetcherName, op, outcome string, itemCount int, seconds float64) {
	m.FetchRequests.WithLabelValues(fetcherName, op, outcome).Inc()
	if itemCount > 0 {
		m.FetchItems.WithLabelValues(fetcherName, op).Add(float64(itemCount))
	}
	m.FetchLatency.WithLabelValues(fetcherName, op).Observe(seconds)
}

// --- collector.MetricsSink ---

func (m *Registry) RepoProcessed(outcome string) {
	m.FetchRequests.WithLabelValues("collector", "process_repo", outcome).Inc()
}

func (m *Registry) IssueProcessed(repoFullName string) {
	m.FetchItems.WithLabelValues("collector", "issue").Inc()
}

func (m *Registry) JobStatus(repoFullName, status string) {
	m.JobsState.WithLabelValues(status).Inc()
}
