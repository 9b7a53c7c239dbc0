package broker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/thep200/ghcollector/cfg"
	"github.com/thep200/ghcollector/pkg/log"
)

// Broker is the package's public facade: one Cache, one TokenPool, one
// Executor, and one Scheduler per configured budget. Callers only ever
// see Submit; everything else is wiring detail.
type Broker struct {
	cache      *Cache
	tokens     *TokenPool
	executor   *Executor
	schedulers map[string]*Scheduler
	logger     log.Logger
}

// New builds a Broker from config. metrics may be nil in tests.
func New(c *cfg.Config, logger log.Logger, metrics interface {
	CacheMetricsSink
	SchedulerMetricsSink
}) *Broker {
	var budgetNames []string
	for _, b := range c.Broker.Budgets {
		budgetNames = append(budgetNames, b.Name)
	}

	cache := NewCache(c.Cache.MaxBytes, metrics)
	tokens := NewTokenPool(c.Broker.Tokens, budgetNames, 5000)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	executor := NewExecutor(
		httpClient,
		cache,
		tokens,
		logger,
		c.Broker.UserAgent,
		"2022-11-28",
		c.Retry.MaxAttempts,
		c.RetryBase(),
		c.RetryCap(),
		50,
		metrics,
	)

	b := &Broker{
		cache:      cache,
		tokens:     tokens,
		executor:   executor,
		schedulers: make(map[string]*Scheduler),
		logger:     logger,
	}

	for _, budget := range c.Broker.Budgets {
		var classes []ClassConfig
		for _, cl := range budget.Classes {
			classes = append(classes, ClassConfig{Name: cl.Name, Weight: cl.Weight, QueueCap: cl.QueueCap})
		}
		b.schedulers[budget.Name] = NewScheduler(budget.Name, classes, budget.Concurrency, tokens, executor, metrics)
	}

	return b
}

// Run starts every budget's admission loop; it blocks until ctx is
// cancelled, so callers run it in its own goroutine.
func (b *Broker) Run(ctx context.Context) {
	done := make(chan struct{}, len(b.schedulers))
	for _, s := range b.schedulers {
		go func(s *Scheduler) {
			s.Run(ctx)
			done <- struct{}{}
		}(s)
	}
	for range b.schedulers {
		<-done
	}
}

// Stop halts every budget's admission loop without waiting for in-flight
// dispatches to drain.
func (b *Broker) Stop() {
	for _, s := range b.schedulers {
		s.Stop()
	}
}

// Submit routes req to its budget's scheduler. Returns ErrContract if
// the budget is unconfigured.
func (b *Broker) Submit(ctx context.Context, req *Request) (<-chan Result, error) {
	s, ok := b.schedulers[req.Budget]
	if !ok {
		return nil, &ErrContract{Detail: fmt.Sprintf("unknown budget %q", req.Budget)}
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	if req.TraceID == "" {
		req.TraceID = uuid.NewString()
	}
	return s.Submit(ctx, req)
}

// TokenSnapshot exposes live rate-limit state for a budget. Nothing in
// this module calls it; /healthz does not report token state.
func (b *Broker) TokenSnapshot(budget string) []TokenSnapshot {
	return b.tokens.Snapshot(budget)
}
