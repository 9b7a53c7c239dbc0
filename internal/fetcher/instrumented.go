package fetcher

import (
	"context"
	"time"

	"github.com/thep200/ghcollector/internal/broker"
	"github.com/thep200/ghcollector/internal/normalize"
)

// MetricsSink receives one observation per fetcher operation,
// satisfied by pkg/metrics.Registry.
type MetricsSink interface {
	FetchObserved(fetcherName, op, outcome string, itemCount int, seconds float64)
}

// Instrumented wraps any Fetcher and reports fetch_requests_total,
// fetch_items_total, and fetch_latency_seconds_bucket around every
// call. The wrapped fetcher's own name is fixed at construction so
// hybrid mode's per-operation REST/GraphQL split is still visible
// under one label value.
type Instrumented struct {
	inner   Fetcher
	metrics MetricsSink
	name    string
}

func NewInstrumented(inner Fetcher, metrics MetricsSink, name string) *Instrumented {
	return &Instrumented{inner: inner, metrics: metrics, name: name}
}

func (f *Instrumented) FetchRepo(ctx context.Context, owner, name string) (*RepoSnapshot, error) {
	start := time.Now()
	snap, err := f.inner.FetchRepo(ctx, owner, name)
	f.observe("get_repository", err, 1, start)
	return snap, err
}

func (f *Instrumented) FetchIssues(ctx context.Context, owner, name string, repoID int64, since time.Time, cursor string, perPage int) (*IssuePage, error) {
	start := time.Now()
	page, err := f.inner.FetchIssues(ctx, owner, name, repoID, since, cursor, perPage)
	n := 0
	if page != nil {
		n = len(page.Items)
	}
	f.observe("list_issues", err, n, start)
	return page, err
}

func (f *Instrumented) FetchIssue(ctx context.Context, owner, name string, repoID, number int64) (*IssueRecord, error) {
	start := time.Now()
	rec, err := f.inner.FetchIssue(ctx, owner, name, repoID, number)
	n := 0
	if rec != nil {
		n = 1
	}
	f.observe("get_issue", err, n, start)
	return rec, err
}

func (f *Instrumented) FetchIssueComments(ctx context.Context, owner, name string, issueNumber, issueID int64, cursor string, perPage int) (*CommentPage, error) {
	start := time.Now()
	page, err := f.inner.FetchIssueComments(ctx, owner, name, issueNumber, issueID, cursor, perPage)
	n := 0
	if page != nil {
		n = len(page.Items)
	}
	f.observe("list_comments", err, n, start)
	return page, err
}

func (f *Instrumented) FetchUser(ctx context.Context, ref *normalize.UserRef) (*UserFetch, error) {
	start := time.Now()
	uf, err := f.inner.FetchUser(ctx, ref)
	f.observe("get_user", err, 1, start)
	return uf, err
}

func (f *Instrumented) observe(op string, err error, items int, start time.Time) {
	outcome := "ok"
	if err != nil {
		switch err.(type) {
		case *broker.ErrNotFound:
			outcome = "not_found"
		default:
			outcome = "error"
		}
	}
	f.metrics.FetchObserved(f.name, op, outcome, items, time.Since(start).Seconds())
}

var _ Fetcher = (*Instrumented)(nil)
