package collector

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/thep200/ghcollector/cfg"
	"github.com/thep200/ghcollector/internal/broker"
	"github.com/thep200/ghcollector/internal/fetcher"
	"github.com/thep200/ghcollector/internal/model"
	"github.com/thep200/ghcollector/internal/normalize"
	"github.com/thep200/ghcollector/pkg/log"
)

// MetricsSink receives per-repository collection outcomes; satisfied
// by pkg/metrics and by a no-op in tests.
type MetricsSink interface {
	RepoProcessed(outcome string)
	IssueProcessed(repoFullName string)
	JobStatus(repoFullName, status string)
}

// JobStore is the slice of jobstore.Store the worker depends on,
// narrowed to an interface so tests can drive it with an in-memory
// fake instead of a real Postgres connection.
type JobStore interface {
	Claim(ctx context.Context, limit int) ([]*model.CollectionJob, error)
	Complete(ctx context.Context, id int64) error
	Fail(ctx context.Context, id int64, message string) error
	Poison(ctx context.Context, id int64, message string) error
}

// RepoStore is the slice of repostore.Store the worker depends on.
type RepoStore interface {
	UpsertRepository(ctx context.Context, r *model.Repository) error
	GetWatermark(ctx context.Context, repoFullName string) (time.Time, error)
	SetWatermark(ctx context.Context, repoFullName string, ts time.Time) error
	UpsertUser(ctx context.Context, u *model.User) error
	MarkUserMissing(ctx context.Context, id int64) error
	UpsertIssue(ctx context.Context, i *model.Issue) error
	MarkIssueMissing(ctx context.Context, id int64) error
	// IssuesDueForReverify returns up to limit currently-found issues
	// for a repository, due for a targeted per-issue re-read.
	IssuesDueForReverify(ctx context.Context, repoID int64, limit int) ([]model.IssueRef, error)
	UpsertComment(ctx context.Context, c *model.Comment) error
}

// reverifyBatchSize bounds how many previously-ingested issues get a
// targeted per-issue re-read each processRepo cycle, so a large backlog
// of known issues doesn't turn one job into an unbounded number of
// extra upstream calls; the rest are picked up on a later cycle via
// IssuesDueForReverify's least-recently-touched ordering.
const reverifyBatchSize = 10

// EventPublisher fans a soft-delete out to a downstream topic; backed
// by *kafka.Producer in cmd/worker, and nil-able so tests and
// deployments without a configured event sink still work.
type EventPublisher interface {
	PublishIssueSoftDeleted(ctx context.Context, repoFullName string, issueNumber int64, detectedAt time.Time) error
}

// Worker is the claim-process-report loop: it claims a batch of jobs,
// fans them out bounded by config, runs the per-job ingestion pipeline
// with panic recovery, and reports completion or failure back to the
// job store.
type Worker struct {
	cfg     *cfg.Config
	jobs    JobStore
	repos   RepoStore
	fetch   fetcher.Fetcher
	logger  log.Logger
	metrics MetricsSink
	events  EventPublisher

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

func NewWorker(c *cfg.Config, jobs JobStore, repos RepoStore, fetch fetcher.Fetcher, logger log.Logger, metrics MetricsSink) *Worker {
	return &Worker{
		cfg:      c,
		jobs:     jobs,
		repos:    repos,
		fetch:    fetch,
		logger:   logger,
		metrics:  metrics,
		inflight: make(map[string]struct{}),
	}
}

// SetEventPublisher wires a downstream event sink for soft-delete
// notifications. Optional: a Worker with no publisher set behaves
// exactly as before, just without the outbound fan-out.
func (w *Worker) SetEventPublisher(p EventPublisher) {
	w.events = p
}

// publishSoftDelete notifies the configured event sink that an issue
// was just confirmed gone upstream. Failures here are logged and
// swallowed — a missed notification shouldn't fail the job that just
// successfully recorded the soft-delete in Postgres.
func (w *Worker) publishSoftDelete(ctx context.Context, repoFullName string, issueNumber int64) {
	if w.events == nil {
		return
	}
	if err := w.events.PublishIssueSoftDeleted(ctx, repoFullName, issueNumber, time.Now()); err != nil {
		w.logger.Warn(ctx, "failed to publish soft-delete event for %s#%d: %v", repoFullName, issueNumber, err)
	}
}

// Run drives the loop until ctx is cancelled, or once if RunOnce is
// set — used by one-shot CLI invocations and tests.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := w.runOnce(ctx)
		if err != nil {
			w.logger.Error(ctx, "collection cycle failed: %v", err)
		}

		if w.cfg.Worker.RunOnce {
			return err
		}

		if n == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.cfg.PollInterval()):
			}
		}
	}
}

// runOnce claims one batch and processes it to completion, returning
// the number of jobs claimed.
func (w *Worker) runOnce(ctx context.Context) (int, error) {
	jobs, err := w.jobs.Claim(ctx, w.cfg.Worker.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	sem := make(chan struct{}, maxInt(w.cfg.Worker.Concurrency, 1))
	var wg sync.WaitGroup
	errCh := make(chan error, len(jobs))

	for _, job := range jobs {
		job := job
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error(ctx, "panic processing job %d: %v", job.ID, r)
					errCh <- w.reportFailure(ctx, job, &ErrPanic{Recovered: r})
				}
			}()
			errCh <- w.handleJob(ctx, job)
		}()
	}

	wg.Wait()
	close(errCh)

	var firstErr error
	for err := range errCh {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return len(jobs), firstErr
}

func (w *Worker) handleJob(ctx context.Context, job *model.CollectionJob) error {
	repoFullName := job.Owner + "/" + job.Name

	if !w.acquireInflight(repoFullName) {
		// Another claimant is mid-flight for this repository; put the
		// job straight back to failed so the next claim can pick it up
		// once the other attempt has released its slot.
		return w.jobs.Fail(ctx, job.ID, "repository already in flight")
	}
	defer w.releaseInflight(repoFullName)

	err := w.processRepo(ctx, job, repoFullName)
	if err == nil {
		w.metrics.RepoProcessed("success")
		w.metrics.JobStatus(repoFullName, "completed")
		return w.jobs.Complete(ctx, job.ID)
	}

	w.metrics.RepoProcessed("error")
	return w.reportFailure(ctx, job, err)
}

func (w *Worker) reportFailure(ctx context.Context, job *model.CollectionJob, err error) error {
	repoFullName := job.Owner + "/" + job.Name
	if isPermanent(err) {
		w.metrics.JobStatus(repoFullName, "error")
		return w.jobs.Poison(ctx, job.ID, err.Error())
	}
	w.metrics.JobStatus(repoFullName, "failed")
	return w.jobs.Fail(ctx, job.ID, err.Error())
}

func (w *Worker) acquireInflight(repoFullName string) bool {
	w.inflightMu.Lock()
	defer w.inflightMu.Unlock()
	if _, busy := w.inflight[repoFullName]; busy {
		return false
	}
	w.inflight[repoFullName] = struct{}{}
	return true
}

func (w *Worker) releaseInflight(repoFullName string) {
	w.inflightMu.Lock()
	delete(w.inflight, repoFullName)
	w.inflightMu.Unlock()
}

func (w *Worker) processRepo(ctx context.Context, job *model.CollectionJob, repoFullName string) error {
	snapshot, err := w.fetch.FetchRepo(ctx, job.Owner, job.Name)
	if err != nil {
		if _, ok := err.(*broker.ErrNotFound); ok {
			return &ErrSeedMismatch{Expected: repoFullName, Actual: "<not found>"}
		}
		return err
	}

	expected := strings.ToLower(repoFullName)
	actual := strings.ToLower(snapshot.Repository.FullName)
	if expected != actual {
		return &ErrSeedMismatch{Expected: repoFullName, Actual: snapshot.Repository.FullName}
	}

	if err := w.repos.UpsertRepository(ctx, snapshot.Repository); err != nil {
		return err
	}

	watermark, err := w.repos.GetWatermark(ctx, repoFullName)
	if err != nil {
		return err
	}

	userCache := make(map[string]struct{})
	newest := watermark
	cursor := ""

	for {
		page, err := w.fetch.FetchIssues(ctx, job.Owner, job.Name, snapshot.Repository.ID, watermark, cursor, w.pageSize())
		if err != nil {
			return err
		}
		if len(page.Items) == 0 {
			break
		}

		seenExisting := false
		for _, rec := range page.Items {
			if !watermark.IsZero() && !rec.Issue.UpstreamUpdatedAt.After(watermark) {
				seenExisting = true
				break
			}

			if err := w.ingestIssue(ctx, job.Owner, job.Name, repoFullName, rec, userCache); err != nil {
				return err
			}

			if rec.Issue.UpstreamUpdatedAt.After(newest) {
				newest = rec.Issue.UpstreamUpdatedAt
			}
		}

		if seenExisting {
			break
		}
		cursor = page.NextCursor
		if cursor == "" {
			break
		}
	}

	if !newest.IsZero() {
		if err := w.repos.SetWatermark(ctx, repoFullName, newest); err != nil {
			return err
		}
	}

	if err := w.reverifyIssues(ctx, job.Owner, job.Name, snapshot.Repository.ID, userCache); err != nil {
		return err
	}
	return nil
}

// ingestIssue resolves the issue's author, upserts the issue row, and
// walks its comments when it has any. Shared by the incremental
// listing pass and the targeted re-read in reverifyIssues, so a
// reverified issue that's still present gets refreshed exactly the way
// a newly-listed one would.
func (w *Worker) ingestIssue(ctx context.Context, owner, name, repoFullName string, rec fetcher.IssueRecord, userCache map[string]struct{}) error {
	if rec.Author != nil {
		if err := w.ensureUser(ctx, rec.Author, userCache); err != nil {
			return err
		}
	}

	if err := w.repos.UpsertIssue(ctx, rec.Issue); err != nil {
		return err
	}
	w.metrics.IssueProcessed(repoFullName)

	if rec.Issue.CommentsCount > 0 {
		if err := w.processComments(ctx, owner, name, rec.Issue, userCache); err != nil {
			return err
		}
	}
	return nil
}

// reverifyIssues targeted-re-reads a bounded batch of previously-found
// issues to catch deletions the incremental listing pass can never
// see: FetchIssues is filtered by updated-since, so an issue that stops
// changing — because it was deleted, or simply because nothing new
// happened to it — looks identical from that pass alone. A 404 on the
// direct re-read is the only way to tell the two apart.
func (w *Worker) reverifyIssues(ctx context.Context, owner, name string, repoID int64, userCache map[string]struct{}) error {
	due, err := w.repos.IssuesDueForReverify(ctx, repoID, reverifyBatchSize)
	if err != nil {
		return err
	}

	repoFullName := owner + "/" + name
	for _, ref := range due {
		rec, err := w.fetch.FetchIssue(ctx, owner, name, repoID, ref.Number)
		if err != nil {
			if _, ok := err.(*broker.ErrNotFound); ok {
				if err := w.repos.MarkIssueMissing(ctx, ref.ID); err != nil {
					return err
				}
				w.publishSoftDelete(ctx, repoFullName, ref.Number)
				continue
			}
			return err
		}
		if err := w.ingestIssue(ctx, owner, name, repoFullName, *rec, userCache); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) processComments(ctx context.Context, owner, name string, issue *model.Issue, userCache map[string]struct{}) error {
	cursor := ""
	for {
		page, err := w.fetch.FetchIssueComments(ctx, owner, name, issue.Number, issue.ID, cursor, w.pageSize())
		if err != nil {
			if _, ok := err.(*broker.ErrNotFound); ok {
				if err := w.repos.MarkIssueMissing(ctx, issue.ID); err != nil {
					return err
				}
				w.publishSoftDelete(ctx, owner+"/"+name, issue.Number)
				return nil
			}
			return err
		}
		if len(page.Items) == 0 {
			break
		}

		for _, rec := range page.Items {
			if rec.Author != nil {
				if err := w.ensureUser(ctx, rec.Author, userCache); err != nil {
					return err
				}
			}
			if err := w.repos.UpsertComment(ctx, rec.Comment); err != nil {
				return err
			}
		}

		cursor = page.NextCursor
		if cursor == "" {
			break
		}
	}
	return nil
}

// ensureUser resolves and upserts an author at most once per run,
// caching logins already seen to avoid redundant fetches.
func (w *Worker) ensureUser(ctx context.Context, ref *normalize.UserRef, cache map[string]struct{}) error {
	if _, seen := cache[ref.Login]; seen {
		return nil
	}
	cache[ref.Login] = struct{}{}

	fetched, err := w.fetch.FetchUser(ctx, ref)
	if err != nil {
		if _, ok := err.(*broker.ErrContract); ok {
			return nil // recorded upstream by the fetcher layer; skip and continue
		}
		return err
	}
	if fetched.Missing != nil {
		return w.repos.MarkUserMissing(ctx, fetched.Missing.ID)
	}
	return w.repos.UpsertUser(ctx, fetched.Found)
}

func (w *Worker) pageSize() int {
	if w.cfg.Worker.BatchSize <= 0 {
		return 50
	}
	return w.cfg.Worker.BatchSize
}

func isPermanent(err error) bool {
	switch err.(type) {
	case *ErrSeedMismatch:
		return true
	default:
		return false
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ErrPanic wraps a recovered panic so it flows through the same
// failure-reporting path as an ordinary error.
type ErrPanic struct{ Recovered interface{} }

func (e *ErrPanic) Error() string { return "panic during job processing" }
