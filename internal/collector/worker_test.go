package collector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thep200/ghcollector/cfg"
	"github.com/thep200/ghcollector/internal/broker"
	"github.com/thep200/ghcollector/internal/fetcher"
	"github.com/thep200/ghcollector/internal/model"
	"github.com/thep200/ghcollector/internal/normalize"
)

type fakeJobStore struct {
	mu        sync.Mutex
	jobs      []*model.CollectionJob
	completed []int64
	failed    map[int64]string
	poisoned  map[int64]string
}

func newFakeJobStore(jobs ...*model.CollectionJob) *fakeJobStore {
	return &fakeJobStore{jobs: jobs, failed: map[int64]string{}, poisoned: map[int64]string{}}
}

func (f *fakeJobStore) Claim(ctx context.Context, limit int) ([]*model.CollectionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claimed := f.jobs
	f.jobs = nil
	return claimed, nil
}

func (f *fakeJobStore) Complete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeJobStore) Fail(ctx context.Context, id int64, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = message
	return nil
}

func (f *fakeJobStore) Poison(ctx context.Context, id int64, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poisoned[id] = message
	return nil
}

type fakeRepoStore struct {
	mu         sync.Mutex
	repos      map[string]*model.Repository
	watermarks map[string]time.Time
	users      map[int64]*model.User
	missing    map[int64]bool
	issues     map[int64]*model.Issue
	issuesMissing map[int64]bool
	dueForReverify map[int64][]model.IssueRef
	comments   map[int64]*model.Comment
	upsertCalls int
}

func newFakeRepoStore() *fakeRepoStore {
	return &fakeRepoStore{
		repos:         map[string]*model.Repository{},
		watermarks:    map[string]time.Time{},
		users:         map[int64]*model.User{},
		missing:       map[int64]bool{},
		issues:        map[int64]*model.Issue{},
		issuesMissing: map[int64]bool{},
		dueForReverify: map[int64][]model.IssueRef{},
		comments:      map[int64]*model.Comment{},
	}
}

func (f *fakeRepoStore) UpsertRepository(ctx context.Context, r *model.Repository) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repos[r.FullName] = r
	f.upsertCalls++
	return nil
}

func (f *fakeRepoStore) GetWatermark(ctx context.Context, repoFullName string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watermarks[repoFullName], nil
}

func (f *fakeRepoStore) SetWatermark(ctx context.Context, repoFullName string, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watermarks[repoFullName] = ts
	return nil
}

func (f *fakeRepoStore) UpsertUser(ctx context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
	return nil
}

func (f *fakeRepoStore) MarkUserMissing(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.missing[id] = true
	return nil
}

func (f *fakeRepoStore) UpsertIssue(ctx context.Context, i *model.Issue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues[i.ID] = i
	return nil
}

func (f *fakeRepoStore) MarkIssueMissing(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issuesMissing[id] = true
	return nil
}

func (f *fakeRepoStore) IssuesDueForReverify(ctx context.Context, repoID int64, limit int) ([]model.IssueRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	refs := f.dueForReverify[repoID]
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

func (f *fakeRepoStore) UpsertComment(ctx context.Context, c *model.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[c.ID] = c
	return nil
}

type fakeMetrics struct{}

func (fakeMetrics) RepoProcessed(outcome string)          {}
func (fakeMetrics) IssueProcessed(repoFullName string)    {}
func (fakeMetrics) JobStatus(repoFullName, status string) {}

type softDeleteEvent struct {
	repoFullName string
	issueNumber  int64
}

type fakeEventPublisher struct {
	mu        sync.Mutex
	published []softDeleteEvent
}

func (f *fakeEventPublisher) PublishIssueSoftDeleted(ctx context.Context, repoFullName string, issueNumber int64, detectedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, softDeleteEvent{repoFullName: repoFullName, issueNumber: issueNumber})
	return nil
}

type noopLogger struct{}

func (noopLogger) Info(ctx context.Context, format string, args ...interface{})      {}
func (noopLogger) Alert(ctx context.Context, format string, args ...interface{})     {}
func (noopLogger) Error(ctx context.Context, format string, args ...interface{})     {}
func (noopLogger) Warn(ctx context.Context, format string, args ...interface{})      {}
func (noopLogger) Debug(ctx context.Context, format string, args ...interface{})     {}
func (noopLogger) Notice(ctx context.Context, format string, args ...interface{})    {}
func (noopLogger) Critical(ctx context.Context, format string, args ...interface{})  {}
func (noopLogger) Emergency(ctx context.Context, format string, args ...interface{}) {}

// stubFetcher is a minimal fetcher.Fetcher backed by maps keyed on
// "owner/name", canned per test case.
type stubFetcher struct {
	repoFullName map[string]string
	repoErr      map[string]error
	repoID       map[string]int64
	issues       map[string][]fetcher.IssueRecord
	comments     map[int64][]fetcher.CommentRecord
	commentsErr  map[int64]error
	users        map[string]*fetcher.UserFetch
	issueByNumber map[int64]*fetcher.IssueRecord
	issueErr      map[int64]error
}

func (s *stubFetcher) FetchRepo(ctx context.Context, owner, name string) (*fetcher.RepoSnapshot, error) {
	key := owner + "/" + name
	if err, ok := s.repoErr[key]; ok {
		return nil, err
	}
	fullName := s.repoFullName[key]
	return &fetcher.RepoSnapshot{Repository: &model.Repository{ID: s.repoID[key], FullName: fullName}}, nil
}

func (s *stubFetcher) FetchIssues(ctx context.Context, owner, name string, repoID int64, since time.Time, cursor string, perPage int) (*fetcher.IssuePage, error) {
	if cursor != "" {
		return &fetcher.IssuePage{}, nil
	}
	key := owner + "/" + name
	return &fetcher.IssuePage{Items: s.issues[key]}, nil
}

func (s *stubFetcher) FetchIssue(ctx context.Context, owner, name string, repoID, number int64) (*fetcher.IssueRecord, error) {
	if err, ok := s.issueErr[number]; ok {
		return nil, err
	}
	if rec, ok := s.issueByNumber[number]; ok {
		return rec, nil
	}
	return &fetcher.IssueRecord{Issue: &model.Issue{RepoID: repoID, Number: number}}, nil
}

func (s *stubFetcher) FetchIssueComments(ctx context.Context, owner, name string, issueNumber, issueID int64, cursor string, perPage int) (*fetcher.CommentPage, error) {
	if err, ok := s.commentsErr[issueID]; ok {
		return nil, err
	}
	if cursor != "" {
		return &fetcher.CommentPage{}, nil
	}
	return &fetcher.CommentPage{Items: s.comments[issueID]}, nil
}

func (s *stubFetcher) FetchUser(ctx context.Context, ref *normalize.UserRef) (*fetcher.UserFetch, error) {
	if uf, ok := s.users[ref.Login]; ok {
		return uf, nil
	}
	return &fetcher.UserFetch{Found: &model.User{ID: ref.ID, Login: ref.Login}}, nil
}

func TestWorker_SeedMismatchIsPermanentFailure(t *testing.T) {
	job := &model.CollectionJob{ID: 1, Owner: "octocat", Name: "Hello-World", Priority: 0}
	jobs := newFakeJobStore(job)
	repos := newFakeRepoStore()

	fetch := &stubFetcher{
		repoFullName: map[string]string{"octocat/Hello-World": "someoneelse/renamed"},
	}

	w := NewWorker(&cfg.Config{}, jobs, repos, fetch, noopLogger{}, fakeMetrics{})
	_, err := w.runOnce(context.Background())
	require.NoError(t, err)

	assert.Contains(t, jobs.poisoned, int64(1))
	assert.Empty(t, jobs.completed)
}

func TestWorker_BasicIngestionCompletesAndAdvancesWatermark(t *testing.T) {
	job := &model.CollectionJob{ID: 2, Owner: "octocat", Name: "Hello-World", Priority: 0}
	jobs := newFakeJobStore(job)
	repos := newFakeRepoStore()

	updated := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	fetch := &stubFetcher{
		repoFullName: map[string]string{"octocat/Hello-World": "octocat/Hello-World"},
		repoID:       map[string]int64{"octocat/Hello-World": 100},
		issues: map[string][]fetcher.IssueRecord{
			"octocat/Hello-World": {
				{
					Issue:  &model.Issue{ID: 1, RepoID: 100, Number: 1, UpstreamUpdatedAt: updated},
					Author: &normalize.UserRef{ID: 7, Login: "alice"},
				},
			},
		},
	}

	w := NewWorker(&cfg.Config{}, jobs, repos, fetch, noopLogger{}, fakeMetrics{})
	n, err := w.runOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Contains(t, jobs.completed, int64(2))
	assert.Equal(t, 1, repos.upsertCalls)
	wm, _ := repos.GetWatermark(context.Background(), "octocat/Hello-World")
	assert.True(t, updated.Equal(wm))
	assert.Contains(t, repos.users, int64(7))
}

func TestWorker_IncrementalRunIsNoOpBelowWatermark(t *testing.T) {
	job := &model.CollectionJob{ID: 3, Owner: "octocat", Name: "Hello-World", Priority: 0}
	jobs := newFakeJobStore(job)
	repos := newFakeRepoStore()

	watermark := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	repos.watermarks["octocat/Hello-World"] = watermark

	fetch := &stubFetcher{
		repoFullName: map[string]string{"octocat/Hello-World": "octocat/Hello-World"},
		repoID:       map[string]int64{"octocat/Hello-World": 100},
		issues: map[string][]fetcher.IssueRecord{
			"octocat/Hello-World": {
				{Issue: &model.Issue{ID: 1, RepoID: 100, Number: 1, UpstreamUpdatedAt: watermark.Add(-time.Hour)}},
			},
		},
	}

	w := NewWorker(&cfg.Config{}, jobs, repos, fetch, noopLogger{}, fakeMetrics{})
	_, err := w.runOnce(context.Background())
	require.NoError(t, err)

	assert.Contains(t, jobs.completed, int64(3))
	assert.Empty(t, repos.issues)
}

func TestWorker_RepoNotFoundBecomesSeedMismatch(t *testing.T) {
	job := &model.CollectionJob{ID: 4, Owner: "ghost", Name: "repo", Priority: 0}
	jobs := newFakeJobStore(job)
	repos := newFakeRepoStore()

	fetch := &stubFetcher{
		repoErr: map[string]error{
			"ghost/repo": &broker.ErrNotFound{URL: "https://api.example.com/repos/ghost/repo"},
		},
	}

	w := NewWorker(&cfg.Config{}, jobs, repos, fetch, noopLogger{}, fakeMetrics{})
	_, err := w.runOnce(context.Background())
	require.NoError(t, err)

	assert.Contains(t, jobs.poisoned, int64(4))
}

func TestWorker_IssueCommentsNotFoundMarksIssueMissingAndContinues(t *testing.T) {
	job := &model.CollectionJob{ID: 5, Owner: "octocat", Name: "Hello-World", Priority: 0}
	jobs := newFakeJobStore(job)
	repos := newFakeRepoStore()

	updated := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	fetch := &stubFetcher{
		repoFullName: map[string]string{"octocat/Hello-World": "octocat/Hello-World"},
		repoID:       map[string]int64{"octocat/Hello-World": 100},
		issues: map[string][]fetcher.IssueRecord{
			"octocat/Hello-World": {
				{
					Issue: &model.Issue{ID: 1, RepoID: 100, Number: 1, UpstreamUpdatedAt: updated, CommentsCount: 3},
				},
				{
					Issue: &model.Issue{ID: 2, RepoID: 100, Number: 2, UpstreamUpdatedAt: updated},
				},
			},
		},
		commentsErr: map[int64]error{
			1: &broker.ErrNotFound{URL: "https://api.example.com/repos/octocat/Hello-World/issues/1/comments"},
		},
	}

	w := NewWorker(&cfg.Config{}, jobs, repos, fetch, noopLogger{}, fakeMetrics{})
	_, err := w.runOnce(context.Background())
	require.NoError(t, err)

	assert.Contains(t, jobs.completed, int64(5), "a 404 on one issue's comments must not fail the whole job")
	assert.True(t, repos.issuesMissing[1], "the issue whose comments 404ed must be marked missing")
	assert.False(t, repos.issuesMissing[2], "other issues in the same page must be unaffected")
	assert.Contains(t, repos.issues, int64(1), "the issue row itself is retained, not deleted")
	assert.Contains(t, repos.issues, int64(2))
}

func TestWorker_TargetedReverifyMarksVanishedIssueMissingEvenWithoutComments(t *testing.T) {
	job := &model.CollectionJob{ID: 6, Owner: "octocat", Name: "Hello-World", Priority: 0}
	jobs := newFakeJobStore(job)
	repos := newFakeRepoStore()
	// Issue 9 was ingested on a previous cycle and has no comments, so
	// the comments-404 path in processComments would never run for it;
	// it's due for this cycle's targeted re-read.
	repos.dueForReverify[100] = []model.IssueRef{{ID: 9, Number: 9}}

	fetch := &stubFetcher{
		repoFullName: map[string]string{"octocat/Hello-World": "octocat/Hello-World"},
		repoID:       map[string]int64{"octocat/Hello-World": 100},
		issueErr: map[int64]error{
			9: &broker.ErrNotFound{URL: "https://api.example.com/repos/octocat/Hello-World/issues/9"},
		},
	}

	w := NewWorker(&cfg.Config{}, jobs, repos, fetch, noopLogger{}, fakeMetrics{})
	_, err := w.runOnce(context.Background())
	require.NoError(t, err)

	assert.Contains(t, jobs.completed, int64(6))
	assert.True(t, repos.issuesMissing[9], "a 404 on a targeted re-read must mark the issue missing even with no comments")
}

func TestWorker_TargetedReverifyRefreshesIssueStillPresent(t *testing.T) {
	job := &model.CollectionJob{ID: 7, Owner: "octocat", Name: "Hello-World", Priority: 0}
	jobs := newFakeJobStore(job)
	repos := newFakeRepoStore()
	repos.dueForReverify[100] = []model.IssueRef{{ID: 10, Number: 10}}

	fetch := &stubFetcher{
		repoFullName: map[string]string{"octocat/Hello-World": "octocat/Hello-World"},
		repoID:       map[string]int64{"octocat/Hello-World": 100},
		issueByNumber: map[int64]*fetcher.IssueRecord{
			10: {Issue: &model.Issue{ID: 10, RepoID: 100, Number: 10, State: "closed"}},
		},
	}

	w := NewWorker(&cfg.Config{}, jobs, repos, fetch, noopLogger{}, fakeMetrics{})
	_, err := w.runOnce(context.Background())
	require.NoError(t, err)

	assert.Contains(t, jobs.completed, int64(7))
	assert.False(t, repos.issuesMissing[10], "an issue still present on re-read must not be flagged missing")
	require.Contains(t, repos.issues, int64(10))
	assert.Equal(t, "closed", repos.issues[10].State, "a re-read that finds the issue still present refreshes its row")
}

func TestWorker_SoftDeleteNotifiesConfiguredEventPublisher(t *testing.T) {
	job := &model.CollectionJob{ID: 8, Owner: "octocat", Name: "Hello-World", Priority: 0}
	jobs := newFakeJobStore(job)
	repos := newFakeRepoStore()
	repos.dueForReverify[100] = []model.IssueRef{{ID: 11, Number: 11}}

	fetch := &stubFetcher{
		repoFullName: map[string]string{"octocat/Hello-World": "octocat/Hello-World"},
		repoID:       map[string]int64{"octocat/Hello-World": 100},
		issueErr: map[int64]error{
			11: &broker.ErrNotFound{URL: "https://api.example.com/repos/octocat/Hello-World/issues/11"},
		},
	}

	events := &fakeEventPublisher{}
	w := NewWorker(&cfg.Config{}, jobs, repos, fetch, noopLogger{}, fakeMetrics{})
	w.SetEventPublisher(events)

	_, err := w.runOnce(context.Background())
	require.NoError(t, err)

	assert.Contains(t, jobs.completed, int64(8))
	require.Len(t, events.published, 1, "the configured publisher must be notified exactly once for the vanished issue")
	assert.Equal(t, softDeleteEvent{repoFullName: "octocat/Hello-World", issueNumber: 11}, events.published[0])
}

func TestWorker_NilEventPublisherIsANoop(t *testing.T) {
	job := &model.CollectionJob{ID: 9, Owner: "octocat", Name: "Hello-World", Priority: 0}
	jobs := newFakeJobStore(job)
	repos := newFakeRepoStore()
	repos.dueForReverify[100] = []model.IssueRef{{ID: 12, Number: 12}}

	fetch := &stubFetcher{
		repoFullName: map[string]string{"octocat/Hello-World": "octocat/Hello-World"},
		repoID:       map[string]int64{"octocat/Hello-World": 100},
		issueErr: map[int64]error{
			12: &broker.ErrNotFound{URL: "https://api.example.com/repos/octocat/Hello-World/issues/12"},
		},
	}

	w := NewWorker(&cfg.Config{}, jobs, repos, fetch, noopLogger{}, fakeMetrics{})
	_, err := w.runOnce(context.Background())
	require.NoError(t, err)

	assert.Contains(t, jobs.completed, int64(9), "a Worker with no event publisher configured must behave exactly as before")
}
