package fetcher

import (
	"context"
	"time"

	"github.com/thep200/ghcollector/internal/model"
	"github.com/thep200/ghcollector/internal/normalize"
)

// RepoSnapshot wraps a freshly fetched, already-normalized repository row.
type RepoSnapshot struct {
	Repository *model.Repository
}

// IssueRecord pairs a normalized issue with its unresolved author, so
// the caller can decide whether to resolve/cache/upsert that user.
type IssueRecord struct {
	Issue  *model.Issue
	Author *normalize.UserRef
}

// IssuePage is one page of an issue listing plus the cursor to
// continue from; an empty cursor means the listing is exhausted.
type IssuePage struct {
	Items      []IssueRecord
	NextCursor string
}

type CommentRecord struct {
	Comment *model.Comment
	Author  *normalize.UserRef
}

type CommentPage struct {
	Items      []CommentRecord
	NextCursor string
}

// MissingUser records a 404 on a user fetch so the caller can flag the
// row found=false instead of treating it as a hard failure.
type MissingUser struct {
	ID     int64
	Login  string
	Status int
}

// UserFetch is a Found/Missing sum type, modelled as two nilable fields
// since Go has no tagged unions: exactly one of the two is non-nil.
type UserFetch struct {
	Found   *model.User
	Missing *MissingUser
}

// Fetcher is the facade every collection-worker operation goes through
// to reach upstream data: paginated, typed operations backed by the
// broker for transport, caching, and rate-limit admission.
type Fetcher interface {
	FetchRepo(ctx context.Context, owner, name string) (*RepoSnapshot, error)
	FetchIssues(ctx context.Context, owner, name string, repoID int64, since time.Time, cursor string, perPage int) (*IssuePage, error)
	// FetchIssue is a targeted re-read of one issue by number, used to
	// confirm whether it still exists upstream outside the normal
	// incremental listing pass — the only way to observe a deletion,
	// since a deleted issue just stops appearing in future listings the
	// same way an untouched one does.
	FetchIssue(ctx context.Context, owner, name string, repoID, number int64) (*IssueRecord, error)
	FetchIssueComments(ctx context.Context, owner, name string, issueNumber, issueID int64, cursor string, perPage int) (*CommentPage, error)
	FetchUser(ctx context.Context, ref *normalize.UserRef) (*UserFetch, error)
}
