package fetcher

import (
	"context"
	"time"

	"github.com/thep200/ghcollector/internal/normalize"
)

// HybridDataFetcher selects the bulk/graph operation per-operation and
// falls back to REST where GraphQL can't serve the whole job:
//   - repo metadata: GraphQL (single query, no pagination concern).
//   - issue listing: REST. The GraphQL `issues` connection excludes pull
//     requests entirely (a separate `pullRequests` connection would be
//     needed and merged back in), so it can't serve list_issues without
//     silently dropping PRs; REST's `/issues` endpoint returns both.
//   - targeted single-issue re-read: REST too, for the same reason —
//     repository.issue(number:) resolves against the Issue type only
//     and returns null for a PR's number.
//   - comments: GraphQL, bulk-fetched with nested author data, falling
//     back to a per-item REST get_user call only for authors missing
//     enough data in the bulk response to resolve a UserRef.
//   - users: REST (no bulk user-listing operation exists to prefer).
type HybridDataFetcher struct {
	graphql *GraphqlDataFetcher
	rest    *RestDataFetcher
}

func NewHybridDataFetcher(b BrokerSubmitter, baseURL, userAgent string) *HybridDataFetcher {
	rest := NewRestDataFetcher(b, baseURL, userAgent)
	return &HybridDataFetcher{graphql: NewGraphqlDataFetcher(b, rest, userAgent), rest: rest}
}

func (f *HybridDataFetcher) FetchRepo(ctx context.Context, owner, name string) (*RepoSnapshot, error) {
	return f.graphql.FetchRepo(ctx, owner, name)
}

func (f *HybridDataFetcher) FetchIssues(ctx context.Context, owner, name string, repoID int64, since time.Time, cursor string, perPage int) (*IssuePage, error) {
	return f.rest.FetchIssues(ctx, owner, name, repoID, since, cursor, perPage)
}

func (f *HybridDataFetcher) FetchIssue(ctx context.Context, owner, name string, repoID, number int64) (*IssueRecord, error) {
	return f.rest.FetchIssue(ctx, owner, name, repoID, number)
}

func (f *HybridDataFetcher) FetchIssueComments(ctx context.Context, owner, name string, issueNumber, issueID int64, cursor string, perPage int) (*CommentPage, error) {
	return f.graphql.FetchIssueComments(ctx, owner, name, issueNumber, issueID, cursor, perPage)
}

func (f *HybridDataFetcher) FetchUser(ctx context.Context, ref *normalize.UserRef) (*UserFetch, error) {
	return f.rest.FetchUser(ctx, ref)
}

// New picks the fetcher implementation per configured mode: rest (every
// operation over REST), graph (GraphqlDataFetcher directly — repo and
// comments over GraphQL, issues and users over REST, same as hybrid),
// or hybrid (the default, identical selection to graph today but kept
// distinct so the two modes can diverge later without a config change).
func New(mode string, b BrokerSubmitter, baseURL, userAgent string) Fetcher {
	switch mode {
	case "rest":
		return NewRestDataFetcher(b, baseURL, userAgent)
	case "graph":
		rest := NewRestDataFetcher(b, baseURL, userAgent)
		return NewGraphqlDataFetcher(b, rest, userAgent)
	default:
		return NewHybridDataFetcher(b, baseURL, userAgent)
	}
}

var _ Fetcher = (*HybridDataFetcher)(nil)
