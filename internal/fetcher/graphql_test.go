package fetcher

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thep200/ghcollector/internal/broker"
)

// gqlStubBroker answers GraphQL POSTs by matching the request body
// against a registry of canned responses keyed by substring (the query
// name is enough to disambiguate), and answers everything else (REST
// fallback calls) via the embedded stubBroker's URL-substring matching.
type gqlStubBroker struct {
	stubBroker
	byBodySubstring map[string]string
}

func (s *gqlStubBroker) Submit(ctx context.Context, req *broker.Request) (<-chan broker.Result, error) {
	if req.Method == http.MethodPost {
		for substr, body := range s.byBodySubstring {
			if strings.Contains(string(req.Body), substr) {
				ch := make(chan broker.Result, 1)
				ch <- broker.Result{Response: &broker.Response{Status: http.StatusOK, Body: []byte(body)}}
				return ch, nil
			}
		}
	}
	return s.stubBroker.Submit(ctx, req)
}

func TestGraphqlDataFetcher_FetchIssueCommentsResolvesAuthorFromBulkResponse(t *testing.T) {
	resp := `{"data":{"repository":{"issue":{"comments":{
		"pageInfo":{"hasNextPage":false,"endCursor":null},
		"nodes":[{"databaseId":1,"body":"hi","createdAt":"2024-01-01T00:00:00Z","updatedAt":null,
			"author":{"login":"alice","databaseId":7}}]
	}}}}}`
	sb := &gqlStubBroker{byBodySubstring: map[string]string{"IssueComments": resp}}
	rest := NewRestDataFetcher(sb, "https://api.github.com", "test-agent")
	f := NewGraphqlDataFetcher(sb, rest, "test-agent")

	page, err := f.FetchIssueComments(context.Background(), "octocat", "Hello-World", 1, 100, "", 50)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.NotNil(t, page.Items[0].Author)
	assert.Equal(t, "alice", page.Items[0].Author.Login)
	assert.Equal(t, int64(7), page.Items[0].Author.ID)
	assert.Empty(t, sb.stubBroker.calls, "a resolvable author must not trigger a REST fallback call")
}

func TestGraphqlDataFetcher_FetchIssueCommentsFallsBackToRestForMissingAuthor(t *testing.T) {
	resp := `{"data":{"repository":{"issue":{"comments":{
		"pageInfo":{"hasNextPage":false,"endCursor":null},
		"nodes":[{"databaseId":1,"body":"hi","createdAt":"2024-01-01T00:00:00Z","updatedAt":null,
			"author":{"login":"bot-without-id","databaseId":0}}]
	}}}}}`
	sb := &gqlStubBroker{
		byBodySubstring: map[string]string{"IssueComments": resp},
		stubBroker: stubBroker{
			byPathSubstring: map[string]string{"/users/bot-without-id": `{"id":99,"login":"bot-without-id","type":"Bot"}`},
		},
	}
	rest := NewRestDataFetcher(sb, "https://api.github.com", "test-agent")
	f := NewGraphqlDataFetcher(sb, rest, "test-agent")

	page, err := f.FetchIssueComments(context.Background(), "octocat", "Hello-World", 1, 100, "", 50)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.NotNil(t, page.Items[0].Author)
	assert.Equal(t, int64(99), page.Items[0].Author.ID)
	assert.Len(t, sb.stubBroker.calls, 1, "an author missing from the bulk response must fall back to exactly one REST call")
}

func TestGraphqlDataFetcher_FetchIssuesDelegatesToRest(t *testing.T) {
	body := `[{"id":1,"number":1,"state":"open","title":"a","updated_at":"2024-01-01T00:00:00Z"}]`
	sb := &gqlStubBroker{stubBroker: stubBroker{byPathSubstring: map[string]string{"/issues": body}}}
	rest := NewRestDataFetcher(sb, "https://api.github.com", "test-agent")
	f := NewGraphqlDataFetcher(sb, rest, "test-agent")

	page, err := f.FetchIssues(context.Background(), "octocat", "Hello-World", 100, time.Time{}, "", 50)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
}
