package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/thep200/ghcollector/internal/broker"
	"github.com/thep200/ghcollector/internal/normalize"
)

const repoQuery = `
query RepoInfo($owner: String!, $name: String!) {
  repository(owner: $owner, name: $name) {
    databaseId
    nameWithOwner
    isFork
    pushedAt
  }
}
`

const issueCommentsQuery = `
query IssueComments($owner: String!, $name: String!, $number: Int!, $perPage: Int!, $cursor: String) {
  repository(owner: $owner, name: $name) {
    issue(number: $number) {
      comments(first: $perPage, after: $cursor, orderBy: { field: UPDATED_AT, direction: ASC }) {
        pageInfo {
          hasNextPage
          endCursor
        }
        nodes {
          databaseId
          body
          createdAt
          updatedAt
          author {
            login
            ... on User {
              databaseId
            }
          }
        }
      }
    }
  }
}
`

type commentsEnvelope struct {
	Data struct {
		Repository *struct {
			Issue *struct {
				Comments struct {
					PageInfo struct {
						HasNextPage bool    `json:"hasNextPage"`
						EndCursor   *string `json:"endCursor"`
					} `json:"pageInfo"`
					Nodes []struct {
						DatabaseID int64   `json:"databaseId"`
						Body       string  `json:"body"`
						CreatedAt  string  `json:"createdAt"`
						UpdatedAt  *string `json:"updatedAt"`
						Author     *struct {
							Login      string `json:"login"`
							DatabaseID int64  `json:"databaseId"`
						} `json:"author"`
					} `json:"nodes"`
				} `json:"comments"`
			} `json:"issue"`
		} `json:"repository"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type graphqlEnvelope struct {
	Data struct {
		Repository *struct {
			DatabaseID    int64   `json:"databaseId"`
			NameWithOwner string  `json:"nameWithOwner"`
			IsFork        bool    `json:"isFork"`
			PushedAt      *string `json:"pushedAt"`
		} `json:"repository"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// GraphqlDataFetcher serves repository metadata and issue comments over
// GraphQL, with issue listing and user lookups delegated to REST: issue
// listing because the GraphQL issues connection excludes pull requests,
// users because there's no bulk operation to prefer over get_user.
type GraphqlDataFetcher struct {
	broker    BrokerSubmitter
	rest      *RestDataFetcher
	userAgent string
}

func NewGraphqlDataFetcher(b BrokerSubmitter, rest *RestDataFetcher, userAgent string) *GraphqlDataFetcher {
	return &GraphqlDataFetcher{broker: b, rest: rest, userAgent: userAgent}
}

// executeRaw submits one GraphQL operation and returns the raw response
// body, leaving envelope-shape decoding to the caller so each query can
// declare its own typed result struct.
func (f *GraphqlDataFetcher) executeRaw(ctx context.Context, query string, variables map[string]interface{}) ([]byte, error) {
	body, err := json.Marshal(map[string]interface{}{"query": query, "variables": variables})
	if err != nil {
		return nil, &broker.ErrContract{Detail: err.Error()}
	}

	req := &broker.Request{
		Method:      http.MethodPost,
		URL:         "https://api.github.com/graphql",
		Body:        body,
		Budget:      "graphql",
		Class:       "interactive",
		CachePolicy: broker.CacheBypass,
	}
	resultCh, err := f.broker.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	select {
	case res := <-resultCh:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Response.Body, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *GraphqlDataFetcher) execute(ctx context.Context, query string, variables map[string]interface{}) (*graphqlEnvelope, error) {
	raw, err := f.executeRaw(ctx, query, variables)
	if err != nil {
		return nil, err
	}
	var env graphqlEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &broker.ErrContract{Detail: err.Error()}
	}
	if len(env.Errors) > 0 {
		return nil, &broker.ErrContract{Detail: env.Errors[0].Message}
	}
	return &env, nil
}

func (f *GraphqlDataFetcher) FetchRepo(ctx context.Context, owner, name string) (*RepoSnapshot, error) {
	env, err := f.execute(ctx, repoQuery, map[string]interface{}{"owner": owner, "name": name})
	if err != nil {
		return nil, err
	}
	if env.Data.Repository == nil {
		return nil, &broker.ErrNotFound{URL: fmt.Sprintf("repos/%s/%s", owner, name)}
	}

	repo := env.Data.Repository
	payload := normalize.RepoPayload{ID: repo.DatabaseID, FullName: repo.NameWithOwner, Fork: repo.IsFork}
	raw, _ := json.Marshal(map[string]interface{}{
		"id": repo.DatabaseID, "full_name": repo.NameWithOwner, "fork": repo.IsFork, "pushed_at": repo.PushedAt,
	})
	return &RepoSnapshot{Repository: normalize.Repository(&payload, raw)}, nil
}

func (f *GraphqlDataFetcher) FetchIssues(ctx context.Context, owner, name string, repoID int64, since time.Time, cursor string, perPage int) (*IssuePage, error) {
	return f.rest.FetchIssues(ctx, owner, name, repoID, since, cursor, perPage)
}

// FetchIssue delegates to REST for the same reason FetchIssues does:
// GitHub's GraphQL schema resolves repository.issue(number:) against
// the Issue type specifically and returns null for a number that
// belongs to a pull request, which would misreport a PR number as
// deleted rather than as out of scope.
func (f *GraphqlDataFetcher) FetchIssue(ctx context.Context, owner, name string, repoID, number int64) (*IssueRecord, error) {
	return f.rest.FetchIssue(ctx, owner, name, repoID, number)
}

// FetchIssueComments bulk-fetches one page of comments over GraphQL,
// nested author data included, so the common case resolves every
// comment's author without a single extra REST call. An author present
// in the connection but missing a databaseId (GitHub omits it for
// organisations, bots, and some ghost accounts) falls back to a
// per-item REST get_user call, per hybrid mode's per-operation
// bulk-then-fallback contract.
func (f *GraphqlDataFetcher) FetchIssueComments(ctx context.Context, owner, name string, issueNumber, issueID int64, cursor string, perPage int) (*CommentPage, error) {
	vars := map[string]interface{}{
		"owner": owner, "name": name, "number": issueNumber, "perPage": perPage,
	}
	if cursor != "" {
		vars["cursor"] = cursor
	}

	raw, err := f.executeRaw(ctx, issueCommentsQuery, vars)
	if err != nil {
		return nil, err
	}
	var env commentsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &broker.ErrContract{Detail: err.Error()}
	}
	if len(env.Errors) > 0 {
		return nil, &broker.ErrContract{Detail: env.Errors[0].Message}
	}
	if env.Data.Repository == nil {
		return nil, &broker.ErrNotFound{URL: fmt.Sprintf("repos/%s/%s", owner, name)}
	}
	if env.Data.Repository.Issue == nil {
		return nil, &broker.ErrNotFound{URL: fmt.Sprintf("repos/%s/%s/issues/%d", owner, name, issueNumber)}
	}

	conn := env.Data.Repository.Issue.Comments
	items := make([]CommentRecord, 0, len(conn.Nodes))
	for _, node := range conn.Nodes {
		var ref *normalize.UserRef
		switch {
		case node.Author == nil:
			// Deleted/anonymous account; leave unresolved as REST does.
		case node.Author.DatabaseID != 0:
			ref = &normalize.UserRef{ID: node.Author.DatabaseID, Login: node.Author.Login}
		case node.Author.Login != "":
			resolved, err := f.rest.FetchUser(ctx, &normalize.UserRef{Login: node.Author.Login})
			if err != nil {
				return nil, err
			}
			if resolved.Found != nil {
				ref = &normalize.UserRef{ID: resolved.Found.ID, Login: resolved.Found.Login}
			}
		}

		authorLogin := ""
		if ref != nil {
			authorLogin = ref.Login
		}
		payload := normalize.CommentPayload{
			ID:        node.DatabaseID,
			User:      ref,
			Body:      node.Body,
			CreatedAt: node.CreatedAt,
			UpdatedAt: node.UpdatedAt,
		}
		rawComment, _ := json.Marshal(map[string]interface{}{
			"id": node.DatabaseID, "body": node.Body, "created_at": node.CreatedAt, "updated_at": node.UpdatedAt,
		})
		items = append(items, CommentRecord{
			Comment: normalize.Comment(&payload, issueID, authorLogin, rawComment),
			Author:  ref,
		})
	}

	next := ""
	if conn.PageInfo.HasNextPage && conn.PageInfo.EndCursor != nil {
		next = *conn.PageInfo.EndCursor
	}
	return &CommentPage{Items: items, NextCursor: next}, nil
}

func (f *GraphqlDataFetcher) FetchUser(ctx context.Context, ref *normalize.UserRef) (*UserFetch, error) {
	return f.rest.FetchUser(ctx, ref)
}

var _ Fetcher = (*GraphqlDataFetcher)(nil)
