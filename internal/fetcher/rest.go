package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/thep200/ghcollector/internal/broker"
	"github.com/thep200/ghcollector/internal/normalize"
)

// BrokerSubmitter is the slice of *broker.Broker the REST fetcher
// depends on, narrowed so tests can stub it without a real broker.
type BrokerSubmitter interface {
	Submit(ctx context.Context, req *broker.Request) (<-chan broker.Result, error)
}

// RestDataFetcher implements Fetcher entirely over the REST surface,
// one call per resource, paginated with page-number cursors. Grounded
// on the broker-backed client in the pre-distillation implementation,
// adapted to route every call through the in-process broker instead of
// a bespoke HTTP client.
type RestDataFetcher struct {
	broker    BrokerSubmitter
	baseURL   string
	userAgent string
}

func NewRestDataFetcher(b BrokerSubmitter, baseURL, userAgent string) *RestDataFetcher {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &RestDataFetcher{broker: b, baseURL: baseURL, userAgent: userAgent}
}

func (f *RestDataFetcher) getJSON(ctx context.Context, path string, budget, class string) (json.RawMessage, error) {
	req := &broker.Request{
		Method:      http.MethodGet,
		URL:         f.baseURL + path,
		Budget:      budget,
		Class:       class,
		CachePolicy: broker.CacheUse,
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
		return json.RawMessage(res.Response.Body), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *RestDataFetcher) getJSONArray(ctx context.Context, path, budget, class string) ([]json.RawMessage, error) {
	raw, err := f.getJSON(ctx, path, budget, class)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &broker.ErrContract{Detail: fmt.Sprintf("expected array response: %v", err)}
	}
	return items, nil
}

func (f *RestDataFetcher) FetchRepo(ctx context.Context, owner, name string) (*RepoSnapshot, error) {
	path := fmt.Sprintf("/repos/%s/%s", owner, name)
	raw, err := f.getJSON(ctx, path, "core", "interactive")
	if err != nil {
		return nil, err
	}
	var payload normalize.RepoPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &broker.ErrContract{Detail: err.Error()}
	}
	return &RepoSnapshot{Repository: normalize.Repository(&payload, raw)}, nil
}

func (f *RestDataFetcher) FetchIssues(ctx context.Context, owner, name string, repoID int64, since time.Time, cursor string, perPage int) (*IssuePage, error) {
	page := cursorToPage(cursor)

	q := url.Values{}
	q.Set("state", "all")
	q.Set("sort", "updated")
	q.Set("direction", "desc")
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}

	path := fmt.Sprintf("/repos/%s/%s/issues?%s", owner, name, q.Encode())
	rawItems, err := f.getJSONArray(ctx, path, "core", "background")
	if err != nil {
		return nil, err
	}

	items := make([]IssueRecord, 0, len(rawItems))
	for _, raw := range rawItems {
		var payload normalize.IssuePayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, &broker.ErrContract{Detail: err.Error()}
		}
		authorLogin := ""
		if payload.User != nil {
			authorLogin = payload.User.Login
		}
		items = append(items, IssueRecord{
			Issue:  normalize.Issue(&payload, repoID, authorLogin, raw),
			Author: payload.User,
		})
	}

	next := ""
	if len(items) == perPage {
		next = strconv.Itoa(page + 1)
	}
	return &IssuePage{Items: items, NextCursor: next}, nil
}

func (f *RestDataFetcher) FetchIssue(ctx context.Context, owner, name string, repoID, number int64) (*IssueRecord, error) {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", owner, name, number)
	raw, err := f.getJSON(ctx, path, "core", "interactive")
	if err != nil {
		return nil, err
	}
	var payload normalize.IssuePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &broker.ErrContract{Detail: err.Error()}
	}
	authorLogin := ""
	if payload.User != nil {
		authorLogin = payload.User.Login
	}
	return &IssueRecord{Issue: normalize.Issue(&payload, repoID, authorLogin, raw), Author: payload.User}, nil
}

func (f *RestDataFetcher) FetchIssueComments(ctx context.Context, owner, name string, issueNumber, issueID int64, cursor string, perPage int) (*CommentPage, error) {
	page := cursorToPage(cursor)

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments?%s", owner, name, issueNumber, q.Encode())
	rawItems, err := f.getJSONArray(ctx, path, "core", "background")
	if err != nil {
		return nil, err
	}

	items := make([]CommentRecord, 0, len(rawItems))
	for _, raw := range rawItems {
		var payload normalize.CommentPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, &broker.ErrContract{Detail: err.Error()}
		}
		authorLogin := ""
		if payload.User != nil {
			authorLogin = payload.User.Login
		}
		items = append(items, CommentRecord{
			Comment: normalize.Comment(&payload, issueID, authorLogin, raw),
			Author:  payload.User,
		})
	}

	next := ""
	if len(items) == perPage {
		next = strconv.Itoa(page + 1)
	}
	return &CommentPage{Items: items, NextCursor: next}, nil
}

func (f *RestDataFetcher) FetchUser(ctx context.Context, ref *normalize.UserRef) (*UserFetch, error) {
	path := fmt.Sprintf("/users/%s", ref.Login)
	raw, err := f.getJSON(ctx, path, "core", "background")
	if err != nil {
		if _, ok := err.(*broker.ErrNotFound); ok {
			return &UserFetch{Missing: &MissingUser{ID: ref.ID, Login: ref.Login, Status: http.StatusNotFound}}, nil
		}
		return nil, err
	}
	var payload normalize.UserPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &broker.ErrContract{Detail: err.Error()}
	}
	return &UserFetch{Found: normalize.User(&payload, raw)}, nil
}

func cursorToPage(cursor string) int {
	if cursor == "" {
		return 1
	}
	n, err := strconv.Atoi(cursor)
	if err != nil || n <= 0 {
		return 1
	}
	return n
}

var _ Fetcher = (*RestDataFetcher)(nil)
