package normalize

import (
	"encoding/json"
	"time"

	"github.com/thep200/ghcollector/internal/model"
)

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t := parseTime(*s)
	return &t
}

// Repository builds a repositories row from a decoded payload plus the
// raw bytes it was decoded from, preserved verbatim for replay.
func Repository(p *RepoPayload, raw json.RawMessage) *model.Repository {
	return &model.Repository{
		ID:       p.ID,
		FullName: p.FullName,
		IsFork:   p.Fork,
		PushedAt: p.PushedAt,
		Raw:      raw,
	}
}

// User builds a users row. The found flag is pinned true here; callers
// flip it to false explicitly when a fetch comes back 404.
func User(p *UserPayload, raw json.RawMessage) *model.User {
	return &model.User{
		ID:          p.ID,
		Login:       p.Login,
		Type:        p.Type,
		SiteAdmin:   p.SiteAdmin,
		Followers:   p.Followers,
		Following:   p.Following,
		PublicRepos: p.PublicRepos,
		Raw:         raw,
		Found:       true,
	}
}

// Issue builds an issues row, computing dedupe_hash over the author's
// login and the normalised body. authorLogin is passed explicitly
// rather than re-read off p.User, since the caller may have resolved a
// ghost author (deleted account) to an empty login.
func Issue(p *IssuePayload, repoID int64, authorLogin string, raw json.RawMessage) *model.Issue {
	body := ""
	if p.Body != nil {
		body = *p.Body
	}

	var userID *int64
	if p.User != nil {
		id := p.User.ID
		userID = &id
	}

	return &model.Issue{
		ID:                p.ID,
		RepoID:            repoID,
		Number:            p.Number,
		IsPullRequest:     len(p.PullRequest) > 0 && string(p.PullRequest) != "null",
		State:             p.State,
		Title:             p.Title,
		Body:              p.Body,
		UserID:            userID,
		CommentsCount:     p.Comments,
		UpstreamUpdatedAt: parseTime(p.UpdatedAt),
		ClosedAt:          parseTimePtr(p.ClosedAt),
		DedupeHash:        DedupeHash(authorLogin, body),
		Raw:               raw,
		Found:             true,
	}
}

// Comment builds a comments row the same way Issue does, minus title.
func Comment(p *CommentPayload, issueID int64, authorLogin string, raw json.RawMessage) *model.Comment {
	var userID *int64
	if p.User != nil {
		id := p.User.ID
		userID = &id
	}

	return &model.Comment{
		ID:                p.ID,
		IssueID:           issueID,
		UserID:            userID,
		Body:              p.Body,
		UpstreamUpdatedAt: parseTimePtr(p.UpdatedAt),
		DedupeHash:        DedupeHash(authorLogin, p.Body),
		Raw:               raw,
		Found:             true,
	}
}
