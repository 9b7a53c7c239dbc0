package normalize

import "encoding/json"

// UserRef is the small author stub GitHub embeds on issues and
// comments — just enough to resolve or seed a users row.
type UserRef struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// RepoPayload is the subset of a repository response this module cares
// about; everything else rides along verbatim in Raw.
type RepoPayload struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Fork     bool   `json:"fork"`
	PushedAt *int64 `json:"pushed_at"`
}

type UserPayload struct {
	ID          int64  `json:"id"`
	Login       string `json:"login"`
	Type        string `json:"type"`
	SiteAdmin   bool   `json:"site_admin"`
	Followers   *int64 `json:"followers"`
	Following   *int64 `json:"following"`
	PublicRepos *int64 `json:"public_repos"`
}

type IssuePayload struct {
	ID           int64           `json:"id"`
	Number       int64           `json:"number"`
	PullRequest  json.RawMessage `json:"pull_request"`
	State        string          `json:"state"`
	Title        string          `json:"title"`
	Body         *string         `json:"body"`
	User         *UserRef        `json:"user"`
	Comments     int64           `json:"comments"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
	ClosedAt     *string         `json:"closed_at"`
}

type CommentPayload struct {
	ID        int64    `json:"id"`
	User      *UserRef `json:"user"`
	Body      string   `json:"body"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt *string  `json:"updated_at"`
}
