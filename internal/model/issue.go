package model

import (
	"encoding/json"
	"time"
)

// Issue carries both a pull request and a plain issue — IsPullRequest
// distinguishes them, matching the upstream API's own overlay of PRs on
// top of the issues endpoint.
type Issue struct {
	Timestamps
	ID             int64           `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	RepoID         int64           `json:"repo_id" gorm:"column:repo_id;not null;index"`
	Number         int64           `json:"number" gorm:"column:number;not null"`
	IsPullRequest  bool            `json:"is_pull_request" gorm:"column:is_pull_request;not null;default:false"`
	State          string          `json:"state" gorm:"column:state;type:varchar(20);not null"`
	Title          string          `json:"title" gorm:"column:title;not null"`
	Body           *string         `json:"body" gorm:"column:body"`
	UserID         *int64          `json:"user_id" gorm:"column:user_id"`
	CommentsCount  int64           `json:"comments_count" gorm:"column:comments_count;not null;default:0"`
	UpstreamUpdatedAt time.Time    `json:"updated_at" gorm:"column:upstream_updated_at;not null;index:idx_issues_updated_at,sort:desc"`
	ClosedAt       *time.Time      `json:"closed_at" gorm:"column:closed_at"`
	DedupeHash     string          `json:"dedupe_hash" gorm:"column:dedupe_hash;type:varchar(64);index"`
	Raw            json.RawMessage `json:"raw" gorm:"column:raw;type:jsonb"`
	Found          bool            `json:"found" gorm:"column:found;not null;default:true"`
}

func (Issue) TableName() string { return "issues" }

// IssueRef names an issue by its surrogate id and upstream number, the
// minimum a targeted per-issue re-read needs.
type IssueRef struct {
	ID     int64
	Number int64
}
