package model

import (
	"encoding/json"
	"time"
)

type Comment struct {
	Timestamps
	ID                int64           `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	IssueID           int64           `json:"issue_id" gorm:"column:issue_id;not null;index"`
	UserID            *int64          `json:"user_id" gorm:"column:user_id"`
	Body              string          `json:"body" gorm:"column:body;not null"`
	UpstreamUpdatedAt *time.Time      `json:"updated_at" gorm:"column:upstream_updated_at"`
	DedupeHash        string          `json:"dedupe_hash" gorm:"column:dedupe_hash;type:varchar(64);index"`
	Raw               json.RawMessage `json:"raw" gorm:"column:raw;type:jsonb"`
	Found             bool            `json:"found" gorm:"column:found;not null;default:true"`
}

func (Comment) TableName() string { return "comments" }
