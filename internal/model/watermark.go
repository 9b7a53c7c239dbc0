package model

import "time"

// Watermark records the most recent upstream updated_at already
// absorbed for one repository. RepoFullName is the primary key — there
// is exactly one watermark per repository.
type Watermark struct {
	RepoFullName string    `json:"repo_full_name" gorm:"column:repo_full_name;primaryKey;type:varchar(510)"`
	LastUpdated  time.Time `json:"last_updated" gorm:"column:last_updated;not null"`
}

func (Watermark) TableName() string { return "collector_watermarks" }
