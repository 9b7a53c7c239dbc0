package model

import "time"

// SpamFlag records a scoring pass against an issue or comment. Reasons
// is a Postgres text[] column, created via raw DDL in migrate.go since
// GORM's AutoMigrate cannot express array columns.
type SpamFlag struct {
	ID          int64     `json:"id" gorm:"column:id;primaryKey"`
	SubjectType string    `json:"subject_type" gorm:"column:subject_type;type:varchar(20);not null"`
	SubjectID   int64     `json:"subject_id" gorm:"column:subject_id;not null"`
	Score       float64   `json:"score" gorm:"column:score;not null"`
	Version     int       `json:"version" gorm:"column:version;not null"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at;not null;default:now()"`
}

func (SpamFlag) TableName() string { return "spam_flags" }
