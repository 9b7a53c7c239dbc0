package model

import "encoding/json"

// Repository is a row keyed by the upstream's own numeric repository
// id. full_name uniqueness is enforced case-insensitively via a
// functional unique index created in migrate.go (GORM's tag syntax has
// no portable way to express `UNIQUE (lower(full_name))`).
type Repository struct {
	Timestamps
	ID        int64           `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	FullName  string          `json:"full_name" gorm:"column:full_name;type:varchar(510);not null"`
	IsFork    bool            `json:"is_fork" gorm:"column:is_fork;not null;default:false"`
	PushedAt  *int64          `json:"pushed_at" gorm:"column:pushed_at"`
	Raw       json.RawMessage `json:"raw" gorm:"column:raw;type:jsonb"`
}

func (Repository) TableName() string { return "repositories" }
