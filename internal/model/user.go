package model

import "encoding/json"

// User mirrors an upstream account. Found flips false when a
// previously-ingested author disappears from a later response (the
// account was deleted, banned, or renamed away).
type User struct {
	Timestamps
	ID          int64           `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	Login       string          `json:"login" gorm:"column:login;type:varchar(255);uniqueIndex;not null"`
	Type        string          `json:"type" gorm:"column:type;type:varchar(50)"`
	SiteAdmin   bool            `json:"site_admin" gorm:"column:site_admin;not null;default:false"`
	Followers   *int64          `json:"followers" gorm:"column:followers"`
	Following   *int64          `json:"following" gorm:"column:following"`
	PublicRepos *int64          `json:"public_repos" gorm:"column:public_repos"`
	Raw         json.RawMessage `json:"raw" gorm:"column:raw;type:jsonb"`
	Found       bool            `json:"found" gorm:"column:found;not null;default:true"`
}

func (User) TableName() string { return "users" }
