package model

import "time"

// Timestamps is embedded by every row whose primary key is the
// upstream's own numeric id rather than an autoincrement surrogate, so
// it deliberately omits an embedded ID field.
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;not null;default:now()"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;not null;default:now()"`
}
