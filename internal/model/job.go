package model

import "time"

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobError      JobStatus = "error"
)

// CollectionJob is the durable unit of work claimed by the collection
// worker. failed is retryable; error is terminal — see jobstore for the
// promotion rule between them.
type CollectionJob struct {
	ID              int64      `json:"id" gorm:"column:id;primaryKey"`
	Owner           string     `json:"owner" gorm:"column:owner;type:varchar(255);not null"`
	Name            string     `json:"name" gorm:"column:name;type:varchar(255);not null"`
	Status          JobStatus  `json:"status" gorm:"column:status;type:varchar(20);not null;default:pending"`
	Priority        int        `json:"priority" gorm:"column:priority;not null;default:0"`
	LastAttemptAt   *time.Time `json:"last_attempt_at" gorm:"column:last_attempt_at"`
	LastCompletedAt *time.Time `json:"last_completed_at" gorm:"column:last_completed_at"`
	FailureCount    int        `json:"failure_count" gorm:"column:failure_count;not null;default:0"`
	ErrorMessage    *string    `json:"error_message" gorm:"column:error_message"`
	CreatedAt       time.Time  `json:"created_at" gorm:"column:created_at;not null;default:now()"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"column:updated_at;not null;default:now()"`
}

func (CollectionJob) TableName() string { return "collection_jobs" }
