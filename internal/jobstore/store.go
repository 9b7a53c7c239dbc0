package jobstore

import (
	"context"
	"errors"

	"github.com/thep200/ghcollector/internal/model"
	"github.com/thep200/ghcollector/pkg/db"
	"gorm.io/gorm"
)

// ErrNotFound is returned when an operation targets a job id that does
// not exist.
var ErrNotFound = errors.New("job not found")

// Store is the durable collection-job queue: atomic enqueue/claim/
// complete/fail over Postgres, using SELECT ... FOR UPDATE SKIP LOCKED
// so concurrent workers never claim the same row.
type Store struct {
	pg          *db.Postgres
	maxFailures int
}

func New(pg *db.Postgres, maxFailures int) *Store {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	return &Store{pg: pg, maxFailures: maxFailures}
}

// Enqueue inserts a new job or, on (owner, name) conflict, raises the
// existing row's priority to max(current, requested) and returns it —
// idempotent under repeated submission.
func (s *Store) Enqueue(ctx context.Context, owner, name string, priority int) (*model.CollectionJob, error) {
	gdb, err := s.pg.Db()
	if err != nil {
		return nil, err
	}

	err = gdb.WithContext(ctx).Exec(`
		INSERT INTO collection_jobs (owner, name, status, priority, failure_count, created_at, updated_at)
		VALUES (?, ?, 'pending', ?, 0, now(), now())
		ON CONFLICT (owner, name) DO UPDATE
		SET priority = GREATEST(collection_jobs.priority, excluded.priority), updated_at = now()
	`, owner, name, priority).Error
	if err != nil {
		return nil, err
	}

	var job model.CollectionJob
	if err := gdb.WithContext(ctx).Where("owner = ? AND name = ?", owner, name).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// Claim atomically transitions up to limit jobs from pending|failed to
// in_progress, ordered by priority DESC then created_at ASC, and stamps
// last_attempt_at. Concurrent callers never observe an overlapping set.
func (s *Store) Claim(ctx context.Context, limit int) ([]*model.CollectionJob, error) {
	gdb, err := s.pg.Db()
	if err != nil {
		return nil, err
	}

	var claimed []*model.CollectionJob

	err = gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []int64
		if err := tx.Raw(`
			SELECT id FROM collection_jobs
			WHERE status IN ('pending', 'failed')
			ORDER BY priority DESC, created_at ASC
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		`, limit).Scan(&ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Exec(`
			UPDATE collection_jobs
			SET status = 'in_progress', last_attempt_at = now(), updated_at = now()
			WHERE id IN (?)
		`, ids).Error; err != nil {
			return err
		}

		return tx.Where("id IN (?)", ids).Order("priority DESC, created_at ASC").Find(&claimed).Error
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Complete marks a job finished and resets its failure count, so a job
// that previously failed and later succeeds doesn't carry a stale
// count into its next enqueue cycle.
func (s *Store) Complete(ctx context.Context, id int64) error {
	gdb, err := s.pg.Db()
	if err != nil {
		return err
	}
	res := gdb.WithContext(ctx).Exec(`
		UPDATE collection_jobs
		SET status = 'completed', last_completed_at = now(), failure_count = 0, error_message = NULL, updated_at = now()
		WHERE id = ?
	`, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Fail records a transient failure: failure_count increments, and the
// job is promoted to the terminal error status once failure_count
// reaches maxFailures, otherwise it goes back to failed (retryable by
// a future Claim). The CASE expression is evaluated against the row's
// pre-update values, so this is safe under concurrent Fail calls on
// distinct jobs without a read-then-write race.
func (s *Store) Fail(ctx context.Context, id int64, errMsg string) error {
	gdb, err := s.pg.Db()
	if err != nil {
		return err
	}
	res := gdb.WithContext(ctx).Exec(`
		UPDATE collection_jobs
		SET failure_count = failure_count + 1,
		    error_message = ?,
		    status = CASE WHEN failure_count + 1 >= ? THEN 'error' ELSE 'failed' END,
		    updated_at = now()
		WHERE id = ?
	`, errMsg, s.maxFailures, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns jobs optionally filtered by status, newest-updated
// first, used by the control surface's GET /jobs introspection route.
func (s *Store) List(ctx context.Context, status string, limit int) ([]*model.CollectionJob, error) {
	gdb, err := s.pg.Db()
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	q := gdb.WithContext(ctx).Order("updated_at DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var jobs []*model.CollectionJob
	if err := q.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Poison forces a job straight to the terminal error status, used by
// the worker when it detects a seed mismatch — a condition no amount
// of retrying will resolve.
func (s *Store) Poison(ctx context.Context, id int64, errMsg string) error {
	gdb, err := s.pg.Db()
	if err != nil {
		return err
	}
	res := gdb.WithContext(ctx).Exec(`
		UPDATE collection_jobs
		SET status = 'error', error_message = ?, updated_at = now()
		WHERE id = ?
	`, errMsg, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
