package repostore

import (
	"context"
	"time"

	"github.com/thep200/ghcollector/internal/model"
	"github.com/thep200/ghcollector/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists normalized rows with upsert-on-conflict semantics
// across every row kind the collection worker produces.
type Store struct {
	pg *db.Postgres
}

func New(pg *db.Postgres) *Store {
	return &Store{pg: pg}
}

func (s *Store) gdb(ctx context.Context) (*gorm.DB, error) {
	gdb, err := s.pg.Db()
	if err != nil {
		return nil, err
	}
	return gdb.WithContext(ctx), nil
}

// UpsertRepository inserts or refreshes a repositories row keyed by
// upstream id; full_name uniqueness is enforced separately by the
// case-insensitive functional index created in migrate.go.
func (s *Store) UpsertRepository(ctx context.Context, r *model.Repository) error {
	gdb, err := s.gdb(ctx)
	if err != nil {
		return err
	}
	return gdb.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"full_name", "is_fork", "pushed_at", "raw", "updated_at"}),
	}).Create(r).Error
}

func (s *Store) UpsertUser(ctx context.Context, u *model.User) error {
	gdb, err := s.gdb(ctx)
	if err != nil {
		return err
	}
	return gdb.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"login", "type", "site_admin", "followers", "following", "public_repos", "raw", "found", "updated_at"}),
	}).Create(u).Error
}

// MarkUserMissing flips found=false on a 404, without touching any
// other column — a ghost account may still be referenced by historical
// issues/comments and those rows must keep their user_id intact.
func (s *Store) MarkUserMissing(ctx context.Context, id int64) error {
	gdb, err := s.gdb(ctx)
	if err != nil {
		return err
	}
	return gdb.Model(&model.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"found":      false,
		"updated_at": time.Now(),
	}).Error
}

func (s *Store) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	gdb, err := s.gdb(ctx)
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := gdb.Where("login = ?", login).First(&u).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) UpsertIssue(ctx context.Context, i *model.Issue) error {
	gdb, err := s.gdb(ctx)
	if err != nil {
		return err
	}
	return gdb.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"repo_id", "number", "is_pull_request", "state", "title", "body", "user_id",
			"comments_count", "upstream_updated_at", "closed_at", "dedupe_hash", "raw", "found", "updated_at",
		}),
	}).Create(i).Error
}

// MarkIssueMissing flips found=false on a 404 for the issue's own
// resource (or for a 404 on its comments listing), without touching any
// other column — existing comments keep their issue_id intact.
func (s *Store) MarkIssueMissing(ctx context.Context, id int64) error {
	gdb, err := s.gdb(ctx)
	if err != nil {
		return err
	}
	return gdb.Model(&model.Issue{}).Where("id = ?", id).Updates(map[string]interface{}{
		"found":      false,
		"updated_at": time.Now(),
	}).Error
}

// IssuesDueForReverify returns up to limit currently-found issues for a
// repository, least-recently-touched first, so a bounded per-cycle
// sweep eventually re-verifies every issue's continued existence
// upstream. This is the "targeted re-read" that detects a deletion:
// the incremental listing in FetchIssues is filtered by updated-since
// and will never again surface an issue that stops changing, deleted
// or not, so disappearance can only be observed by asking upstream
// about that specific number directly.
func (s *Store) IssuesDueForReverify(ctx context.Context, repoID int64, limit int) ([]model.IssueRef, error) {
	gdb, err := s.gdb(ctx)
	if err != nil {
		return nil, err
	}
	var rows []model.Issue
	if err := gdb.Model(&model.Issue{}).
		Where("repo_id = ? AND found = ?", repoID, true).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	refs := make([]model.IssueRef, len(rows))
	for i, r := range rows {
		refs[i] = model.IssueRef{ID: r.ID, Number: r.Number}
	}
	return refs, nil
}

func (s *Store) UpsertComment(ctx context.Context, c *model.Comment) error {
	gdb, err := s.gdb(ctx)
	if err != nil {
		return err
	}
	return gdb.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"issue_id", "user_id", "body", "upstream_updated_at", "dedupe_hash", "raw", "found", "updated_at",
		}),
	}).Create(c).Error
}

func (s *Store) UpsertSpamFlag(ctx context.Context, f *model.SpamFlag) error {
	gdb, err := s.gdb(ctx)
	if err != nil {
		return err
	}
	return gdb.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subject_type"}, {Name: "subject_id"}, {Name: "version"}},
		DoUpdates: clause.AssignmentColumns([]string{"score"}),
	}).Create(f).Error
}

// GetWatermark returns the last absorbed upstream updated_at for a
// repository, or the zero time if none exists yet.
func (s *Store) GetWatermark(ctx context.Context, repoFullName string) (time.Time, error) {
	gdb, err := s.gdb(ctx)
	if err != nil {
		return time.Time{}, err
	}
	var w model.Watermark
	err = gdb.Where("repo_full_name = ?", repoFullName).First(&w).Error
	if err == gorm.ErrRecordNotFound {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return w.LastUpdated, nil
}

// SetWatermark advances the watermark, but only forward — callers
// compute the new max before calling, so this simply overwrites.
func (s *Store) SetWatermark(ctx context.Context, repoFullName string, ts time.Time) error {
	gdb, err := s.gdb(ctx)
	if err != nil {
		return err
	}
	return gdb.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "repo_full_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_updated"}),
	}).Create(&model.Watermark{RepoFullName: repoFullName, LastUpdated: ts}).Error
}
