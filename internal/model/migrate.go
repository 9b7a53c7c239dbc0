package model

import (
	"strings"

	"github.com/thep200/ghcollector/pkg/db"
)

// AllModels lists every table AutoMigrate should manage. Order matters
// for the foreign keys GORM infers from struct tags we add later if
// needed; kept flat here since FKs are declared via raw DDL below.
func AllModels() []interface{} {
	return []interface{}{
		&Repository{},
		&User{},
		&Issue{},
		&Comment{},
		&SpamFlag{},
		&Watermark{},
		&CollectionJob{},
	}
}

// migrationDDL are schema features AutoMigrate cannot express from Go
// struct tags: case-insensitive uniqueness, GIN full-text indexes, a
// text[] column, foreign keys with cascade, and the composite index the
// claim query depends on.
var migrationDDL = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_repositories_full_name_ci ON repositories (lower(full_name))`,
	`ALTER TABLE issues ADD CONSTRAINT fk_issues_repo FOREIGN KEY (repo_id) REFERENCES repositories(id) ON DELETE CASCADE`,
	`ALTER TABLE issues ADD CONSTRAINT fk_issues_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE SET NULL`,
	`ALTER TABLE comments ADD CONSTRAINT fk_comments_issue FOREIGN KEY (issue_id) REFERENCES issues(id) ON DELETE CASCADE`,
	`ALTER TABLE comments ADD CONSTRAINT fk_comments_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE SET NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_issues_repo_number ON issues (repo_id, number)`,
	`CREATE INDEX IF NOT EXISTS idx_issues_body_fts ON issues USING GIN (to_tsvector('english', coalesce(body, '')))`,
	`CREATE INDEX IF NOT EXISTS idx_comments_body_fts ON comments USING GIN (to_tsvector('english', body))`,
	`ALTER TABLE spam_flags ADD COLUMN IF NOT EXISTS reasons text[] NOT NULL DEFAULT '{}'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_spam_flags_subject_version ON spam_flags (subject_type, subject_id, version)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_collection_jobs_owner_name ON collection_jobs (owner, name)`,
	`CREATE INDEX IF NOT EXISTS idx_collection_jobs_claim ON collection_jobs (status, priority DESC, created_at ASC)`,
}

// Migrate runs AutoMigrate for every model then layers on the DDL GORM
// cannot generate itself. Constraint/index creation statements are
// idempotent or guarded with IF NOT EXISTS except the four ADD
// CONSTRAINT statements, which are best-effort: a second run against an
// already-migrated database errors on those four, and Migrate ignores
// the error there only.
func Migrate(pg *db.Postgres) error {
	if err := pg.Migrate(AllModels()...); err != nil {
		return err
	}
	for _, stmt := range migrationDDL {
		if err := pg.ExecDDL(stmt); err != nil && !strings.Contains(stmt, "ADD CONSTRAINT") {
			return err
		}
	}
	return nil
}
