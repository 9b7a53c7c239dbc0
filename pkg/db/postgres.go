package db

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/thep200/ghcollector/cfg"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var initErr error

// Postgres lazily opens and pools a single *gorm.DB: a sync.Once-guarded
// connection plus explicit pool tuning pulled from Config rather than
// GORM defaults.
type Postgres struct {
	Config *cfg.Config
	once   sync.Once
	db     *gorm.DB
}

func NewPostgres(config *cfg.Config) (*Postgres, error) {
	return &Postgres{
		Config: config,
	}, nil
}

// NewWithDB wraps an already-open *gorm.DB, bypassing lazy DSN-based
// connection setup. Used by store-level tests to inject a
// sqlmock-backed *gorm.DB without a real Postgres instance.
func NewWithDB(gdb *gorm.DB) *Postgres {
	p := &Postgres{}
	p.once.Do(func() { p.db = gdb })
	return p
}

func (p *Postgres) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Config.Postgres.Host,
		p.Config.Postgres.Port,
		p.Config.Postgres.Username,
		p.Config.Postgres.Password,
		p.Config.Postgres.Database,
		p.Config.Postgres.SslMode,
	)
}

func (p *Postgres) Db() (*gorm.DB, error) {
	p.once.Do(func() {
		var db *gorm.DB
		db, initErr = gorm.Open(postgres.Open(p.DSN()), &gorm.Config{})
		if initErr != nil {
			return
		}

		var sqlDB *sql.DB
		sqlDB, initErr = db.DB()
		if initErr != nil {
			return
		}

		sqlDB.SetMaxIdleConns(p.Config.Postgres.MaxIdleConnection)
		sqlDB.SetMaxOpenConns(p.Config.Postgres.MaxOpenConnection)
		sqlDB.SetConnMaxLifetime(time.Duration(p.Config.Postgres.MaxLifeTimeConnection) * time.Second)

		p.db = db
	})
	return p.db, initErr
}

func (p *Postgres) Ping() error {
	db, err := p.Db()
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (p *Postgres) Close() error {
	if p.db != nil {
		sqlDB, err := p.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

func (p *Postgres) Migrate(models ...interface{}) error {
	db, err := p.Db()
	if err != nil {
		return err
	}
	return db.AutoMigrate(models...)
}

// ExecDDL runs a raw statement, used only for schema features GORM's
// struct tags cannot express: GIN full-text indexes, the text[] reasons
// column on spam_flags, and the composite claim index.
func (p *Postgres) ExecDDL(stmt string) error {
	db, err := p.Db()
	if err != nil {
		return err
	}
	return db.Exec(stmt).Error
}
