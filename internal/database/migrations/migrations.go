package migrations

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/uptrace/bun"

	"ms-club-ticketing/internal/logger"
)

type Options struct {
	// Dir holds NNNNNN_name.up.sql / .down.sql pairs.
	Dir         string
	AutoMigrate bool
}

// Runner applies the SQL migrations to the Postgres database behind bun.
type Runner struct {
	db       *bun.DB
	opts     Options
	log      *logger.Logger
	migrator *migrate.Migrate
}

func NewRunner(db *bun.DB, opts Options, log *logger.Logger) *Runner {
	return &Runner{db: db, opts: opts, log: log}
}

// migrateLogger forwards golang-migrate output to the service logger.
type migrateLogger struct {
	log *logger.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Debug("MIGRATE", fmt.Sprintf(format, v...))
}

func (l migrateLogger) Verbose() bool { return false }

func (r *Runner) init() error {
	if r.migrator != nil {
		return nil
	}
	if _, err := os.Stat(r.opts.Dir); err != nil {
		return fmt.Errorf("migrations directory %s: %w", r.opts.Dir, err)
	}
	abs, err := filepath.Abs(r.opts.Dir)
	if err != nil {
		return err
	}

	driver, err := postgres.WithInstance(r.db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(abs), "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	m.Log = migrateLogger{log: r.log}
	r.migrator = m
	return nil
}

// Up applies every pending migration. A dirty version is reported, not
// forced; it needs a human look.
func (r *Runner) Up() error {
	if err := r.init(); err != nil {
		return err
	}
	if _, dirty, err := r.migrator.Version(); err == nil && dirty {
		return errors.New("schema is dirty, fix the failed migration and force its version")
	}
	if err := r.migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	r.logVersion()
	return nil
}

// Down rolls back one migration.
func (r *Runner) Down() error {
	if err := r.init(); err != nil {
		return err
	}
	if err := r.migrator.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	r.logVersion()
	return nil
}

// To migrates up or down to the given version.
func (r *Runner) To(version uint) error {
	if err := r.init(); err != nil {
		return err
	}
	if err := r.migrator.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration to version %d failed: %w", version, err)
	}
	r.logVersion()
	return nil
}

// Force sets the recorded version without running anything.
func (r *Runner) Force(version int) error {
	if err := r.init(); err != nil {
		return err
	}
	return r.migrator.Force(version)
}

// Version returns 0 when nothing was applied yet.
func (r *Runner) Version() (uint, bool, error) {
	if err := r.init(); err != nil {
		return 0, false, err
	}
	v, dirty, err := r.migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func (r *Runner) logVersion() {
	if v, dirty, err := r.migrator.Version(); err == nil {
		r.log.LogDatabase("MIGRATE", "schema_migrations", fmt.Sprintf("schema version %d (dirty=%t)", v, dirty))
	}
}

// Close releases the migrator. It leaves the shared *sql.DB open.
func (r *Runner) Close() error {
	if r.migrator == nil {
		return nil
	}
	srcErr, _ := r.migrator.Close()
	return srcErr
}
