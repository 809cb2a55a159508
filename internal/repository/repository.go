// Package repository persists model specifications and estimates in SQLite
// or PostgreSQL through database/sql.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/fuzzyprice/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("record already exists")
)

// DefaultListLimit caps ListEstimates when the caller passes no limit.
const DefaultListLimit = 100

var openers = map[string]func(domain.RepositoryConfig) (*sql.DB, error){
	"sqlite":   openSQLite,
	"postgres": openPostgres,
}

// SQLRepository implements domain.Repository for every supported driver.
// Statements are written with ? placeholders and numbered once for
// PostgreSQL.
type SQLRepository struct {
	db   *sql.DB
	stmt statements
}

type statements struct {
	saveSpec, getSpec, listSpecs             string
	saveEstimate, getEstimate, listEstimates string
	recordMigration                          string
}

func newStatements(postgres bool) statements {
	bind := func(q string) string { return q }
	if postgres {
		bind = numberPlaceholders
	}
	return statements{
		saveSpec:        bind(saveSpecSQL),
		getSpec:         bind(getSpecSQL),
		listSpecs:       bind(listSpecsSQL),
		saveEstimate:    bind(saveEstimateSQL),
		getEstimate:     bind(getEstimateSQL),
		listEstimates:   bind(listEstimatesSQL),
		recordMigration: bind(recordMigrationSQL),
	}
}

// New opens the configured database and brings its schema up to date.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	open, ok := openers[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	db, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	tunePool(db, cfg)

	repo := &SQLRepository{db: db, stmt: newStatements(cfg.Driver == "postgres")}
	if err := repo.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s schema: %w", cfg.Driver, err)
	}
	return repo, nil
}

func tunePool(db *sql.DB, cfg domain.RepositoryConfig) {
	// An in-memory SQLite database lives on its single connection.
	if cfg.MaxOpenConns > 0 && !(cfg.Driver == "sqlite" && cfg.SQLitePath == MemoryPath) {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// migrate applies every migration newer than the recorded schema version,
// each in its own transaction.
func (r *SQLRepository) migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaMigrationsSQL); err != nil {
		return err
	}
	var current int
	if err := r.db.QueryRowContext(ctx, currentVersionSQL).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, r.stmt.recordMigration, version, time.Now().UTC()); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", version, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func requireTenant(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	return nil
}

// numberPlaceholders rewrites ? placeholders as $1, $2, ...
func numberPlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, c := range query {
		if c != '?' {
			b.WriteRune(c)
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
