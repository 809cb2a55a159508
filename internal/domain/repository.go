// Package domain defines the core interfaces and types for fuzzyprice.
package domain

import (
	"context"
	"time"
)

// GlobalTenantID owns model specifications shared by all tenants.
const GlobalTenantID = "*"

// Repository stores model specifications and estimate history. Every call is
// scoped to one tenant; specifications shared by all tenants live under
// GlobalTenantID.
type Repository interface {
	// SaveModelSpec stores a new (id, version); stored versions are never
	// replaced.
	SaveModelSpec(ctx context.Context, tenantID string, spec *ModelSpec) error
	// GetModelSpec returns the most recently updated enabled version.
	GetModelSpec(ctx context.Context, tenantID string, specID string) (*ModelSpec, error)
	ListModelSpecs(ctx context.Context, tenantID string) ([]*ModelSpec, error)

	SaveEstimate(ctx context.Context, tenantID string, estimate *Estimate) error
	GetEstimate(ctx context.Context, tenantID string, estimateID string) (*Estimate, error)
	// ListEstimates returns the newest estimates first; limit <= 0 applies
	// the store's default.
	ListEstimates(ctx context.Context, tenantID string, limit int) ([]*Estimate, error)

	Ping(ctx context.Context) error
	Close() error
}

// RepositoryConfig selects and tunes the database. Driver is "sqlite" or
// "postgres"; the Postgres* fields apply only to the latter.
type RepositoryConfig struct {
	Driver string `json:"driver" yaml:"driver" validate:"oneof=sqlite postgres"`

	SQLitePath string `json:"sqlitePath" yaml:"sqlitePath"`

	PostgresHost     string `json:"postgresHost" yaml:"postgresHost"`
	PostgresPort     int    `json:"postgresPort" yaml:"postgresPort"`
	PostgresUser     string `json:"postgresUser" yaml:"postgresUser"`
	PostgresPassword string `json:"-" yaml:"postgresPassword"`
	PostgresDB       string `json:"postgresDb" yaml:"postgresDb"`
	PostgresSSLMode  string `json:"postgresSslMode" yaml:"postgresSslMode"`

	// Pool limits; zero leaves the database/sql default.
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime"`
}
