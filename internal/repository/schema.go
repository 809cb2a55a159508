package repository

// The statements below run unchanged on SQLite and PostgreSQL.

const schemaMigrationsSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
)`

const currentVersionSQL = `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`

const recordMigrationSQL = `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`

// migrations are applied in order; the position is the schema version.
// Append only.
var migrations = []string{
	// 1: every version of every model specification, variables and rules as JSON.
	`
CREATE TABLE IF NOT EXISTS model_specs (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    variables TEXT NOT NULL,
    rules TEXT NOT NULL,
    clip_inputs INTEGER NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);
CREATE INDEX IF NOT EXISTS idx_model_specs_enabled ON model_specs(tenant_id, enabled);
`,
	// 2: estimate history.
	`
CREATE TABLE IF NOT EXISTS estimates (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    model_id TEXT NOT NULL,
    model_version TEXT NOT NULL,
    status TEXT NOT NULL,
    price REAL NOT NULL DEFAULT 0,
    category TEXT,
    error_code TEXT,
    message TEXT,
    inputs TEXT NOT NULL,
    activations TEXT,
    comparison TEXT,
    metadata TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_estimates_status ON estimates(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_estimates_timestamp ON estimates(tenant_id, timestamp);
`,
}
