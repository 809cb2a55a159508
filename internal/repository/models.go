package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/fuzzyprice/internal/domain"
)

const specColumns = `id, tenant_id, name, description, version, variables, rules, clip_inputs, enabled, created_at, updated_at`

// A stored (id, version) is never overwritten; zero rows affected means it
// already exists.
const saveSpecSQL = `
INSERT INTO model_specs (` + specColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id, tenant_id, version) DO NOTHING`

const getSpecSQL = `
SELECT ` + specColumns + `
FROM model_specs
WHERE tenant_id = ? AND id = ? AND enabled = 1
ORDER BY updated_at DESC
LIMIT 1`

const listSpecsSQL = `
SELECT ` + specColumns + `
FROM model_specs
WHERE tenant_id = ? AND enabled = 1
ORDER BY id, updated_at`

// SaveModelSpec stores one version of a model specification and stamps its
// timestamps and tenant. Versions are immutable: saving an (id, version) the
// tenant already has fails with ErrConflict and leaves spec untouched.
func (r *SQLRepository) SaveModelSpec(ctx context.Context, tenantID string, spec *domain.ModelSpec) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if spec.ID == "" || spec.Version == "" {
		return fmt.Errorf("%w: model id and version are required", ErrInvalidInput)
	}

	variables, err := json.Marshal(spec.Variables)
	if err != nil {
		return fmt.Errorf("encode variables of %s: %w", spec.ModelKey(), err)
	}
	rules, err := json.Marshal(spec.Rules)
	if err != nil {
		return fmt.Errorf("encode rules of %s: %w", spec.ModelKey(), err)
	}

	now := time.Now().UTC()
	created := spec.CreatedAt
	if created.IsZero() {
		created = now
	}

	res, err := r.db.ExecContext(ctx, r.stmt.saveSpec,
		spec.ID, tenantID, spec.Name, spec.Description, spec.Version,
		string(variables), string(rules), boolInt(spec.ClipInputs), boolInt(spec.Enabled),
		created, now,
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", spec.ModelKey(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save %s: %w", spec.ModelKey(), err)
	}
	if n == 0 {
		return fmt.Errorf("%w: model %s is already stored", ErrConflict, spec.ModelKey())
	}

	spec.CreatedAt, spec.UpdatedAt, spec.TenantID = created, now, tenantID
	return nil
}

// GetModelSpec returns the most recently updated enabled version of a model.
func (r *SQLRepository) GetModelSpec(ctx context.Context, tenantID string, specID string) (*domain.ModelSpec, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	spec, err := scanModelSpec(r.db.QueryRowContext(ctx, r.stmt.getSpec, tenantID, specID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return spec, err
}

// ListModelSpecs returns every enabled model version of a tenant, oldest
// update first within each model.
func (r *SQLRepository) ListModelSpecs(ctx context.Context, tenantID string) ([]*domain.ModelSpec, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, r.stmt.listSpecs, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var specs []*domain.ModelSpec
	for rows.Next() {
		spec, err := scanModelSpec(rows)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

func scanModelSpec(row scanner) (*domain.ModelSpec, error) {
	var (
		spec             domain.ModelSpec
		description      sql.NullString
		variables, rules string
		clip, enabled    int
	)
	if err := row.Scan(
		&spec.ID, &spec.TenantID, &spec.Name, &description, &spec.Version,
		&variables, &rules, &clip, &enabled,
		&spec.CreatedAt, &spec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	spec.Description = description.String
	spec.ClipInputs = clip == 1
	spec.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(variables), &spec.Variables); err != nil {
		return nil, fmt.Errorf("decode variables of %s: %w", spec.ModelKey(), err)
	}
	if err := json.Unmarshal([]byte(rules), &spec.Rules); err != nil {
		return nil, fmt.Errorf("decode rules of %s: %w", spec.ModelKey(), err)
	}
	return &spec, nil
}
