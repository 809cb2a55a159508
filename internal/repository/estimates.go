package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-finance/fuzzyprice/internal/domain"
)

const estimateColumns = `id, tenant_id, model_id, model_version, status, price, category,
    error_code, message, inputs, activations, comparison, metadata, timestamp`

const saveEstimateSQL = `
INSERT INTO estimates (` + estimateColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const getEstimateSQL = `
SELECT ` + estimateColumns + `
FROM estimates
WHERE tenant_id = ? AND id = ?`

const listEstimatesSQL = `
SELECT ` + estimateColumns + `
FROM estimates
WHERE tenant_id = ?
ORDER BY timestamp DESC
LIMIT ?`

// estimateDocs holds the JSON-encoded columns of an estimate row.
type estimateDocs struct {
	inputs, activations, metadata string
	comparison                    sql.NullString
}

func encodeEstimateDocs(est *domain.Estimate) (estimateDocs, error) {
	var docs estimateDocs
	for _, f := range []struct {
		dst *string
		v   any
	}{
		{&docs.inputs, est.Inputs},
		{&docs.activations, est.Activations},
		{&docs.metadata, est.Metadata},
	} {
		b, err := json.Marshal(f.v)
		if err != nil {
			return docs, err
		}
		*f.dst = string(b)
	}
	if est.Comparison != nil {
		b, err := json.Marshal(est.Comparison)
		if err != nil {
			return docs, err
		}
		docs.comparison = sql.NullString{String: string(b), Valid: true}
	}
	return docs, nil
}

// SaveEstimate records an estimate under the tenant.
func (r *SQLRepository) SaveEstimate(ctx context.Context, tenantID string, est *domain.Estimate) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	docs, err := encodeEstimateDocs(est)
	if err != nil {
		return fmt.Errorf("encode estimate %s: %w", est.ID, err)
	}

	_, err = r.db.ExecContext(ctx, r.stmt.saveEstimate,
		est.ID, tenantID, est.ModelID, est.Version, est.Status, est.Price, est.Category,
		est.Error, est.Message, docs.inputs, docs.activations, docs.comparison, docs.metadata,
		est.Timestamp,
	)
	return err
}

// GetEstimate returns one of the tenant's estimates.
func (r *SQLRepository) GetEstimate(ctx context.Context, tenantID string, estimateID string) (*domain.Estimate, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	est, err := scanEstimate(r.db.QueryRowContext(ctx, r.stmt.getEstimate, tenantID, estimateID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return est, err
}

// ListEstimates returns the tenant's newest estimates, most recent first.
func (r *SQLRepository) ListEstimates(ctx context.Context, tenantID string, limit int) ([]*domain.Estimate, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, r.stmt.listEstimates, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var estimates []*domain.Estimate
	for rows.Next() {
		est, err := scanEstimate(rows)
		if err != nil {
			return nil, err
		}
		estimates = append(estimates, est)
	}
	return estimates, rows.Err()
}

func scanEstimate(row scanner) (*domain.Estimate, error) {
	var est domain.Estimate
	var category, errCode, message, activations, comparison sql.NullString
	var inputs, metadata string
	if err := row.Scan(
		&est.ID, &est.TenantID, &est.ModelID, &est.Version, &est.Status, &est.Price, &category,
		&errCode, &message, &inputs, &activations, &comparison, &metadata, &est.Timestamp,
	); err != nil {
		return nil, err
	}

	est.Category = category.String
	est.Error = errCode.String
	est.Message = message.String

	if err := json.Unmarshal([]byte(inputs), &est.Inputs); err != nil {
		return nil, fmt.Errorf("decode inputs of estimate %s: %w", est.ID, err)
	}
	if err := json.Unmarshal([]byte(metadata), &est.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of estimate %s: %w", est.ID, err)
	}
	if activations.String != "" {
		if err := json.Unmarshal([]byte(activations.String), &est.Activations); err != nil {
			return nil, fmt.Errorf("decode activations of estimate %s: %w", est.ID, err)
		}
	}
	if comparison.Valid {
		est.Comparison = new(domain.PriceComparison)
		if err := json.Unmarshal([]byte(comparison.String), est.Comparison); err != nil {
			return nil, fmt.Errorf("decode comparison of estimate %s: %w", est.ID, err)
		}
	}
	return &est, nil
}
