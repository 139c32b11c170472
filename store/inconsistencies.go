package store

import (
	"context"
	"fmt"
	"strings"

	"b3ledger/domain"
)

// AppendInconsistency records a new OPEN inconsistency (spec §4.J).
func (c *Conn) AppendInconsistency(ctx context.Context, in domain.Inconsistency) (domain.Inconsistency, error) {
	in.Status = domain.InconsistencyOpen
	var assetID, txID interface{}
	if in.AssetID != nil {
		assetID = *in.AssetID
	}
	if in.TransactionID != nil {
		txID = *in.TransactionID
	}
	err := c.DB.QueryRow(ctx, `
		INSERT INTO inconsistencies(kind, status, severity, asset_id, transaction_id, missing_fields, context, resolution)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'')
		RETURNING id`,
		in.Kind, in.Status, in.Severity, assetID, txID, strings.Join(in.MissingFields, ","), in.Context,
	).Scan(&in.ID)
	if err != nil {
		return domain.Inconsistency{}, fmt.Errorf("store: append inconsistency: %w", err)
	}
	return in, nil
}

// ListOpenInconsistencies returns every OPEN record, oldest first.
func (c *Conn) ListOpenInconsistencies(ctx context.Context) ([]domain.Inconsistency, error) {
	rows, err := c.DB.Query(ctx, `
		SELECT id, kind, status, severity, asset_id, transaction_id, missing_fields, context, resolution
		FROM inconsistencies WHERE status = 'OPEN' ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list open inconsistencies: %w", err)
	}
	defer rows.Close()

	var out []domain.Inconsistency
	for rows.Next() {
		var in domain.Inconsistency
		var assetID, txID *int64
		var missingFields string
		if err := rows.Scan(&in.ID, &in.Kind, &in.Status, &in.Severity, &assetID, &txID,
			&missingFields, &in.Context, &in.Resolution); err != nil {
			return nil, fmt.Errorf("store: scan inconsistency: %w", err)
		}
		in.AssetID = assetID
		in.TransactionID = txID
		if missingFields != "" {
			in.MissingFields = strings.Split(missingFields, ",")
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// ResolveInconsistency applies a resolution payload and transitions the
// record to RESOLVED or IGNORED. It only updates the row; snapshot
// invalidation is left to inconsistency.Resolve (spec §4.J).
func (c *Conn) ResolveInconsistency(ctx context.Context, id int64, status domain.InconsistencyStatus, resolution string) error {
	_, err := c.ExecWithRetry(ctx,
		`UPDATE inconsistencies SET status = $2, resolution = $3 WHERE id = $1`,
		id, status, resolution)
	if err != nil {
		return fmt.Errorf("store: resolve inconsistency %d: %w", id, err)
	}
	return nil
}
