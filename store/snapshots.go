package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"

	"b3ledger/calendar"
	"b3ledger/decimal"
	"b3ledger/domain"
)

// invalidateSnapshotsFrom deletes every PositionSnapshot and LossSnapshot with
// a governing date on or after d, the sole mechanism the snapshot cache uses
// to drop stale rows (spec §4.H "Invalidation").
func invalidateSnapshotsFrom(ctx context.Context, tx pgx.Tx, d calendar.Date) error {
	if _, err := tx.Exec(ctx, `DELETE FROM position_snapshots WHERE snapshot_date >= $1`, d.ToTime()); err != nil {
		return fmt.Errorf("store: invalidate position snapshots: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM loss_snapshots WHERE year >= $1`, d.Year()); err != nil {
		return fmt.Errorf("store: invalidate loss snapshots: %w", err)
	}
	return nil
}

// InvalidateSnapshotsFrom is the standalone entry point used by callers that
// are not already inside an append transaction (e.g. Inconsistency
// resolution, which spec §4.J says "is itself a mutation and therefore
// triggers snapshot invalidation").
func (c *Conn) InvalidateSnapshotsFrom(ctx context.Context, d calendar.Date) error {
	tx, err := c.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin invalidate: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	if err := invalidateSnapshotsFrom(ctx, tx, d); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetPositionSnapshot reads the snapshot row for (date, asset), reporting
// whether one exists.
func (c *Conn) GetPositionSnapshot(ctx context.Context, d calendar.Date, assetID int64) (domain.PositionSnapshot, bool, error) {
	var s domain.PositionSnapshot
	var marketPrice, marketValue, unrealizedPL *string
	err := c.DB.QueryRow(ctx, `
		SELECT snapshot_date, asset_id, quantity, average_cost, market_price,
			market_value, unrealized_pl, tx_fingerprint, label
		FROM position_snapshots WHERE snapshot_date = $1 AND asset_id = $2`,
		d.ToTime(), assetID,
	).Scan(&s.SnapshotDate, &s.AssetID, &s.Quantity, &s.AverageCost,
		&marketPrice, &marketValue, &unrealizedPL, &s.TxFingerprint, &s.Label)
	if err != nil {
		return domain.PositionSnapshot{}, false, nil
	}
	s.MarketPrice = optionalAmount(marketPrice)
	s.MarketValue = optionalAmount(marketValue)
	s.UnrealizedPL = optionalAmount(unrealizedPL)
	return s, true, nil
}

// ListPositionSnapshots returns every snapshot row stored for date d, the
// "one row per position" persisted by Save (spec §4.H).
func (c *Conn) ListPositionSnapshots(ctx context.Context, d calendar.Date) ([]domain.PositionSnapshot, error) {
	rows, err := c.DB.Query(ctx, `
		SELECT snapshot_date, asset_id, quantity, average_cost, market_price,
			market_value, unrealized_pl, tx_fingerprint, label
		FROM position_snapshots WHERE snapshot_date = $1`, d.ToTime())
	if err != nil {
		return nil, fmt.Errorf("store: list position snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.PositionSnapshot
	for rows.Next() {
		var s domain.PositionSnapshot
		var marketPrice, marketValue, unrealizedPL *string
		if err := rows.Scan(&s.SnapshotDate, &s.AssetID, &s.Quantity, &s.AverageCost,
			&marketPrice, &marketValue, &unrealizedPL, &s.TxFingerprint, &s.Label); err != nil {
			return nil, fmt.Errorf("store: scan position snapshot: %w", err)
		}
		s.MarketPrice = optionalAmount(marketPrice)
		s.MarketValue = optionalAmount(marketValue)
		s.UnrealizedPL = optionalAmount(unrealizedPL)
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpsertPositionSnapshot writes or replaces the snapshot for (date, asset);
// multiple snapshots per date are forbidden (spec §4.H "Save").
func (c *Conn) UpsertPositionSnapshot(ctx context.Context, s domain.PositionSnapshot) error {
	marketPrice := nullableAmountString(s.MarketPrice)
	marketValue := nullableAmountString(s.MarketValue)
	unrealizedPL := nullableAmountString(s.UnrealizedPL)
	_, err := c.ExecWithRetry(ctx, `
		INSERT INTO position_snapshots(snapshot_date, asset_id, quantity, average_cost,
			market_price, market_value, unrealized_pl, tx_fingerprint, label)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (snapshot_date, asset_id) DO UPDATE SET
			quantity = EXCLUDED.quantity, average_cost = EXCLUDED.average_cost,
			market_price = EXCLUDED.market_price, market_value = EXCLUDED.market_value,
			unrealized_pl = EXCLUDED.unrealized_pl, tx_fingerprint = EXCLUDED.tx_fingerprint,
			label = EXCLUDED.label`,
		s.SnapshotDate.ToTime(), s.AssetID, s.Quantity.String(), s.AverageCost.String(),
		marketPrice, marketValue, unrealizedPL, s.TxFingerprint, s.Label)
	if err != nil {
		return fmt.Errorf("store: upsert position snapshot: %w", err)
	}
	return nil
}

// GetLossSnapshot reads the content-addressed carry-forward snapshot for
// (year, category), if one has been closed (spec §4.F "Carry-forward snapshots").
func (c *Conn) GetLossSnapshot(ctx context.Context, year int, category domain.TaxCategory) (domain.LossSnapshot, bool, error) {
	var s domain.LossSnapshot
	s.Year = year
	s.Category = category
	err := c.DB.QueryRow(ctx,
		`SELECT ending_remaining, tx_fingerprint FROM loss_snapshots WHERE year = $1 AND tax_category = $2`,
		year, category).Scan(&s.EndingRemaining, &s.TxFingerprint)
	if err != nil {
		return domain.LossSnapshot{}, false, nil
	}
	return s, true, nil
}

// UpsertLossSnapshot writes the closed-year carry-forward digest.
func (c *Conn) UpsertLossSnapshot(ctx context.Context, s domain.LossSnapshot) error {
	_, err := c.ExecWithRetry(ctx, `
		INSERT INTO loss_snapshots(year, tax_category, ending_remaining, tx_fingerprint)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (year, tax_category) DO UPDATE SET
			ending_remaining = EXCLUDED.ending_remaining, tx_fingerprint = EXCLUDED.tx_fingerprint`,
		s.Year, s.Category, s.EndingRemaining.String(), s.TxFingerprint)
	if err != nil {
		return fmt.Errorf("store: upsert loss snapshot: %w", err)
	}
	return nil
}

func optionalAmount(s *string) *decimal.Amount {
	if s == nil {
		return nil
	}
	a, err := decimal.NewFromString(*s)
	if err != nil {
		return nil
	}
	return &a
}

func nullableAmountString(a *decimal.Amount) interface{} {
	if a == nil {
		return nil
	}
	return a.String()
}
