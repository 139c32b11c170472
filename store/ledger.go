// ledger.go holds the append paths for the three immutable event streams
// (Transaction, CorporateEvent, IncomeEvent). Every append runs inside one
// database transaction that also advances the relevant ImportCursor and
// invalidates snapshots from the governing date forward (spec §4.B).
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"

	"b3ledger/domain"
)

// AppendTransaction inserts t unless it duplicates an existing row on
// (asset, trade_date, side, quantity) (spec §4.B "Duplicate detection").
// Duplicates are reported, not erred on, matching spec §7's "non-fatal, counted".
func (c *Conn) AppendTransaction(ctx context.Context, t domain.Transaction) (inserted domain.Transaction, wasDuplicate bool, err error) {
	tx, err := c.DB.Begin(ctx)
	if err != nil {
		return domain.Transaction{}, false, fmt.Errorf("store: begin append transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var dupID int64
	dupErr := tx.QueryRow(ctx,
		`SELECT id FROM transactions WHERE asset_id = $1 AND trade_date = $2 AND side = $3 AND quantity = $4`,
		t.AssetID, t.TradeDate.ToTime(), t.Side, t.Quantity.String()).Scan(&dupID)
	if dupErr == nil {
		return domain.Transaction{}, true, nil
	}

	inserted, err = insertTransaction(ctx, tx, t)
	if err != nil {
		return domain.Transaction{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Transaction{}, false, fmt.Errorf("store: commit append transaction: %w", err)
	}
	return inserted, false, nil
}

// ForceAppendTransaction inserts t unconditionally, bypassing the
// (asset, trade_date, side, quantity) duplicate check. Callers use this only
// when an operator has explicitly overridden a reported duplicate (spec §9
// OQ1 decision: duplicates stay rejected by default, but an auditable
// override path exists); the caller is responsible for recording why.
func (c *Conn) ForceAppendTransaction(ctx context.Context, t domain.Transaction) (domain.Transaction, error) {
	tx, err := c.DB.Begin(ctx)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("store: begin force append transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	inserted, err := insertTransaction(ctx, tx, t)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Transaction{}, fmt.Errorf("store: commit force append transaction: %w", err)
	}
	return inserted, nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t domain.Transaction) (domain.Transaction, error) {
	var settlement interface{}
	if t.SettlementDate != nil {
		settlement = t.SettlementDate.ToTime()
	}
	var quotaIssuance interface{}
	if t.QuotaIssuanceDate != nil {
		quotaIssuance = t.QuotaIssuanceDate.ToTime()
	}

	err := tx.QueryRow(ctx, `
		INSERT INTO transactions(asset_id, side, trade_date, settlement_date, quantity,
			price_per_unit, total_cost, fees, is_day_trade, quota_issuance_date, source)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id`,
		t.AssetID, t.Side, t.TradeDate.ToTime(), settlement, t.Quantity.String(),
		t.PricePerUnit.String(), t.TotalCost.String(), t.Fees.String(), t.IsDayTrade,
		quotaIssuance, t.Source,
	).Scan(&t.ID)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("store: insert transaction: %w", err)
	}

	if err := invalidateSnapshotsFrom(ctx, tx, t.TradeDate); err != nil {
		return domain.Transaction{}, err
	}
	if err := advanceCursorTx(ctx, tx, t.Source, "transaction", t.TradeDate); err != nil {
		return domain.Transaction{}, err
	}
	return t, nil
}

// AppendCorporateEvent inserts a corporate action. Duplicate rejection on
// (asset, ex_date, kind, and the variant's parameters) prevents the
// double-adjustment spec §8.1 "No double adjustment" guards against.
func (c *Conn) AppendCorporateEvent(ctx context.Context, e domain.CorporateEvent) (domain.CorporateEvent, bool, error) {
	tx, err := c.DB.Begin(ctx)
	if err != nil {
		return domain.CorporateEvent{}, false, fmt.Errorf("store: begin append event: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var dupID int64
	dupErr := tx.QueryRow(ctx,
		`SELECT id FROM corporate_events WHERE asset_id = $1 AND ex_date = $2 AND kind = $3
			AND quantity_adjustment = $4 AND COALESCE(from_asset_id, 0) = $5 AND COALESCE(to_asset_id, 0) = $6
			AND exchange_kind = $7 AND to_quantity = $8 AND cash_amount = $9 AND amount_per_unit = $10`,
		e.AssetID, e.ExDate.ToTime(), e.Kind, e.QuantityAdjustment.String(), e.FromAssetID, e.ToAssetID,
		e.ExchangeKind, e.ToQuantity.String(), e.CashAmount.String(), e.AmountPerUnit.String()).Scan(&dupID)
	if dupErr == nil {
		return domain.CorporateEvent{}, true, nil
	}

	var fromAsset, toAsset interface{}
	if e.FromAssetID != 0 {
		fromAsset = e.FromAssetID
	}
	if e.ToAssetID != 0 {
		toAsset = e.ToAssetID
	}
	var allocatedCost interface{}
	if e.AllocatedCost != nil {
		allocatedCost = e.AllocatedCost.String()
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO corporate_events(asset_id, event_date, ex_date, source, kind,
			quantity_adjustment, from_asset_id, to_asset_id, exchange_kind,
			to_quantity, allocated_cost, cash_amount, amount_per_unit)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id`,
		e.AssetID, e.EventDate.ToTime(), e.ExDate.ToTime(), e.Source, e.Kind,
		e.QuantityAdjustment.String(), fromAsset, toAsset, e.ExchangeKind,
		e.ToQuantity.String(), allocatedCost, e.CashAmount.String(), e.AmountPerUnit.String(),
	).Scan(&e.ID)
	if err != nil {
		return domain.CorporateEvent{}, false, fmt.Errorf("store: insert corporate event: %w", err)
	}

	if err := invalidateSnapshotsFrom(ctx, tx, e.ExDate); err != nil {
		return domain.CorporateEvent{}, false, err
	}
	if err := advanceCursorTx(ctx, tx, e.Source, "corporate_event", e.ExDate); err != nil {
		return domain.CorporateEvent{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.CorporateEvent{}, false, fmt.Errorf("store: commit append event: %w", err)
	}
	return e, false, nil
}

// AppendIncomeEvent inserts a dividend/JCP/amortization distribution.
func (c *Conn) AppendIncomeEvent(ctx context.Context, ev domain.IncomeEvent, source string) (domain.IncomeEvent, error) {
	tx, err := c.DB.Begin(ctx)
	if err != nil {
		return domain.IncomeEvent{}, fmt.Errorf("store: begin append income event: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var exDate interface{}
	if ev.ExDate != nil {
		exDate = ev.ExDate.ToTime()
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO income_events(asset_id, event_date, ex_date, kind, amount_per_quota,
			total_amount, withholding_tax, is_quota_pre_2026)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id`,
		ev.AssetID, ev.EventDate.ToTime(), exDate, ev.Kind, ev.AmountPerQuota.String(),
		ev.TotalAmount.String(), ev.WithholdingTax.String(), ev.IsQuotaPre2026,
	).Scan(&ev.ID)
	if err != nil {
		return domain.IncomeEvent{}, fmt.Errorf("store: insert income event: %w", err)
	}
	if err := invalidateSnapshotsFrom(ctx, tx, ev.EventDate); err != nil {
		return domain.IncomeEvent{}, err
	}
	if err := advanceCursorTx(ctx, tx, source, "income_event", ev.EventDate); err != nil {
		return domain.IncomeEvent{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.IncomeEvent{}, fmt.Errorf("store: commit append income event: %w", err)
	}
	return ev, nil
}

// AppendCashFlow records an external contribution or withdrawal (spec §3.2).
func (c *Conn) AppendCashFlow(ctx context.Context, cf domain.CashFlow) (domain.CashFlow, error) {
	var assetID, txID interface{}
	if cf.AssetID != nil {
		assetID = *cf.AssetID
	}
	if cf.TransactionID != nil {
		txID = *cf.TransactionID
	}
	err := c.DB.QueryRow(ctx, `
		INSERT INTO cash_flows(flow_date, kind, amount, asset_id, transaction_id)
		VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		cf.FlowDate.ToTime(), cf.Kind, cf.Amount.String(), assetID, txID,
	).Scan(&cf.ID)
	if err != nil {
		return domain.CashFlow{}, fmt.Errorf("store: insert cash flow: %w", err)
	}
	return cf, nil
}
