package store

import (
	"context"
	"fmt"

	"b3ledger/calendar"
	"b3ledger/domain"
)

// ListTransactions returns every transaction for assetID ordered
// (trade_date ASC, id ASC) — the ordering spec §3.3 invariant 4 requires of
// every downstream computation.
func (c *Conn) ListTransactions(ctx context.Context, assetID int64) ([]domain.Transaction, error) {
	rows, err := c.DB.Query(ctx, `
		SELECT id, asset_id, side, trade_date, settlement_date, quantity, price_per_unit,
			total_cost, fees, is_day_trade, quota_issuance_date, source
		FROM transactions WHERE asset_id = $1 ORDER BY trade_date ASC, id ASC`, assetID)
	if err != nil {
		return nil, fmt.Errorf("store: list transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var settlement, quotaIssuance *calendar.Date
		if err := rows.Scan(&t.ID, &t.AssetID, &t.Side, &t.TradeDate, &settlement,
			&t.Quantity, &t.PricePerUnit, &t.TotalCost, &t.Fees, &t.IsDayTrade,
			&quotaIssuance, &t.Source); err != nil {
			return nil, fmt.Errorf("store: scan transaction: %w", err)
		}
		t.SettlementDate = settlement
		t.QuotaIssuanceDate = quotaIssuance
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListCorporateEvents returns every corporate event for assetID ordered by
// (ex_date ASC, id ASC), the tie-break the overlay merge-walk requires
// (spec §4.D "Ordering").
func (c *Conn) ListCorporateEvents(ctx context.Context, assetID int64) ([]domain.CorporateEvent, error) {
	rows, err := c.DB.Query(ctx, `
		SELECT id, asset_id, event_date, ex_date, source, kind, quantity_adjustment,
			COALESCE(from_asset_id, 0), COALESCE(to_asset_id, 0), exchange_kind,
			to_quantity, allocated_cost, cash_amount, amount_per_unit
		FROM corporate_events WHERE asset_id = $1 OR to_asset_id = $1
		ORDER BY ex_date ASC, id ASC`, assetID)
	if err != nil {
		return nil, fmt.Errorf("store: list corporate events: %w", err)
	}
	defer rows.Close()

	var out []domain.CorporateEvent
	for rows.Next() {
		var e domain.CorporateEvent
		var allocatedCost *string
		if err := rows.Scan(&e.ID, &e.AssetID, &e.EventDate, &e.ExDate, &e.Source, &e.Kind,
			&e.QuantityAdjustment, &e.FromAssetID, &e.ToAssetID, &e.ExchangeKind,
			&e.ToQuantity, &allocatedCost, &e.CashAmount, &e.AmountPerUnit); err != nil {
			return nil, fmt.Errorf("store: scan corporate event: %w", err)
		}
		e.AllocatedCost = optionalAmount(allocatedCost)
		out = append(out, e)
	}
	return out, rows.Err()
}

// FindRenameAncestors walks the RENAME chain backwards from assetID, returning
// the ancestor asset ids whose pre-rename history logically belongs to
// assetID's stream (spec §4.D "Symbol reassignment", §9 "Cyclic symbol graphs").
func (c *Conn) FindRenameAncestors(ctx context.Context, assetID int64) ([]int64, error) {
	rows, err := c.DB.Query(ctx, `
		SELECT from_asset_id FROM corporate_events
		WHERE kind = 'RENAME' AND to_asset_id = $1`, assetID)
	if err != nil {
		return nil, fmt.Errorf("store: find rename ancestors: %w", err)
	}
	defer rows.Close()

	visited := map[int64]bool{assetID: true}
	var out []int64
	var queue []int64
	for rows.Next() {
		var from int64
		if err := rows.Scan(&from); err != nil {
			return nil, err
		}
		queue = append(queue, from)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue // cycle guard; insertion-time rejection is the primary defense
		}
		visited[id] = true
		out = append(out, id)

		more, err := c.DB.Query(ctx, `
			SELECT from_asset_id FROM corporate_events
			WHERE kind = 'RENAME' AND to_asset_id = $1`, id)
		if err != nil {
			return nil, fmt.Errorf("store: walk rename ancestor %d: %w", id, err)
		}
		for more.Next() {
			var from int64
			if err := more.Scan(&from); err != nil {
				more.Close()
				return nil, err
			}
			queue = append(queue, from)
		}
		more.Close()
	}
	return out, nil
}

// ListIncomeEvents returns every distribution recorded against assetID.
func (c *Conn) ListIncomeEvents(ctx context.Context, assetID int64) ([]domain.IncomeEvent, error) {
	rows, err := c.DB.Query(ctx, `
		SELECT id, asset_id, event_date, ex_date, kind, amount_per_quota, total_amount,
			withholding_tax, is_quota_pre_2026
		FROM income_events WHERE asset_id = $1 ORDER BY event_date ASC, id ASC`, assetID)
	if err != nil {
		return nil, fmt.Errorf("store: list income events: %w", err)
	}
	defer rows.Close()

	var out []domain.IncomeEvent
	for rows.Next() {
		var ev domain.IncomeEvent
		var exDate *calendar.Date
		if err := rows.Scan(&ev.ID, &ev.AssetID, &ev.EventDate, &exDate, &ev.Kind,
			&ev.AmountPerQuota, &ev.TotalAmount, &ev.WithholdingTax, &ev.IsQuotaPre2026); err != nil {
			return nil, fmt.Errorf("store: scan income event: %w", err)
		}
		ev.ExDate = exDate
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ListCashFlows returns cash flows in [from, to], ordered by flow_date then id
// — the partition points the performance evaluator's TWR calculation walks
// (spec §4.I).
func (c *Conn) ListCashFlows(ctx context.Context, from, to calendar.Date) ([]domain.CashFlow, error) {
	rows, err := c.DB.Query(ctx, `
		SELECT id, flow_date, kind, amount, asset_id, transaction_id
		FROM cash_flows WHERE flow_date BETWEEN $1 AND $2 ORDER BY flow_date ASC, id ASC`,
		from.ToTime(), to.ToTime())
	if err != nil {
		return nil, fmt.Errorf("store: list cash flows: %w", err)
	}
	defer rows.Close()

	var out []domain.CashFlow
	for rows.Next() {
		var cf domain.CashFlow
		var assetID, txID *int64
		if err := rows.Scan(&cf.ID, &cf.FlowDate, &cf.Kind, &cf.Amount, &assetID, &txID); err != nil {
			return nil, fmt.Errorf("store: scan cash flow: %w", err)
		}
		cf.AssetID = assetID
		cf.TransactionID = txID
		out = append(out, cf)
	}
	return out, rows.Err()
}

// ListLossCarryforwards returns every carry-forward row for category ordered
// by (year, month) ascending — the FIFO order loss offset consumes (spec §4.F
// point 4).
func (c *Conn) ListLossCarryforwards(ctx context.Context, category domain.TaxCategory) ([]domain.LossCarryforward, error) {
	rows, err := c.DB.Query(ctx, `
		SELECT year, month, tax_category, loss_amount, remaining_amount
		FROM loss_carryforwards WHERE tax_category = $1 ORDER BY year ASC, month ASC`, category)
	if err != nil {
		return nil, fmt.Errorf("store: list loss carryforwards: %w", err)
	}
	defer rows.Close()

	var out []domain.LossCarryforward
	for rows.Next() {
		var l domain.LossCarryforward
		if err := rows.Scan(&l.Year, &l.Month, &l.Category, &l.LossAmount, &l.RemainingAmount); err != nil {
			return nil, fmt.Errorf("store: scan loss carryforward: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpsertLossCarryforward writes or updates a carry-forward row. Repeated calls
// for the same (year, month, category) replace loss_amount/remaining_amount
// wholesale; partial consumption is expressed by the caller passing the
// already-decremented remaining_amount (spec §4.F point 4).
func (c *Conn) UpsertLossCarryforward(ctx context.Context, l domain.LossCarryforward) error {
	_, err := c.ExecWithRetry(ctx, `
		INSERT INTO loss_carryforwards(year, month, tax_category, loss_amount, remaining_amount)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (year, month, tax_category) DO UPDATE SET
			loss_amount = EXCLUDED.loss_amount, remaining_amount = EXCLUDED.remaining_amount`,
		l.Year, l.Month, l.Category, l.LossAmount.String(), l.RemainingAmount.String())
	if err != nil {
		return fmt.Errorf("store: upsert loss carryforward: %w", err)
	}
	return nil
}
