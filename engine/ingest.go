package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"b3ledger/calendar"
	"b3ledger/costbasis"
	"b3ledger/decimal"
	"b3ledger/domain"
)

// TransactionInput is one raw transaction as an importer produces it, keyed
// by ticker rather than asset id since the importer boundary never sees
// internal ids (spec §6.2 "RawEvent").
type TransactionInput struct {
	Ticker            string          `json:"ticker"`
	Side              domain.Side     `json:"side"`
	TradeDate         calendar.Date   `json:"trade_date"`
	Quantity          decimal.Amount  `json:"quantity"`
	PricePerUnit      decimal.Amount  `json:"price_per_unit"`
	TotalCost         decimal.Amount  `json:"total_cost"`
	Fees              decimal.Amount  `json:"fees"`
	QuotaIssuanceDate *calendar.Date  `json:"quota_issuance_date,omitempty"`
	// Force bypasses the (asset, trade_date, side, quantity) duplicate check,
	// for the rare case of two genuinely distinct same-day same-quantity fills
	// an importer can't otherwise disambiguate. The override is recorded as a
	// FORCED_DUPLICATE inconsistency rather than applied silently.
	Force bool `json:"force,omitempty"`
}

// CorporateEventInput mirrors domain.CorporateEvent with tickers in place of
// asset ids.
type CorporateEventInput struct {
	Ticker             string                    `json:"ticker"`
	EventDate          calendar.Date             `json:"event_date"`
	ExDate             calendar.Date             `json:"ex_date"`
	Kind               domain.CorporateEventKind `json:"kind"`
	QuantityAdjustment decimal.Amount            `json:"quantity_adjustment"`
	FromTicker         string                    `json:"from_ticker,omitempty"`
	ToTicker           string                    `json:"to_ticker,omitempty"`
	ExchangeKind       domain.ExchangeKind       `json:"exchange_kind,omitempty"`
	ToQuantity         decimal.Amount            `json:"to_quantity"`
	AllocatedCost      *decimal.Amount           `json:"allocated_cost,omitempty"`
	CashAmount         decimal.Amount            `json:"cash_amount"`
	AmountPerUnit      decimal.Amount            `json:"amount_per_unit"`
}

// IncomeEventInput mirrors domain.IncomeEvent with a ticker in place of an asset id.
type IncomeEventInput struct {
	Ticker         string              `json:"ticker"`
	EventDate      calendar.Date       `json:"event_date"`
	ExDate         *calendar.Date      `json:"ex_date,omitempty"`
	Kind           domain.IncomeEventKind `json:"kind"`
	AmountPerQuota decimal.Amount      `json:"amount_per_quota"`
	TotalAmount    decimal.Amount      `json:"total_amount"`
	WithholdingTax decimal.Amount      `json:"withholding_tax"`
	IsQuotaPre2026 bool                `json:"is_quota_pre_2026"`
}

// Batch is one importer's RawEvent payload, annotated with its source
// (spec §6.2).
type Batch struct {
	Source          string                `json:"source"`
	Transactions    []TransactionInput    `json:"transactions,omitempty"`
	CorporateEvents []CorporateEventInput `json:"corporate_events,omitempty"`
	IncomeEvents    []IncomeEventInput    `json:"income_events,omitempty"`
}

// IngestReport is the pure outcome of one Ingest call (spec §6.2, §6.4
// "reports are pure values").
type IngestReport struct {
	DryRun          bool
	AppendedTx      int
	DuplicateTx     int
	AppendedEvents  int
	DuplicateEvents int
	AppendedIncome  int
	Inconsistencies []domain.Inconsistency
	EarliestDate    *calendar.Date
}

// Ingest implements spec §6.2's pipeline: canonicalize, resolve tickers via
// the registry, append non-duplicates in a single store transaction per
// event, advance the import cursor, and invalidate snapshots — all performed
// by the per-append store methods themselves. In dry_run, no store mutation
// occurs; duplicates are still detected against current ledger state so the
// report accurately previews what a live run would do.
func (c *Context) Ingest(ctx context.Context, batch Batch, dryRun bool) (IngestReport, error) {
	runID := uuid.New().String()
	if c.Logger != nil {
		c.Logger.Info("ingest started", zap.String("run_id", runID), zap.String("source", batch.Source),
			zap.Int("transactions", len(batch.Transactions)), zap.Int("corporate_events", len(batch.CorporateEvents)),
			zap.Int("income_events", len(batch.IncomeEvents)), zap.Bool("dry_run", dryRun))
	}

	report := IngestReport{DryRun: dryRun}
	track := func(d calendar.Date) {
		if report.EarliestDate == nil || d.Before(*report.EarliestDate) {
			dd := d
			report.EarliestDate = &dd
		}
	}

	if err := c.ingestTransactions(ctx, batch, dryRun, &report, track); err != nil {
		return IngestReport{}, err
	}

	for _, in := range batch.CorporateEvents {
		asset, err := c.resolveOrCreateAsset(ctx, canonicalTicker(in.Ticker))
		if err != nil {
			return IngestReport{}, err
		}
		e := domain.CorporateEvent{
			AssetID: asset.ID, EventDate: in.EventDate, ExDate: in.ExDate, Source: batch.Source,
			Kind: in.Kind, QuantityAdjustment: in.QuantityAdjustment, ExchangeKind: in.ExchangeKind,
			ToQuantity: in.ToQuantity, AllocatedCost: in.AllocatedCost, CashAmount: in.CashAmount,
			AmountPerUnit: in.AmountPerUnit,
		}
		if in.FromTicker != "" {
			from, err := c.resolveOrCreateAsset(ctx, canonicalTicker(in.FromTicker))
			if err != nil {
				return IngestReport{}, err
			}
			e.FromAssetID = from.ID
		}
		if in.ToTicker != "" {
			to, err := c.resolveOrCreateAsset(ctx, canonicalTicker(in.ToTicker))
			if err != nil {
				return IngestReport{}, err
			}
			e.ToAssetID = to.ID
		}
		if needsAllocatedCost(in.Kind) && in.AllocatedCost == nil {
			inc, err := c.Store.AppendInconsistency(ctx, domain.Inconsistency{
				Kind: "MISSING_ALLOCATED_COST", Severity: domain.SeverityBlocking,
				AssetID: &asset.ID, MissingFields: []string{"allocated_cost"},
				Context: "corporate event " + string(in.Kind) + " for " + in.Ticker,
			})
			if err != nil {
				return IngestReport{}, err
			}
			report.Inconsistencies = append(report.Inconsistencies, inc)
			continue
		}
		if dryRun {
			report.AppendedEvents++
			track(in.ExDate)
			continue
		}
		_, wasDup, err := c.Store.AppendCorporateEvent(ctx, e)
		if err != nil {
			return IngestReport{}, err
		}
		if wasDup {
			report.DuplicateEvents++
			continue
		}
		report.AppendedEvents++
		track(in.ExDate)
	}

	for _, in := range batch.IncomeEvents {
		asset, err := c.resolveOrCreateAsset(ctx, canonicalTicker(in.Ticker))
		if err != nil {
			return IngestReport{}, err
		}
		ev := domain.IncomeEvent{
			AssetID: asset.ID, EventDate: in.EventDate, ExDate: in.ExDate, Kind: in.Kind,
			AmountPerQuota: in.AmountPerQuota, TotalAmount: in.TotalAmount,
			WithholdingTax: in.WithholdingTax, IsQuotaPre2026: in.IsQuotaPre2026,
		}
		if dryRun {
			report.AppendedIncome++
			track(in.EventDate)
			continue
		}
		if _, err := c.Store.AppendIncomeEvent(ctx, ev, batch.Source); err != nil {
			return IngestReport{}, err
		}
		report.AppendedIncome++
		track(in.EventDate)
	}

	if !dryRun && report.EarliestDate != nil {
		if err := c.Store.InvalidateSnapshotsFrom(ctx, *report.EarliestDate); err != nil {
			return IngestReport{}, err
		}
	}
	if c.Logger != nil {
		c.Logger.Info("ingest finished", zap.String("run_id", runID),
			zap.Int("appended_tx", report.AppendedTx), zap.Int("duplicate_tx", report.DuplicateTx),
			zap.Int("inconsistencies", len(report.Inconsistencies)))
	}
	return report, nil
}

// dayTradeGroupKey identifies one (asset, trade_date) day-trade matching
// group; a row in one group never influences another group's is_day_trade
// flag.
type dayTradeGroupKey struct {
	assetID int64
	date    calendar.Date
}

// ingestTransactions appends batch.Transactions, deriving is_day_trade by
// running costbasis.MatchDayTrade once per (asset, trade_date) group before
// any row in that group is appended (spec §3.2, §4.E "Day-trade detection").
// Each group is reconciled against whatever same-day rows the ledger already
// holds for that asset, not just the rows in this batch, so a same-day SELL
// arriving in a later import still matches against an earlier BUY. Force
// rows skip matching entirely: the operator is asserting a manual correction
// for an already-flagged duplicate, not feeding fresh same-day history.
func (c *Context) ingestTransactions(ctx context.Context, batch Batch, dryRun bool, report *IngestReport, track func(calendar.Date)) error {
	type pending struct {
		ticker string
		date   calendar.Date
		tx     domain.Transaction
	}

	var forced []pending
	groups := map[dayTradeGroupKey][]pending{}
	var groupOrder []dayTradeGroupKey

	for _, in := range batch.Transactions {
		ticker := canonicalTicker(in.Ticker)
		asset, err := c.resolveOrCreateAsset(ctx, ticker)
		if err != nil {
			return err
		}
		t := domain.Transaction{
			AssetID: asset.ID, Side: in.Side, TradeDate: in.TradeDate,
			Quantity: in.Quantity, PricePerUnit: in.PricePerUnit, TotalCost: in.TotalCost,
			Fees: in.Fees, QuotaIssuanceDate: in.QuotaIssuanceDate, Source: batch.Source,
		}
		p := pending{ticker: ticker, date: in.TradeDate, tx: t}
		if in.Force {
			forced = append(forced, p)
			continue
		}
		key := dayTradeGroupKey{assetID: asset.ID, date: in.TradeDate}
		if _, ok := groups[key]; !ok {
			groupOrder = append(groupOrder, key)
		}
		groups[key] = append(groups[key], p)
	}

	for _, p := range forced {
		if dryRun {
			report.AppendedTx++
			track(p.date)
			continue
		}
		if _, err := c.Store.ForceAppendTransaction(ctx, p.tx); err != nil {
			return err
		}
		inc, err := c.Store.AppendInconsistency(ctx, domain.Inconsistency{
			Kind: "FORCED_DUPLICATE", Severity: domain.SeverityWarn,
			AssetID: &p.tx.AssetID, Context: "forced append for " + p.ticker + " on " + p.date.String(),
		})
		if err != nil {
			return err
		}
		report.Inconsistencies = append(report.Inconsistencies, inc)
		report.AppendedTx++
		track(p.date)
	}

	for _, key := range groupOrder {
		group := groups[key]
		existing, err := c.Store.ListTransactions(ctx, key.assetID)
		if err != nil {
			return err
		}
		combined := make([]domain.Transaction, 0, len(group))
		for _, e := range existing {
			if e.TradeDate.Equal(key.date) {
				combined = append(combined, e)
			}
		}
		for _, p := range group {
			combined = append(combined, p.tx)
		}

		// Rows already in the ledger carry a nonzero ID; MatchDayTrade copies
		// structs by value and a split preserves the source's ID, so filtering
		// the matched output on ID == 0 isolates exactly the new rows (and any
		// DAY/SWING fragments derived from them) without re-appending history.
		for _, m := range costbasis.MatchDayTrade(combined) {
			if m.ID != 0 {
				continue
			}
			if dryRun {
				report.AppendedTx++
				track(key.date)
				continue
			}
			_, wasDup, err := c.Store.AppendTransaction(ctx, m)
			if err != nil {
				return err
			}
			if wasDup {
				report.DuplicateTx++
				continue
			}
			report.AppendedTx++
			track(key.date)
		}
	}

	return nil
}

// resolveOrCreateAsset runs the ticker through the registry (when one is
// configured) before creating the asset row, so a brand-new symbol is
// classified as soon as it is first seen rather than staying UNKNOWN.
func (c *Context) resolveOrCreateAsset(ctx context.Context, ticker string) (domain.Asset, error) {
	asset, err := c.Store.GetOrCreateAsset(ctx, ticker)
	if err != nil {
		return domain.Asset{}, err
	}
	if asset.Kind != domain.KindUnknown || c.Registry == nil {
		return asset, nil
	}
	res, err := c.Registry.Resolve(ctx, ticker)
	if err != nil || res.Kind == domain.KindUnknown {
		return asset, nil
	}
	if err := c.Store.SetAssetKind(ctx, ticker, res.Kind, res.Name); err != nil {
		return domain.Asset{}, err
	}
	asset.Kind, asset.Name = res.Kind, res.Name
	return asset, nil
}

func canonicalTicker(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

func needsAllocatedCost(kind domain.CorporateEventKind) bool {
	return kind == domain.EventExchange
}
