package engine

import (
	"context"

	"b3ledger/calendar"
	"b3ledger/costbasis"
	"b3ledger/decimal"
	"b3ledger/domain"
	"b3ledger/errs"
	"b3ledger/performance"
	"b3ledger/portfolio"
	"b3ledger/snapshot"
	"b3ledger/tax"
)

// assetHistory loads one asset's transactions, corporate events (including
// ancestor renames), and merges them into the inputs overlay.Apply expects
// (spec §4.D "Symbol reassignment").
func (c *Context) assetHistory(ctx context.Context, asset domain.Asset) ([]domain.Transaction, []domain.CorporateEvent, error) {
	txs, err := c.Store.ListTransactions(ctx, asset.ID)
	if err != nil {
		return nil, nil, err
	}
	events, err := c.Store.ListCorporateEvents(ctx, asset.ID)
	if err != nil {
		return nil, nil, err
	}
	ancestors, err := c.Store.FindRenameAncestors(ctx, asset.ID)
	if err != nil {
		return nil, nil, err
	}
	for _, ancestorID := range ancestors {
		ancestorTxs, err := c.Store.ListTransactions(ctx, ancestorID)
		if err != nil {
			return nil, nil, err
		}
		txs = append(txs, ancestorTxs...)
	}
	return txs, events, nil
}

// Portfolio evaluates the portfolio report as of d for the given tickers,
// then refreshes the snapshot cache with the resulting fingerprints
// (spec §4.G, §4.H).
func (c *Context) Portfolio(ctx context.Context, d calendar.Date, tickers []string) (*portfolio.Report, error) {
	var inputs []portfolio.AssetInput
	fingerprints := map[int64]string{}
	for _, ticker := range tickers {
		asset, ok, err := c.Store.GetAssetByTicker(ctx, ticker)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		txs, events, err := c.assetHistory(ctx, asset)
		if err != nil {
			return nil, err
		}
		income, err := c.Store.ListIncomeEvents(ctx, asset.ID)
		if err != nil {
			return nil, err
		}
		// Only transactions traded and events going ex on or before d count.
		var txsAsOf []domain.Transaction
		for _, t := range txs {
			if !t.TradeDate.After(d) {
				txsAsOf = append(txsAsOf, t)
			}
		}
		var eventsAsOf []domain.CorporateEvent
		for _, e := range events {
			if !e.ExDate.After(d) {
				eventsAsOf = append(eventsAsOf, e)
			}
		}
		txs, events = txsAsOf, eventsAsOf
		fingerprints[asset.ID] = snapshot.Fingerprint(txs, events, income)
		inputs = append(inputs, portfolio.AssetInput{Asset: asset, Txs: txs, Events: events})
	}

	var priceSource portfolio.PriceSource
	if c.Prices != nil {
		priceSource = priceSourceAdapter{c.Prices}
	}
	report, err := portfolio.Evaluate(ctx, d, inputs, c.Config.DecimalDivisionPrecision, priceSource, c.Config.DisablePriceFetch)
	if err != nil {
		return nil, err
	}
	if err := snapshot.Save(ctx, c.Store, report, fingerprints); err != nil {
		return nil, err
	}
	return report, nil
}

// priceSourceAdapter forwards Fetch from a Context's PriceSource to
// portfolio.PriceSource; the two interfaces are structurally identical.
type priceSourceAdapter struct{ inner PriceSource }

func (p priceSourceAdapter) Fetch(ctx context.Context, ticker string, date *calendar.Date) (*decimal.Amount, error) {
	return p.inner.Fetch(ctx, ticker, date)
}

// TaxMonth aggregates one (year, month, category) tax event against the
// ledger's realized gains for that asset class, consuming loss carryforwards
// in store order (spec §4.F).
func (c *Context) TaxMonth(ctx context.Context, year, month int, category domain.TaxCategory, gains []costbasis.RealizedGain, cal calendar.Calendar) (tax.TaxEvent, *tax.DARFPayment, error) {
	carryforwards, err := c.Store.ListLossCarryforwards(ctx, category)
	if err != nil {
		return tax.TaxEvent{}, nil, err
	}
	rate, ok := c.Config.TaxRates[category]
	if !ok {
		return tax.TaxEvent{}, nil, errs.NewConfigurationError("no tax rate configured for category " + string(category))
	}
	event, updated, darf, err := tax.AggregateMonth(year, month, category, gains,
		c.Config.StockSwingExemptionThreshold, rate, carryforwards, cal)
	if err != nil {
		return tax.TaxEvent{}, nil, err
	}
	for _, cf := range updated {
		if err := c.Store.UpsertLossCarryforward(ctx, cf); err != nil {
			return tax.TaxEvent{}, nil, err
		}
	}
	return event, darf, nil
}

// Performance builds the PerformanceReport for period (spec §4.I vocabulary),
// sourcing start/end portfolio values from the snapshot cache.
func (c *Context) Performance(ctx context.Context, period string, asOf calendar.Date, tickers []string) (performance.Report, error) {
	start, end, err := performance.ParsePeriod(period, asOf)
	if err != nil {
		return performance.Report{}, err
	}
	startReport, err := c.Portfolio(ctx, start, tickers)
	if err != nil {
		return performance.Report{}, err
	}
	endReport, err := c.Portfolio(ctx, end, tickers)
	if err != nil {
		return performance.Report{}, err
	}
	flows, err := c.Store.ListCashFlows(ctx, start, end)
	if err != nil {
		return performance.Report{}, err
	}

	startValue := startReport.Summary.TotalCost
	endValue := endReport.Summary.TotalCost
	if startReport.Summary.TotalMarketValue != nil {
		startValue = *startReport.Summary.TotalMarketValue
	}
	if endReport.Summary.TotalMarketValue != nil {
		endValue = *endReport.Summary.TotalMarketValue
	}

	byKind := map[domain.AssetKind]decimal.Amount{}
	for _, row := range endReport.Positions {
		if row.UnrealizedPL != nil {
			byKind[row.Kind] = byKind[row.Kind].Add(*row.UnrealizedPL)
		}
	}
	return performance.Evaluate(start, end, startValue, endValue, flows, decimal.Zero, byKind, c.Config.DecimalDivisionPrecision)
}
