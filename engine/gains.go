package engine

import (
	"context"

	"b3ledger/costbasis"
	"b3ledger/domain"
	"b3ledger/overlay"
	"b3ledger/tax"
)

// RealizedGainsForCategory folds each ticker's adjusted history through
// costbasis.RunWithVintages and returns only the gains landing in (year,
// month, category), for callers (the demo CLI) that don't already track
// per-asset realized gains themselves. A SELL against a fund position that
// spans both quota vintages comes back as one RealizedGain per vintage
// consumed, each already carrying its own Vintage (spec §8.2 scenario 5).
func (c *Context) RealizedGainsForCategory(ctx context.Context, tickers []string, category domain.TaxCategory, year, month int) ([]costbasis.RealizedGain, error) {
	var matched []costbasis.RealizedGain
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
		result, err := overlay.Apply(asset.ID, asset.Ticker, txs, events, c.Config.DecimalDivisionPrecision)
		if err != nil {
			return nil, err
		}
		gains, _, err := costbasis.RunWithVintages(asset.ID, result.Adjusted, c.Config.DecimalDivisionPrecision, vintageOf(asset.Kind))
		if err != nil {
			return nil, err
		}
		for _, g := range gains {
			if g.SaleDate.Year() != year || int(g.SaleDate.Month()) != month {
				continue
			}
			if tax.Categorize(asset.Kind, g.IsDayTrade, g.Vintage) == category {
				matched = append(matched, g)
			}
		}
	}
	return matched, nil
}

// vintageOf builds the BUY classifier RunWithVintages needs: non-fund kinds
// never split, so every BUY lands in the single VintageNone pool; fund kinds
// defer to tax.Vintage, which already applies spec §4.F's
// quota_issuance_date/settlement_date/trade_date precedence and the 2026
// cutover.
func vintageOf(kind domain.AssetKind) func(domain.Transaction) domain.Vintage {
	if kind != domain.KindFII && kind != domain.KindFIAGRO && kind != domain.KindFIInfra {
		return func(domain.Transaction) domain.Vintage { return domain.VintageNone }
	}
	return tax.Vintage
}
