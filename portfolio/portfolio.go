// Package portfolio evaluates as-of positions by composing the overlay
// engine and cost-basis calculator, then optionally joining market prices
// (spec §4.G).
package portfolio

import (
	"context"
	"sort"

	"b3ledger/calendar"
	"b3ledger/costbasis"
	"b3ledger/decimal"
	"b3ledger/domain"
	"b3ledger/overlay"
)

// PriceSource is the injected port for market price lookups (spec §6.3).
// fetch(ticker, date?) -> Option<Amount>; a nil *decimal.Amount return means
// absent, not zero.
type PriceSource interface {
	Fetch(ctx context.Context, ticker string, date *calendar.Date) (*decimal.Amount, error)
}

// PositionRow is one line of a PortfolioReport (spec §4.G).
type PositionRow struct {
	AssetID      int64
	Ticker       string
	Kind         domain.AssetKind
	Quantity     decimal.Amount
	AverageCost  decimal.Amount
	TotalCost    decimal.Amount
	MarketPrice  *decimal.Amount
	MarketValue  *decimal.Amount
	UnrealizedPL *decimal.Amount
	ReturnPct    *decimal.Amount
}

// Summary totals the report's positions.
type Summary struct {
	TotalCost        decimal.Amount
	TotalMarketValue *decimal.Amount
}

// Report is the evaluator's pure output value (spec §6.4 "Reports are pure
// values").
type Report struct {
	AsOf      calendar.Date
	Positions []PositionRow
	Summary   Summary
}

// AssetInput bundles one asset's ledger and the overlay/adjustment inputs
// the evaluator needs, so the package stays store-agnostic: callers (the
// engine) assemble this from the store and an optional AssetKind filter.
type AssetInput struct {
	Asset  domain.Asset
	Txs    []domain.Transaction
	Events []domain.CorporateEvent
}

// Evaluate produces a PortfolioReport as of d from inputs already filtered to
// trade_date/ex_date ≤ d (spec §4.G). If priceSource is nil or
// disablePriceFetch is true, market columns are left absent.
func Evaluate(ctx context.Context, d calendar.Date, inputs []AssetInput, divisionScale int32, priceSource PriceSource, disablePriceFetch bool) (*Report, error) {
	var rows []PositionRow
	totalCost := decimal.Zero
	haveAnyMarketValue := false
	totalMarketValue := decimal.Zero

	for _, in := range inputs {
		result, err := overlay.Apply(in.Asset.ID, in.Asset.Ticker, in.Txs, in.Events, divisionScale)
		if err != nil {
			return nil, err
		}
		_, pos, err := costbasis.Run(in.Asset.ID, result.Adjusted, divisionScale)
		if err != nil {
			return nil, err
		}
		if pos.Quantity.IsZero() {
			continue
		}

		row := PositionRow{
			AssetID: in.Asset.ID, Ticker: in.Asset.Ticker, Kind: in.Asset.Kind,
			Quantity: pos.Quantity, AverageCost: pos.AverageCost, TotalCost: pos.TotalCost,
		}
		totalCost = totalCost.Add(pos.TotalCost)

		if priceSource != nil && !disablePriceFetch {
			price, err := priceSource.Fetch(ctx, in.Asset.Ticker, &d)
			if err == nil && price != nil {
				marketValue := price.Mul(pos.Quantity)
				unrealized := marketValue.Sub(pos.TotalCost)
				row.MarketPrice = price
				row.MarketValue = &marketValue
				row.UnrealizedPL = &unrealized
				if !pos.TotalCost.IsZero() {
					pct, _ := unrealized.Div(pos.TotalCost, divisionScale)
					row.ReturnPct = &pct
				}
				totalMarketValue = totalMarketValue.Add(marketValue)
				haveAnyMarketValue = true
			}
		}
		rows = append(rows, row)
	}

	// Ordering: by asset kind, then ticker ascending (spec §4.G).
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Kind != rows[j].Kind {
			return rows[i].Kind < rows[j].Kind
		}
		return rows[i].Ticker < rows[j].Ticker
	})

	summary := Summary{TotalCost: totalCost}
	if haveAnyMarketValue {
		summary.TotalMarketValue = &totalMarketValue
	}
	return &Report{AsOf: d, Positions: rows, Summary: summary}, nil
}
