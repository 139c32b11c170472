// Package integrity cross-validates the invariants spec §4.K names,
// surfacing violations as a Report rather than silently swallowing them.
package integrity

import (
	"fmt"

	"b3ledger/decimal"
	"b3ledger/domain"
)

// Violation describes one failed invariant with enough context to localize
// the offending row.
type Violation struct {
	Invariant string
	AssetID   *int64
	Detail    string
}

// Report is the outcome of a Check run.
type Report struct {
	Violations []Violation
}

// OK reports whether no violation was found.
func (r Report) OK() bool { return len(r.Violations) == 0 }

// PositionState is one asset's current adjusted (quantity, cost) the caller
// has already derived via overlay+costbasis, fed in for cross-checking
// instead of integrity re-deriving it (keeping this package a pure checker).
type PositionState struct {
	AssetID      int64
	Quantity     decimal.Amount
	AdjustedCost decimal.Amount
}

// LedgerTotals aggregates every BUY/SELL/CAPITAL_RETURN/EXCHANGE flow across
// the whole ledger, against which the sum of current adjusted_cost must
// reconcile (spec §4.K point 1).
type LedgerTotals struct {
	BuysAndSyntheticAdditions decimal.Amount
	SellCostBasis             decimal.Amount
	CapitalReturnReductions   decimal.Amount
	ExchangeOutflows          decimal.Amount
}

// Check runs every invariant in spec §4.K against the supplied data. All
// inputs are assumed already computed by the engine (portfolio/tax/costbasis
// outputs); Check performs no I/O of its own.
func Check(positions []PositionState, totals LedgerTotals, minQtyAtAnyPoint map[int64]decimal.Amount,
	taxTotalSales, reconciledGrossSales decimal.Amount, carryforwards []domain.LossCarryforward) Report {

	var violations []Violation

	sumAdjustedCost := decimal.Zero
	for _, p := range positions {
		sumAdjustedCost = sumAdjustedCost.Add(p.AdjustedCost)
	}
	expected := totals.BuysAndSyntheticAdditions.
		Sub(totals.SellCostBasis).
		Sub(totals.CapitalReturnReductions).
		Sub(totals.ExchangeOutflows)
	if !expected.Equal(sumAdjustedCost) {
		violations = append(violations, Violation{
			Invariant: "cost_basis_identity",
			Detail:    fmt.Sprintf("expected total adjusted cost %s, got %s", expected, sumAdjustedCost),
		})
	}

	for assetID, minQty := range minQtyAtAnyPoint {
		if minQty.Sign() < 0 {
			id := assetID
			violations = append(violations, Violation{
				Invariant: "non_negative_quantity", AssetID: &id,
				Detail: fmt.Sprintf("quantity went negative (%s) at some event point", minQty),
			})
		}
	}

	for _, p := range positions {
		if p.Quantity.Sign() < 0 {
			id := p.AssetID
			violations = append(violations, Violation{
				Invariant: "non_negative_quantity", AssetID: &id,
				Detail: fmt.Sprintf("current quantity is negative (%s)", p.Quantity),
			})
		}
	}

	if !taxTotalSales.Equal(reconciledGrossSales) {
		violations = append(violations, Violation{
			Invariant: "tax_event_reconciliation",
			Detail:    fmt.Sprintf("TaxEvent.total_sales %s does not match realized-gain gross_sales %s", taxTotalSales, reconciledGrossSales),
		})
	}

	for _, cf := range carryforwards {
		if cf.RemainingAmount.Sign() < 0 {
			violations = append(violations, Violation{
				Invariant: "loss_carryforward_nonnegative",
				Detail:    fmt.Sprintf("carryforward %d-%02d/%s remaining_amount is negative (%s)", cf.Year, cf.Month, cf.Category, cf.RemainingAmount),
			})
		}
	}

	return Report{Violations: violations}
}
