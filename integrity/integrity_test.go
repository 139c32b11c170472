package integrity

import (
	"testing"

	"b3ledger/decimal"
	"b3ledger/domain"
)

func TestCheckPassesOnReconciledLedger(t *testing.T) {
	positions := []PositionState{{AssetID: 1, Quantity: decimal.NewFromInt(10), AdjustedCost: decimal.MustFromString("600.00")}}
	totals := LedgerTotals{
		BuysAndSyntheticAdditions: decimal.MustFromString("1000.00"),
		SellCostBasis:             decimal.MustFromString("400.00"),
	}
	report := Check(positions, totals, map[int64]decimal.Amount{1: decimal.NewFromInt(5)},
		decimal.MustFromString("500.00"), decimal.MustFromString("500.00"), nil)
	if !report.OK() {
		t.Fatalf("expected no violations, got %+v", report.Violations)
	}
}

func TestCheckFlagsCostBasisMismatch(t *testing.T) {
	positions := []PositionState{{AssetID: 1, Quantity: decimal.NewFromInt(10), AdjustedCost: decimal.MustFromString("999.00")}}
	totals := LedgerTotals{BuysAndSyntheticAdditions: decimal.MustFromString("1000.00"), SellCostBasis: decimal.MustFromString("400.00")}
	report := Check(positions, totals, nil, decimal.Zero, decimal.Zero, nil)
	if report.OK() {
		t.Fatal("expected a cost_basis_identity violation")
	}
	found := false
	for _, v := range report.Violations {
		if v.Invariant == "cost_basis_identity" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected cost_basis_identity among violations, got %+v", report.Violations)
	}
}

func TestCheckFlagsNegativeQuantityHistoryPoint(t *testing.T) {
	report := Check(nil, LedgerTotals{}, map[int64]decimal.Amount{7: decimal.MustFromString("-1")},
		decimal.Zero, decimal.Zero, nil)
	if report.OK() {
		t.Fatal("expected a non_negative_quantity violation")
	}
}

func TestCheckFlagsNegativeLossCarryforward(t *testing.T) {
	report := Check(nil, LedgerTotals{}, nil, decimal.Zero, decimal.Zero, []domain.LossCarryforward{
		{Year: 2024, Month: 3, Category: "STOCK_SWING", RemainingAmount: decimal.MustFromString("-10.00")},
	})
	if report.OK() {
		t.Fatal("expected a loss_carryforward_nonnegative violation")
	}
}

func TestCheckFlagsTaxReconciliationMismatch(t *testing.T) {
	report := Check(nil, LedgerTotals{}, nil, decimal.MustFromString("100.00"), decimal.MustFromString("90.00"), nil)
	if report.OK() {
		t.Fatal("expected a tax_event_reconciliation violation")
	}
}
