package overlay

import (
	"testing"

	"b3ledger/calendar"
	"b3ledger/decimal"
	"b3ledger/domain"
)

func TestReverseSplitIdempotence(t *testing.T) {
	// spec §8.2 scenario 2.
	txs := []domain.Transaction{
		{ID: 1, AssetID: 1, Side: domain.SideBuy, TradeDate: calendar.MustParse("2020-01-15"),
			Quantity: decimal.NewFromInt(1000), PricePerUnit: decimal.MustFromString("50.00"),
			TotalCost: decimal.MustFromString("50000.00"), Fees: decimal.Zero},
	}
	events := []domain.CorporateEvent{
		{ID: 1, AssetID: 1, Kind: domain.EventSplit, ExDate: calendar.MustParse("2022-11-22"),
			QuantityAdjustment: decimal.MustFromString("-900")},
	}

	result, err := Apply(1, "TEST3", txs, events, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !result.End.Quantity.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("qty = %s, want 100", result.End.Quantity)
	}
	if !result.End.AdjustedCost.Equal(decimal.MustFromString("50000.00")) {
		t.Fatalf("total cost = %s, want 50000.00", result.End.AdjustedCost)
	}
	if !result.End.AvgPrice.Equal(decimal.MustFromString("500.00")) {
		t.Fatalf("avg = %s, want 500.00", result.End.AvgPrice)
	}

	// Re-running on the same inputs must yield bit-identical output (spec §3.3
	// invariant 3, §8.1 "Idempotence of overlay").
	again, err := Apply(1, "TEST3", txs, events, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !again.End.Quantity.Equal(result.End.Quantity) || !again.End.AdjustedCost.Equal(result.End.AdjustedCost) {
		t.Fatal("re-applying the overlay produced a different end state")
	}
}

func TestInsufficientHistoryOnOversell(t *testing.T) {
	txs := []domain.Transaction{
		{ID: 1, AssetID: 1, Side: domain.SideBuy, TradeDate: calendar.MustParse("2024-01-01"),
			Quantity: decimal.NewFromInt(10), PricePerUnit: decimal.MustFromString("10.00"),
			TotalCost: decimal.MustFromString("100.00"), Fees: decimal.Zero},
		{ID: 2, AssetID: 1, Side: domain.SideSell, TradeDate: calendar.MustParse("2024-02-01"),
			Quantity: decimal.NewFromInt(50), PricePerUnit: decimal.MustFromString("12.00"),
			TotalCost: decimal.MustFromString("600.00"), Fees: decimal.Zero},
	}
	_, err := Apply(1, "TEST3", txs, nil, 10)
	if err == nil {
		t.Fatal("expected insufficient history error")
	}
}

func TestSpinoffBasisAllocation(t *testing.T) {
	// spec §8.2 scenario 6.
	fromTxs := []domain.Transaction{
		{ID: 1, AssetID: 1, Side: domain.SideBuy, TradeDate: calendar.MustParse("2020-01-01"),
			Quantity: decimal.NewFromInt(100), PricePerUnit: decimal.MustFromString("50.00"),
			TotalCost: decimal.MustFromString("5000.00"), Fees: decimal.Zero},
	}
	spinoff := domain.CorporateEvent{
		ID: 1, AssetID: 1, FromAssetID: 1, ToAssetID: 2,
		Kind: domain.EventExchange, ExchangeKind: domain.ExchangeSpinoff,
		ExDate: calendar.MustParse("2021-03-01"),
		ToQuantity: decimal.NewFromInt(100),
		AllocatedCost: ptr(decimal.MustFromString("1000.00")),
	}
	fromResult, err := Apply(1, "FROM3", fromTxs, []domain.CorporateEvent{spinoff}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !fromResult.End.Quantity.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("from qty = %s, want 100", fromResult.End.Quantity)
	}
	if !fromResult.End.AdjustedCost.Equal(decimal.MustFromString("4000.00")) {
		t.Fatalf("from cost = %s, want 4000.00", fromResult.End.AdjustedCost)
	}

	buy, err := SpinoffSyntheticBuy(spinoff, 2)
	if err != nil {
		t.Fatal(err)
	}
	toResult, err := Apply(2, "TO3", []domain.Transaction{buy}, nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !toResult.End.AvgPrice.Equal(decimal.MustFromString("10.00")) {
		t.Fatalf("to avg = %s, want 10.00", toResult.End.AvgPrice)
	}
}

func ptr(a decimal.Amount) *decimal.Amount { return &a }
