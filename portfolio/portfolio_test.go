package portfolio

import (
	"context"
	"testing"

	"b3ledger/calendar"
	"b3ledger/decimal"
	"b3ledger/domain"
)

type fakePriceSource struct{ price decimal.Amount }

func (f fakePriceSource) Fetch(ctx context.Context, ticker string, date *calendar.Date) (*decimal.Amount, error) {
	p := f.price
	return &p, nil
}

func TestEvaluateOrdersByKindThenTicker(t *testing.T) {
	inputs := []AssetInput{
		{Asset: domain.Asset{ID: 1, Ticker: "VALE3", Kind: domain.KindStock}, Txs: []domain.Transaction{
			{AssetID: 1, Side: domain.SideBuy, TradeDate: calendar.MustParse("2024-01-01"),
				Quantity: decimal.NewFromInt(10), PricePerUnit: decimal.MustFromString("60.00"),
				TotalCost: decimal.MustFromString("600.00"), Fees: decimal.Zero},
		}},
		{Asset: domain.Asset{ID: 2, Ticker: "MXRF11", Kind: domain.KindFII}, Txs: []domain.Transaction{
			{AssetID: 2, Side: domain.SideBuy, TradeDate: calendar.MustParse("2024-01-01"),
				Quantity: decimal.NewFromInt(100), PricePerUnit: decimal.MustFromString("10.00"),
				TotalCost: decimal.MustFromString("1000.00"), Fees: decimal.Zero},
		}},
		{Asset: domain.Asset{ID: 3, Ticker: "PETR4", Kind: domain.KindStock}, Txs: []domain.Transaction{
			{AssetID: 3, Side: domain.SideBuy, TradeDate: calendar.MustParse("2024-01-01"),
				Quantity: decimal.NewFromInt(5), PricePerUnit: decimal.MustFromString("30.00"),
				TotalCost: decimal.MustFromString("150.00"), Fees: decimal.Zero},
		}},
	}

	report, err := Evaluate(context.Background(), calendar.MustParse("2024-06-01"), inputs, 10, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Positions) != 3 {
		t.Fatalf("expected 3 positions, got %d", len(report.Positions))
	}
	// FII < STOCK lexically, so MXRF11 first; within STOCK, PETR4 < VALE3.
	want := []string{"MXRF11", "PETR4", "VALE3"}
	for i, w := range want {
		if report.Positions[i].Ticker != w {
			t.Fatalf("position %d = %s, want %s", i, report.Positions[i].Ticker, w)
		}
	}
	for _, row := range report.Positions {
		if row.MarketPrice != nil {
			t.Fatal("expected absent market columns when price fetch is disabled")
		}
	}
}

func TestEvaluateJoinsMarketPrice(t *testing.T) {
	inputs := []AssetInput{
		{Asset: domain.Asset{ID: 1, Ticker: "VALE3", Kind: domain.KindStock}, Txs: []domain.Transaction{
			{AssetID: 1, Side: domain.SideBuy, TradeDate: calendar.MustParse("2024-01-01"),
				Quantity: decimal.NewFromInt(10), PricePerUnit: decimal.MustFromString("60.00"),
				TotalCost: decimal.MustFromString("600.00"), Fees: decimal.Zero},
		}},
	}
	report, err := Evaluate(context.Background(), calendar.MustParse("2024-06-01"), inputs, 10,
		fakePriceSource{price: decimal.MustFromString("70.00")}, false)
	if err != nil {
		t.Fatal(err)
	}
	row := report.Positions[0]
	if row.MarketValue == nil || !row.MarketValue.Equal(decimal.MustFromString("700.00")) {
		t.Fatalf("market value = %v, want 700.00", row.MarketValue)
	}
	if row.UnrealizedPL == nil || !row.UnrealizedPL.Equal(decimal.MustFromString("100.00")) {
		t.Fatalf("unrealized pl = %v, want 100.00", row.UnrealizedPL)
	}
}
