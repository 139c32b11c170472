package engine

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"b3ledger/calendar"
	"b3ledger/config"
	"b3ledger/decimal"
	"b3ledger/domain"
)

// fakeStore is an in-memory Store good enough to exercise Ingest/Portfolio
// without a database.
type fakeStore struct {
	assetsByTicker map[string]domain.Asset
	assetsByID     map[int64]domain.Asset
	nextAssetID    int64

	txs    map[int64][]domain.Transaction
	events map[int64][]domain.CorporateEvent
	income map[int64][]domain.IncomeEvent

	inconsistencies []domain.Inconsistency
	nextIncID       int64

	snapshots       map[string]domain.PositionSnapshot
	invalidatedFrom *calendar.Date

	carryforwards []domain.LossCarryforward
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		assetsByTicker: map[string]domain.Asset{},
		assetsByID:     map[int64]domain.Asset{},
		txs:            map[int64][]domain.Transaction{},
		events:         map[int64][]domain.CorporateEvent{},
		income:         map[int64][]domain.IncomeEvent{},
		snapshots:      map[string]domain.PositionSnapshot{},
	}
}

func (f *fakeStore) GetOrCreateAsset(ctx context.Context, ticker string) (domain.Asset, error) {
	if a, ok := f.assetsByTicker[ticker]; ok {
		return a, nil
	}
	f.nextAssetID++
	a := domain.Asset{ID: f.nextAssetID, Ticker: ticker, Kind: domain.KindUnknown}
	f.assetsByTicker[ticker] = a
	f.assetsByID[a.ID] = a
	return a, nil
}

func (f *fakeStore) GetAsset(ctx context.Context, id int64) (domain.Asset, error) {
	return f.assetsByID[id], nil
}

func (f *fakeStore) GetAssetByTicker(ctx context.Context, ticker string) (domain.Asset, bool, error) {
	a, ok := f.assetsByTicker[ticker]
	return a, ok, nil
}

func (f *fakeStore) SetAssetKind(ctx context.Context, ticker string, kind domain.AssetKind, name string) error {
	a := f.assetsByTicker[ticker]
	a.Kind, a.Name = kind, name
	f.assetsByTicker[ticker] = a
	f.assetsByID[a.ID] = a
	return nil
}

func (f *fakeStore) AppendTransaction(ctx context.Context, t domain.Transaction) (domain.Transaction, bool, error) {
	for _, existing := range f.txs[t.AssetID] {
		if existing.TradeDate.Equal(t.TradeDate) && existing.Side == t.Side && existing.Quantity.Equal(t.Quantity) && existing.Source == t.Source {
			return existing, true, nil
		}
	}
	t.ID = int64(len(f.txs[t.AssetID]) + 1)
	f.txs[t.AssetID] = append(f.txs[t.AssetID], t)
	return t, false, nil
}

func (f *fakeStore) ForceAppendTransaction(ctx context.Context, t domain.Transaction) (domain.Transaction, error) {
	t.ID = int64(len(f.txs[t.AssetID]) + 1)
	f.txs[t.AssetID] = append(f.txs[t.AssetID], t)
	return t, nil
}

func (f *fakeStore) AppendCorporateEvent(ctx context.Context, e domain.CorporateEvent) (domain.CorporateEvent, bool, error) {
	e.ID = int64(len(f.events[e.AssetID]) + 1)
	f.events[e.AssetID] = append(f.events[e.AssetID], e)
	return e, false, nil
}

func (f *fakeStore) AppendIncomeEvent(ctx context.Context, ev domain.IncomeEvent, source string) (domain.IncomeEvent, error) {
	ev.ID = int64(len(f.income[ev.AssetID]) + 1)
	f.income[ev.AssetID] = append(f.income[ev.AssetID], ev)
	return ev, nil
}

func (f *fakeStore) AppendCashFlow(ctx context.Context, cf domain.CashFlow) (domain.CashFlow, error) {
	return cf, nil
}

func (f *fakeStore) AppendInconsistency(ctx context.Context, in domain.Inconsistency) (domain.Inconsistency, error) {
	f.nextIncID++
	in.ID = f.nextIncID
	in.Status = domain.InconsistencyOpen
	f.inconsistencies = append(f.inconsistencies, in)
	return in, nil
}

func (f *fakeStore) ListOpenInconsistencies(ctx context.Context) ([]domain.Inconsistency, error) {
	var open []domain.Inconsistency
	for _, in := range f.inconsistencies {
		if in.Status == domain.InconsistencyOpen {
			open = append(open, in)
		}
	}
	return open, nil
}

func (f *fakeStore) ResolveInconsistency(ctx context.Context, id int64, status domain.InconsistencyStatus, resolution string) error {
	for i, in := range f.inconsistencies {
		if in.ID == id {
			f.inconsistencies[i].Status = status
			f.inconsistencies[i].Resolution = resolution
		}
	}
	return nil
}

func (f *fakeStore) ListTransactions(ctx context.Context, assetID int64) ([]domain.Transaction, error) {
	return f.txs[assetID], nil
}

func (f *fakeStore) ListCorporateEvents(ctx context.Context, assetID int64) ([]domain.CorporateEvent, error) {
	return f.events[assetID], nil
}

func (f *fakeStore) FindRenameAncestors(ctx context.Context, assetID int64) ([]int64, error) {
	return nil, nil
}

func (f *fakeStore) ListIncomeEvents(ctx context.Context, assetID int64) ([]domain.IncomeEvent, error) {
	return f.income[assetID], nil
}

func (f *fakeStore) ListCashFlows(ctx context.Context, from, to calendar.Date) ([]domain.CashFlow, error) {
	return nil, nil
}

func (f *fakeStore) ListLossCarryforwards(ctx context.Context, category domain.TaxCategory) ([]domain.LossCarryforward, error) {
	var matched []domain.LossCarryforward
	for _, cf := range f.carryforwards {
		if cf.Category == category {
			matched = append(matched, cf)
		}
	}
	return matched, nil
}

func (f *fakeStore) UpsertLossCarryforward(ctx context.Context, l domain.LossCarryforward) error {
	for i, cf := range f.carryforwards {
		if cf.Year == l.Year && cf.Month == l.Month && cf.Category == l.Category {
			f.carryforwards[i] = l
			return nil
		}
	}
	f.carryforwards = append(f.carryforwards, l)
	return nil
}

func (f *fakeStore) GetPositionSnapshot(ctx context.Context, d calendar.Date, assetID int64) (domain.PositionSnapshot, bool, error) {
	s, ok := f.snapshots[snapshotKey(d, assetID)]
	return s, ok, nil
}

func (f *fakeStore) ListPositionSnapshots(ctx context.Context, d calendar.Date) ([]domain.PositionSnapshot, error) {
	var out []domain.PositionSnapshot
	for _, s := range f.snapshots {
		if s.SnapshotDate.Equal(d) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertPositionSnapshot(ctx context.Context, s domain.PositionSnapshot) error {
	f.snapshots[snapshotKey(s.SnapshotDate, s.AssetID)] = s
	return nil
}

func (f *fakeStore) InvalidateSnapshotsFrom(ctx context.Context, d calendar.Date) error {
	dd := d
	f.invalidatedFrom = &dd
	return nil
}

func (f *fakeStore) GetLossSnapshot(ctx context.Context, year int, category domain.TaxCategory) (domain.LossSnapshot, bool, error) {
	return domain.LossSnapshot{}, false, nil
}

func (f *fakeStore) UpsertLossSnapshot(ctx context.Context, s domain.LossSnapshot) error {
	return nil
}

func (f *fakeStore) GetImportCursor(ctx context.Context, source, entryType string) (domain.ImportCursor, bool, error) {
	return domain.ImportCursor{}, false, nil
}

func snapshotKey(d calendar.Date, assetID int64) string {
	return d.String() + "#" + strconv.FormatInt(assetID, 10)
}

func testContext(st Store) *Context {
	return &Context{
		Config: config.Config{
			TaxRates:                     map[domain.TaxCategory]decimal.Amount{"STOCK_SWING": decimal.MustFromString("0.15")},
			StockSwingExemptionThreshold: decimal.MustFromString("20000.00"),
			DecimalDivisionPrecision:     10,
			DisablePriceFetch:            true,
		},
		Logger: zap.NewNop(),
		Store:  st,
	}
}

func TestIngestDryRunDoesNotMutateStore(t *testing.T) {
	st := newFakeStore()
	c := testContext(st)
	batch := Batch{
		Source: "manual",
		Transactions: []TransactionInput{
			{Ticker: "petr4", Side: domain.SideBuy, TradeDate: calendar.MustParse("2024-01-10"),
				Quantity: decimal.NewFromInt(100), PricePerUnit: decimal.MustFromString("30.00"),
				TotalCost: decimal.MustFromString("3000.00")},
		},
	}
	report, err := c.Ingest(context.Background(), batch, true)
	require.NoError(t, err)
	require.True(t, report.DryRun)
	require.Equal(t, 1, report.AppendedTx)
	require.Empty(t, st.txs)
	require.Nil(t, st.invalidatedFrom)
}

func TestIngestLiveAppendsAndDetectsDuplicates(t *testing.T) {
	st := newFakeStore()
	c := testContext(st)
	batch := Batch{Source: "manual", Transactions: []TransactionInput{
		{Ticker: "PETR4", Side: domain.SideBuy, TradeDate: calendar.MustParse("2024-01-10"),
			Quantity: decimal.NewFromInt(100), PricePerUnit: decimal.MustFromString("30.00"),
			TotalCost: decimal.MustFromString("3000.00")},
	}}

	report, err := c.Ingest(context.Background(), batch, false)
	require.NoError(t, err)
	require.Equal(t, 1, report.AppendedTx)
	require.NotNil(t, st.invalidatedFrom)

	report2, err := c.Ingest(context.Background(), batch, false)
	require.NoError(t, err)
	require.Equal(t, 1, report2.DuplicateTx)
	require.Equal(t, 0, report2.AppendedTx)
}

func TestIngestForceBypassesDuplicateCheckAndFlagsInconsistency(t *testing.T) {
	st := newFakeStore()
	c := testContext(st)
	tx := TransactionInput{Ticker: "PETR4", Side: domain.SideBuy, TradeDate: calendar.MustParse("2024-01-10"),
		Quantity: decimal.NewFromInt(100), PricePerUnit: decimal.MustFromString("30.00"),
		TotalCost: decimal.MustFromString("3000.00")}
	batch := Batch{Source: "manual", Transactions: []TransactionInput{tx}}

	_, err := c.Ingest(context.Background(), batch, false)
	require.NoError(t, err)

	forced := tx
	forced.Force = true
	report, err := c.Ingest(context.Background(), Batch{Source: "manual", Transactions: []TransactionInput{forced}}, false)
	require.NoError(t, err)
	require.Equal(t, 1, report.AppendedTx)
	require.Equal(t, 0, report.DuplicateTx)
	require.Len(t, report.Inconsistencies, 1)
	require.Equal(t, "FORCED_DUPLICATE", report.Inconsistencies[0].Kind)
	require.Equal(t, domain.SeverityWarn, report.Inconsistencies[0].Severity)
	require.Len(t, st.txs[1], 2)
}

func TestIngestDerivesDayTradeFlagForSameDayBuyAndSell(t *testing.T) {
	st := newFakeStore()
	c := testContext(st)
	_, err := st.GetOrCreateAsset(context.Background(), "PETR4")
	require.NoError(t, err)
	require.NoError(t, st.SetAssetKind(context.Background(), "PETR4", domain.KindStock, "Petrobras"))

	batch := Batch{Source: "manual", Transactions: []TransactionInput{
		{Ticker: "PETR4", Side: domain.SideBuy, TradeDate: calendar.MustParse("2024-05-10"),
			Quantity: decimal.NewFromInt(100), PricePerUnit: decimal.MustFromString("30.00"),
			TotalCost: decimal.MustFromString("3000.00")},
		{Ticker: "PETR4", Side: domain.SideSell, TradeDate: calendar.MustParse("2024-05-10"),
			Quantity: decimal.NewFromInt(40), PricePerUnit: decimal.MustFromString("32.00"),
			TotalCost: decimal.MustFromString("1280.00")},
	}}
	report, err := c.Ingest(context.Background(), batch, false)
	require.NoError(t, err)
	// MatchDayTrade splits the BUY into a 40-share DAY fragment and a 60-share
	// SWING fragment, so three rows reach the store alongside the DAY SELL.
	require.Equal(t, 3, report.AppendedTx)

	dayGains, err := c.RealizedGainsForCategory(context.Background(), []string{"PETR4"}, domain.TaxCategory("STOCK_DAY"), 2024, 5)
	require.NoError(t, err)
	require.Len(t, dayGains, 1)
	require.True(t, dayGains[0].Quantity.Equal(decimal.NewFromInt(40)))

	swingGains, err := c.RealizedGainsForCategory(context.Background(), []string{"PETR4"}, domain.TaxCategory("STOCK_SWING"), 2024, 5)
	require.NoError(t, err)
	require.Empty(t, swingGains)
}

func TestIngestReconcilesDayTradeAgainstExistingSameDayHistory(t *testing.T) {
	st := newFakeStore()
	c := testContext(st)
	_, err := st.GetOrCreateAsset(context.Background(), "VALE3")
	require.NoError(t, err)
	require.NoError(t, st.SetAssetKind(context.Background(), "VALE3", domain.KindStock, "Vale"))

	date := calendar.MustParse("2024-06-03")
	buyBatch := Batch{Source: "broker-a", Transactions: []TransactionInput{
		{Ticker: "VALE3", Side: domain.SideBuy, TradeDate: date,
			Quantity: decimal.NewFromInt(50), PricePerUnit: decimal.MustFromString("60.00"),
			TotalCost: decimal.MustFromString("3000.00")},
	}}
	_, err = c.Ingest(context.Background(), buyBatch, false)
	require.NoError(t, err)

	// A same-day SELL arrives in a later import from a different broker feed;
	// it must still match against the BUY already sitting in the ledger.
	sellBatch := Batch{Source: "broker-b", Transactions: []TransactionInput{
		{Ticker: "VALE3", Side: domain.SideSell, TradeDate: date,
			Quantity: decimal.NewFromInt(50), PricePerUnit: decimal.MustFromString("65.00"),
			TotalCost: decimal.MustFromString("3250.00")},
	}}
	report, err := c.Ingest(context.Background(), sellBatch, false)
	require.NoError(t, err)
	require.Equal(t, 1, report.AppendedTx)

	txs := st.txs[1]
	require.Len(t, txs, 2)
	require.False(t, txs[0].IsDayTrade) // the BUY, already persisted, is left untouched
	require.True(t, txs[1].IsDayTrade)  // the newly appended SELL
}

func TestIngestFlagsExchangeMissingAllocatedCost(t *testing.T) {
	st := newFakeStore()
	c := testContext(st)
	batch := Batch{
		Source: "manual",
		CorporateEvents: []CorporateEventInput{
			{Ticker: "RAIL3", EventDate: calendar.MustParse("2024-02-01"), ExDate: calendar.MustParse("2024-02-01"),
				Kind: domain.EventExchange, ExchangeKind: domain.ExchangeMerger, ToTicker: "COGN3",
				ToQuantity: decimal.NewFromInt(50)},
		},
	}
	report, err := c.Ingest(context.Background(), batch, false)
	require.NoError(t, err)
	require.Len(t, report.Inconsistencies, 1)
	require.Equal(t, "MISSING_ALLOCATED_COST", report.Inconsistencies[0].Kind)
	require.Equal(t, domain.SeverityBlocking, report.Inconsistencies[0].Severity)
}

func TestPortfolioEvaluatesFromIngestedHistory(t *testing.T) {
	st := newFakeStore()
	c := testContext(st)
	batch := Batch{Source: "manual", Transactions: []TransactionInput{
		{Ticker: "VALE3", Side: domain.SideBuy, TradeDate: calendar.MustParse("2024-01-10"),
			Quantity: decimal.NewFromInt(100), PricePerUnit: decimal.MustFromString("60.00"),
			TotalCost: decimal.MustFromString("6000.00")},
	}}
	_, err := c.Ingest(context.Background(), batch, false)
	require.NoError(t, err)

	report, err := c.Portfolio(context.Background(), calendar.MustParse("2024-02-01"), []string{"VALE3"})
	require.NoError(t, err)
	require.Len(t, report.Positions, 1)
	require.True(t, report.Positions[0].Quantity.Equal(decimal.NewFromInt(100)))
	require.True(t, report.Positions[0].TotalCost.Equal(decimal.MustFromString("6000.00")))
}

func TestPerformanceComputesSimpleReturnWithNoFlows(t *testing.T) {
	st := newFakeStore()
	c := testContext(st)
	// Bought before the QTD window opens, so both endpoints hold the same
	// position and, with no flows and no prices, the same value.
	batch := Batch{Source: "manual", Transactions: []TransactionInput{
		{Ticker: "VALE3", Side: domain.SideBuy, TradeDate: calendar.MustParse("2023-12-10"),
			Quantity: decimal.NewFromInt(100), PricePerUnit: decimal.MustFromString("60.00"),
			TotalCost: decimal.MustFromString("6000.00")},
	}}
	_, err := c.Ingest(context.Background(), batch, false)
	require.NoError(t, err)

	asOf := calendar.MustParse("2024-03-31")
	result, err := c.Performance(context.Background(), "QTD", asOf, []string{"VALE3"})
	require.NoError(t, err)
	require.True(t, result.StartValue.Equal(result.EndValue))
}
