package tax

import (
	"testing"

	"b3ledger/calendar"
	"b3ledger/costbasis"
	"b3ledger/decimal"
)

func TestStockExemptionBoundary(t *testing.T) {
	// spec §8.2 scenario 3: two SELLs summing to exactly 20,000.00 are exempt.
	gains := []costbasis.RealizedGain{
		{Proceeds: decimal.MustFromString("10000.00"), Gain: decimal.MustFromString("1000.00")},
		{Proceeds: decimal.MustFromString("10000.00"), Gain: decimal.MustFromString("500.00")},
	}
	threshold := decimal.MustFromString("20000.00")
	cal := calendar.WeekendCalendar{}

	event, _, darf, err := AggregateMonth(2024, 6, "STOCK_SWING", gains, threshold, decimal.MustFromString("0.15"), nil, cal)
	if err != nil {
		t.Fatal(err)
	}
	if !event.IsExempt {
		t.Fatal("expected exemption at exactly the threshold")
	}
	if !event.TaxDue.IsZero() || darf != nil {
		t.Fatal("expected zero tax due and no DARF when exempt")
	}

	// Adding a third sale of 0.01 flips exemption off and taxes the full net at 15%.
	gains = append(gains, costbasis.RealizedGain{
		Proceeds: decimal.MustFromString("0.01"), Gain: decimal.MustFromString("0.01"),
	})
	event2, _, darf2, err := AggregateMonth(2024, 6, "STOCK_SWING", gains, threshold, decimal.MustFromString("0.15"), nil, cal)
	if err != nil {
		t.Fatal(err)
	}
	if event2.IsExempt {
		t.Fatal("expected exemption to flip off above the threshold")
	}
	wantTax := decimal.MustFromString("225.00")
	if !event2.TaxDue.Equal(wantTax) {
		t.Fatalf("tax due = %s, want %s", event2.TaxDue, wantTax)
	}
	if darf2 == nil {
		t.Fatal("expected a DARF payment once tax is due")
	}
}

func TestLossCarryForward(t *testing.T) {
	// spec §8.2 scenario 4.
	cal := calendar.WeekendCalendar{}
	marchGains := []costbasis.RealizedGain{
		{Proceeds: decimal.MustFromString("1000.00"), Gain: decimal.MustFromString("-500.00")},
	}
	_, carryforwards, darf, err := AggregateMonth(2024, 3, "STOCK_SWING", marchGains,
		decimal.MustFromString("20000.00"), decimal.MustFromString("0.15"), nil, cal)
	if err != nil {
		t.Fatal(err)
	}
	if darf != nil {
		t.Fatal("a loss month must not emit a DARF")
	}
	if len(carryforwards) != 1 || !carryforwards[0].RemainingAmount.Equal(decimal.MustFromString("500.00")) {
		t.Fatalf("expected a 500.00 carry-forward row, got %+v", carryforwards)
	}

	mayGains := []costbasis.RealizedGain{
		{Proceeds: decimal.MustFromString("25000.00"), Gain: decimal.MustFromString("800.00")},
	}
	event, carryforwards, darf, err := AggregateMonth(2024, 5, "STOCK_SWING", mayGains,
		decimal.MustFromString("20000.00"), decimal.MustFromString("0.15"), carryforwards, cal)
	if err != nil {
		t.Fatal(err)
	}
	if !event.TaxDue.Equal(decimal.MustFromString("45.00")) {
		t.Fatalf("tax due = %s, want 45.00", event.TaxDue)
	}
	if darf == nil {
		t.Fatal("expected a DARF for the May tax due")
	}
	if !carryforwards[0].RemainingAmount.IsZero() {
		t.Fatalf("march carry row should be fully consumed, got %s", carryforwards[0].RemainingAmount)
	}
}

func TestCategorizeFundVintage(t *testing.T) {
	cat := Categorize("FII", false, "PRE_2026")
	if cat != "FII_SWING_PRE_2026" {
		t.Fatalf("category = %s, want FII_SWING_PRE_2026", cat)
	}
	cat = Categorize("FII", true, "")
	if cat != "FII_DAY" {
		t.Fatalf("category = %s, want FII_DAY", cat)
	}
}

func TestBuildDARFCalendarGroupsByDueDate(t *testing.T) {
	dueA := calendar.MustParse("2024-07-31")
	dueB := calendar.MustParse("2024-08-31")
	payments := []DARFPayment{
		{Code: "6015", DueDate: dueB, Amount: decimal.MustFromString("10.00"), Year: 2024, Month: 7, Category: "STOCK_SWING"},
		{Code: "6015", DueDate: dueA, Amount: decimal.MustFromString("5.00"), Year: 2024, Month: 6, Category: "STOCK_SWING"},
		{Code: "6015", DueDate: dueA, Amount: decimal.MustFromString("3.00"), Year: 2024, Month: 6, Category: "STOCK_DAY"},
	}
	cal, dueDates := BuildDARFCalendar(payments)
	if len(dueDates) != 2 || !dueDates[0].Equal(dueA) || !dueDates[1].Equal(dueB) {
		t.Fatalf("due dates = %+v, want [dueA, dueB] in order", dueDates)
	}
	if len(cal[dueA]) != 2 {
		t.Fatalf("expected 2 payments due on %s, got %d", dueA, len(cal[dueA]))
	}
	if len(cal[dueB]) != 1 {
		t.Fatalf("expected 1 payment due on %s, got %d", dueB, len(cal[dueB]))
	}
}
