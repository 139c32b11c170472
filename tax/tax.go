// Package tax implements the monthly categorization, aggregation, exemption,
// and loss carry-forward rules of spec §4.F. Rates are always looked up from
// a caller-supplied table (config.Config.TaxRates); the package never hard-
// codes a rate (spec §9 "Exact tax-rate table post-2026 ... treat the rate
// map as data").
package tax

import (
	"fmt"
	"sort"
	"time"

	"b3ledger/calendar"
	"b3ledger/costbasis"
	"b3ledger/decimal"
	"b3ledger/domain"
	"b3ledger/errs"
)

// Categorize assigns a TaxCategory from (kind, day_trade?, vintage?), spec
// §4.F "Categorization".
func Categorize(kind domain.AssetKind, isDayTrade bool, vintage domain.Vintage) domain.TaxCategory {
	side := "SWING"
	if isDayTrade {
		side = "DAY"
	}
	switch kind {
	case domain.KindFII, domain.KindFIAGRO, domain.KindFIInfra:
		if isDayTrade {
			return domain.TaxCategory(fmt.Sprintf("%s_DAY", kind))
		}
		return domain.TaxCategory(fmt.Sprintf("%s_SWING_%s", kind, vintage))
	default:
		return domain.TaxCategory(fmt.Sprintf("%s_%s", kind, side))
	}
}

// Vintage determines a BUY's fund-quota vintage: quota_issuance_date, falling
// back to settlement_date, falling back to trade_date; PRE_2026 iff year ≤
// 2025 (spec §4.F "Categorization").
func Vintage(t domain.Transaction) domain.Vintage {
	d := t.TradeDate
	if t.SettlementDate != nil {
		d = *t.SettlementDate
	}
	if t.QuotaIssuanceDate != nil {
		d = *t.QuotaIssuanceDate
	}
	if d.Year() <= 2025 {
		return domain.VintagePre2026
	}
	return domain.VintagePost2026
}

// TaxEvent is the per-(year, month, category) aggregation output (spec §4.F
// point 7).
type TaxEvent struct {
	Year        int
	Month       int
	Category    domain.TaxCategory
	GrossSales  decimal.Amount
	GrossProfit decimal.Amount
	GrossLoss   decimal.Amount
	Net         decimal.Amount
	Rate        decimal.Amount
	TaxDue      decimal.Amount
	IsExempt    bool
}

// DARFPayment is the monthly tax slip emitted when TaxDue > 0 (spec §4.F
// point 7).
type DARFPayment struct {
	Code     string
	DueDate  calendar.Date
	Amount   decimal.Amount
	Year     int
	Month    int
	Category domain.TaxCategory
}

// DARFCalendar groups a year's DARFPayments by due date, so an annual
// report can present one settlement obligation per date instead of one row
// per (month, category) — mirroring the way alenon-portfolios' corporate
// action audit trail always rolls up to one reconstructable ledger entry
// per economic event, here per tax settlement event.
type DARFCalendar map[calendar.Date][]DARFPayment

// BuildDARFCalendar groups payments by due date and returns the due dates in
// ascending order alongside the grouped calendar, so a caller can render
// them without re-sorting map keys itself.
func BuildDARFCalendar(payments []DARFPayment) (DARFCalendar, []calendar.Date) {
	cal := make(DARFCalendar)
	for _, p := range payments {
		cal[p.DueDate] = append(cal[p.DueDate], p)
	}
	dueDates := make([]calendar.Date, 0, len(cal))
	for d := range cal {
		dueDates = append(dueDates, d)
	}
	sort.Slice(dueDates, func(i, j int) bool { return dueDates[i].Before(dueDates[j]) })
	return cal, dueDates
}

// darfCode maps a category to its DARF collection code. Stock/BDR/ETF/option
// swing and day trades share code 6015; fund categories use 6015 as well in
// this simplified table — a full B3 table assigns narrower codes per fund
// class, left as future refinement since spec §4.F doesn't require a specific
// code, only that one is emitted.
const darfCode = "6015"

// AggregateMonth computes the TaxEvent for one (year, month, category),
// consuming FIFO loss-carryforward rows in place and returning the updated
// rows alongside any DARFPayment due (spec §4.F points 1-7).
func AggregateMonth(
	year, month int,
	category domain.TaxCategory,
	gains []costbasis.RealizedGain,
	exemptionThreshold decimal.Amount,
	rate decimal.Amount,
	carryforwards []domain.LossCarryforward,
	cal calendar.Calendar,
) (TaxEvent, []domain.LossCarryforward, *DARFPayment, error) {
	grossSales := decimal.Zero
	grossProfit := decimal.Zero
	grossLoss := decimal.Zero
	net := decimal.Zero
	for _, g := range gains {
		grossSales = grossSales.Add(g.Proceeds)
		net = net.Add(g.Gain)
		if g.Gain.Sign() >= 0 {
			grossProfit = grossProfit.Add(g.Gain)
		} else {
			grossLoss = grossLoss.Add(g.Gain.Abs())
		}
	}

	isExempt := category == "STOCK_SWING" && grossSales.LessThanOrEqual(exemptionThreshold)

	var taxable decimal.Amount
	switch {
	case isExempt:
		taxable = decimal.Zero
	case net.Sign() <= 0:
		taxable = decimal.Zero
	default:
		taxable = net
	}
	if net.Sign() < 0 {
		// Losses feed the carry-forward bucket for the same category only,
		// exempt months included (spec §4.F point 3, §8.1 "Loss carry does
		// not cross categories").
		carryforwards = append(carryforwards, domain.LossCarryforward{
			Year: year, Month: month, Category: category,
			LossAmount: net.Abs(), RemainingAmount: net.Abs(),
		})
	}

	// Loss offset: consume remaining balances FIFO over prior months of the
	// same category (spec §4.F point 4).
	if taxable.Sign() > 0 {
		for i := range carryforwards {
			if taxable.IsZero() {
				break
			}
			row := &carryforwards[i]
			if row.Category != category || row.RemainingAmount.IsZero() {
				continue
			}
			consumed := decimal.Min(taxable, row.RemainingAmount)
			taxable = taxable.Sub(consumed)
			row.RemainingAmount = row.RemainingAmount.Sub(consumed)
		}
	}

	if rate.IsZero() && !taxable.IsZero() {
		return TaxEvent{}, nil, nil, errs.NewConfigurationError(fmt.Sprintf("no tax rate configured for category %s", category))
	}
	taxDue := taxable.Mul(rate).Round(2)

	event := TaxEvent{
		Year: year, Month: month, Category: category,
		GrossSales: grossSales, GrossProfit: grossProfit, GrossLoss: grossLoss,
		Net: net, Rate: rate, TaxDue: taxDue, IsExempt: isExempt,
	}

	var darf *DARFPayment
	if taxDue.Sign() > 0 {
		dueYear, dueMonth := year, month+1
		if dueMonth > 12 {
			dueYear, dueMonth = dueYear+1, 1
		}
		nextMonthDate := calendar.NewDate(dueYear, time.Month(dueMonth), 1)
		darf = &DARFPayment{
			Code: darfCode, DueDate: calendar.LastBusinessDayOfMonth(cal, nextMonthDate),
			Amount: taxDue, Year: year, Month: month, Category: category,
		}
	}
	return event, carryforwards, darf, nil
}
