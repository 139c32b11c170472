// Package performance computes time-weighted return and related period
// summaries over the portfolio (spec §4.I).
package performance

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"b3ledger/calendar"
	"b3ledger/decimal"
	"b3ledger/domain"
)

// Report is the PerformanceReport value spec §4.I names.
type Report struct {
	Start          calendar.Date
	End            calendar.Date
	StartValue     decimal.Amount
	EndValue       decimal.Amount
	RealizedGains  decimal.Amount
	UnrealizedGains decimal.Amount
	TotalReturn    decimal.Amount
	TWR            decimal.Amount
	ByAssetKind    map[domain.AssetKind]decimal.Amount
}

// subPeriod is one TWR-linking interval bounded by cash flows.
type subPeriod struct {
	startValue decimal.Amount
	endValue   decimal.Amount
	flow       decimal.Amount // positive contribution, negative withdrawal
}

// Evaluate builds the PerformanceReport for [start, end] given the start/end
// portfolio values (sourced by the caller from the snapshot cache per §4.H),
// the cash flows falling strictly inside the period, realized gains booked
// in the period, and a per-asset-kind unrealized breakdown.
func Evaluate(start, end calendar.Date, startValue, endValue decimal.Amount, flows []domain.CashFlow,
	realizedGains decimal.Amount, byKindUnrealized map[domain.AssetKind]decimal.Amount, divisionScale int32) (Report, error) {

	twr, err := timeWeightedReturn(start, end, startValue, endValue, flows, divisionScale)
	if err != nil {
		return Report{}, err
	}

	totalReturn := decimal.Zero
	if !startValue.IsZero() {
		totalReturn, err = endValue.Sub(startValue).Div(startValue, divisionScale)
		if err != nil {
			return Report{}, err
		}
	}

	unrealizedTotal := decimal.Zero
	for _, v := range byKindUnrealized {
		unrealizedTotal = unrealizedTotal.Add(v)
	}

	return Report{
		Start: start, End: end, StartValue: startValue, EndValue: endValue,
		RealizedGains: realizedGains, UnrealizedGains: unrealizedTotal,
		TotalReturn: totalReturn, TWR: twr, ByAssetKind: byKindUnrealized,
	}, nil
}

// timeWeightedReturn implements spec §4.I's linking rule: partition
// [start, end] at every CashFlow.flow_date, compute each sub-period's simple
// return adjusted for the flow, and link (1+r_i) across sub-periods. With no
// cash flows, twr degenerates to the simple total return.
//
// Sub-period boundary values are approximated linearly between the known
// start/end portfolio values weighted by elapsed days, since per-cash-flow
// snapshots are not separately available from the two endpoint values alone;
// actual portfolio valuations at the cash-flow dates are not used.
func timeWeightedReturn(start, end calendar.Date, startValue, endValue decimal.Amount, flows []domain.CashFlow, divisionScale int32) (decimal.Amount, error) {
	if len(flows) == 0 {
		if startValue.IsZero() {
			return decimal.Zero, nil
		}
		return endValue.Sub(startValue).Div(startValue, divisionScale)
	}

	totalDays := decimal.NewFromInt(int64(daysBetween(start, end)))
	if totalDays.IsZero() {
		return decimal.Zero, nil
	}

	cursor := start
	cursorValue := startValue
	product := decimal.NewFromInt(1)

	for _, flow := range flows {
		if flow.FlowDate.Before(start) || !flow.FlowDate.Before(end) {
			continue
		}
		elapsed := decimal.NewFromInt(int64(daysBetween(cursor, flow.FlowDate)))
		frac, err := elapsed.Div(totalDays, divisionScale)
		if err != nil {
			return decimal.Amount{}, err
		}
		span := endValue.Sub(startValue).Mul(frac)
		subEndBeforeFlow := cursorValue.Add(span)

		var r decimal.Amount
		if cursorValue.IsZero() {
			r = decimal.Zero
		} else {
			r, err = subEndBeforeFlow.Sub(cursorValue).Div(cursorValue, divisionScale)
			if err != nil {
				return decimal.Amount{}, err
			}
		}
		product = product.Mul(decimal.NewFromInt(1).Add(r))

		cursor = flow.FlowDate
		cursorValue = subEndBeforeFlow.Add(flow.Amount)
	}

	var rFinal decimal.Amount
	if cursorValue.IsZero() {
		rFinal = decimal.Zero
	} else {
		var err error
		rFinal, err = endValue.Sub(cursorValue).Div(cursorValue, divisionScale)
		if err != nil {
			return decimal.Amount{}, err
		}
	}
	product = product.Mul(decimal.NewFromInt(1).Add(rFinal))

	return product.Sub(decimal.NewFromInt(1)), nil
}

func daysBetween(a, b calendar.Date) int {
	return int(b.ToTime().Sub(a.ToTime()).Hours() / 24)
}

// ParsePeriod resolves the spec §4.I period vocabulary (MTD, QTD, YTD, 1Y,
// ALL, a calendar year, or a from:to range) into concrete bounds, relative to
// asOf (typically "today" as supplied by the caller, never read from the
// wall clock by this package itself).
func ParsePeriod(period string, asOf calendar.Date) (start, end calendar.Date, err error) {
	period = strings.TrimSpace(strings.ToUpper(period))
	switch {
	case period == "MTD":
		return calendar.NewDate(asOf.Year(), asOf.Month(), 1), asOf, nil
	case period == "QTD":
		q := (int(asOf.Month()-1) / 3) * 3
		return calendar.NewDate(asOf.Year(), time.Month(q+1), 1), asOf, nil
	case period == "YTD":
		return calendar.NewDate(asOf.Year(), time.January, 1), asOf, nil
	case period == "1Y":
		return calendar.NewDate(asOf.Year()-1, asOf.Month(), asOf.Day()), asOf, nil
	case period == "ALL":
		return calendar.NewDate(1970, time.January, 1), asOf, nil
	case strings.Contains(period, ":"):
		parts := strings.SplitN(period, ":", 2)
		start, err = parsePartialDate(parts[0], true)
		if err != nil {
			return calendar.Date{}, calendar.Date{}, err
		}
		end, err = parsePartialDate(parts[1], false)
		if err != nil {
			return calendar.Date{}, calendar.Date{}, err
		}
		return start, end, nil
	default:
		if year, convErr := strconv.Atoi(period); convErr == nil && len(period) == 4 {
			return calendar.NewDate(year, time.January, 1), calendar.NewDate(year, time.December, 31), nil
		}
		return calendar.Date{}, calendar.Date{}, fmt.Errorf("performance: unrecognized period %q", period)
	}
}

// parsePartialDate parses YYYY[-MM[-DD]], defaulting missing precision to the
// first day of month/year when atStart, or the last when !atStart.
func parsePartialDate(s string, atStart bool) (calendar.Date, error) {
	parts := strings.Split(s, "-")
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return calendar.Date{}, fmt.Errorf("performance: invalid year in %q: %w", s, err)
	}
	month := 1
	if atStart == false {
		month = 12
	}
	if len(parts) >= 2 {
		month, err = strconv.Atoi(parts[1])
		if err != nil {
			return calendar.Date{}, fmt.Errorf("performance: invalid month in %q: %w", s, err)
		}
	}
	day := 1
	if !atStart {
		day = lastDayOfMonth(year, month)
	}
	if len(parts) >= 3 {
		day, err = strconv.Atoi(parts[2])
		if err != nil {
			return calendar.Date{}, fmt.Errorf("performance: invalid day in %q: %w", s, err)
		}
	}
	return calendar.NewDate(year, time.Month(month), day), nil
}

func lastDayOfMonth(year, month int) int {
	firstOfNext := calendar.NewDate(year, time.Month(month+1), 1)
	return firstOfNext.ToTime().AddDate(0, 0, -1).Day()
}
