package tax

import (
	"b3ledger/decimal"
	"b3ledger/domain"
)

// AnnualReport aggregates a closed year's monthly TaxEvents, the year-end
// position snapshot (Bens e Direitos), income events, and withholding into
// the IRPF declaration input (spec §4.F "Annual IRPF report").
type AnnualReport struct {
	Year             int
	MonthlyEvents    []TaxEvent
	Positions        []domain.PositionSnapshot
	Income           []domain.IncomeEvent
	TotalWithholding decimal.Amount
	TotalTaxDue      decimal.Amount
}

// BuildAnnualReport assembles the report purely from its inputs — "the
// report contents are determined by the inputs; no ambiguity" (spec §4.F).
func BuildAnnualReport(year int, events []TaxEvent, positions []domain.PositionSnapshot, income []domain.IncomeEvent) AnnualReport {
	withholding := decimal.Zero
	taxDue := decimal.Zero
	for _, ev := range income {
		withholding = withholding.Add(ev.WithholdingTax)
	}
	for _, ev := range events {
		taxDue = taxDue.Add(ev.TaxDue)
	}
	return AnnualReport{
		Year: year, MonthlyEvents: events, Positions: positions, Income: income,
		TotalWithholding: withholding, TotalTaxDue: taxDue,
	}
}
