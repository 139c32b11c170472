package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"b3ledger/calendar"
	"b3ledger/domain"
	"b3ledger/engine"
	"b3ledger/inconsistency"
)

// TableWriter renders a simple fixed-width table to an *os.File, adapted
// from internal/server/cli.go's TableWriter for report output instead of
// job-schedule listings.
type TableWriter struct {
	headers []string
	rows    [][]string
	writer  *os.File
}

// NewTableWriter builds a TableWriter writing to writer.
func NewTableWriter(writer *os.File) *TableWriter {
	return &TableWriter{writer: writer}
}

// SetHeader sets the column headers.
func (t *TableWriter) SetHeader(headers []string) { t.headers = headers }

// Append adds one row.
func (t *TableWriter) Append(row []string) { t.rows = append(t.rows, row) }

// Render writes the accumulated table.
func (t *TableWriter) Render() {
	colWidths := make([]int, len(t.headers))
	for i, h := range t.headers {
		colWidths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(colWidths) && len(cell) > colWidths[i] {
				colWidths[i] = len(cell)
			}
		}
	}

	fmt.Fprint(t.writer, "| ")
	for i, h := range t.headers {
		fmt.Fprintf(t.writer, "%-*s | ", colWidths[i], h)
	}
	fmt.Fprintln(t.writer)

	fmt.Fprint(t.writer, "| ")
	for i := range t.headers {
		for j := 0; j < colWidths[i]; j++ {
			fmt.Fprint(t.writer, "-")
		}
		fmt.Fprint(t.writer, " | ")
	}
	fmt.Fprintln(t.writer)

	for _, row := range t.rows {
		fmt.Fprint(t.writer, "| ")
		for i, cell := range row {
			if i < len(colWidths) {
				fmt.Fprintf(t.writer, "%-*s | ", colWidths[i], cell)
			}
		}
		fmt.Fprintln(t.writer)
	}
}

func printUsage() {
	fmt.Println(`b3ledger — B3 investment ledger demo shell

Usage:
  b3ledger ingest <batch.json> [--dry-run]
  b3ledger portfolio <YYYY-MM-DD> <TICKER...>
  b3ledger performance <period> <YYYY-MM-DD> <TICKER...>
  b3ledger tax <year> <month> <category> <TICKER...>
  b3ledger inconsistencies list
  b3ledger inconsistencies resolve <id> <RESOLVED|IGNORED> <reason> <invalidate-from YYYY-MM-DD>`)
}

func dispatch(ctx context.Context, eng *engine.Context, args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}
	switch args[0] {
	case "ingest":
		return cmdIngest(ctx, eng, args[1:])
	case "portfolio":
		return cmdPortfolio(ctx, eng, args[1:])
	case "performance":
		return cmdPerformance(ctx, eng, args[1:])
	case "tax":
		return cmdTax(ctx, eng, args[1:])
	case "inconsistencies":
		return cmdInconsistencies(ctx, eng, args[1:])
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func cmdIngest(ctx context.Context, eng *engine.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("ingest requires a batch.json path")
	}
	dryRun := false
	path := args[0]
	for _, a := range args[1:] {
		if a == "--dry-run" {
			dryRun = true
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read batch file: %w", err)
	}
	var batch engine.Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return fmt.Errorf("parse batch file: %w", err)
	}

	report, err := eng.Ingest(ctx, batch, dryRun)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	table := NewTableWriter(os.Stdout)
	table.SetHeader([]string{"field", "value"})
	table.Append([]string{"dry_run", strconv.FormatBool(report.DryRun)})
	table.Append([]string{"appended_tx", strconv.Itoa(report.AppendedTx)})
	table.Append([]string{"duplicate_tx", strconv.Itoa(report.DuplicateTx)})
	table.Append([]string{"appended_events", strconv.Itoa(report.AppendedEvents)})
	table.Append([]string{"duplicate_events", strconv.Itoa(report.DuplicateEvents)})
	table.Append([]string{"appended_income", strconv.Itoa(report.AppendedIncome)})
	table.Append([]string{"inconsistencies", strconv.Itoa(len(report.Inconsistencies))})
	table.Render()
	return nil
}

func cmdPortfolio(ctx context.Context, eng *engine.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("portfolio requires a date and at least one ticker")
	}
	d, err := calendar.Parse(args[0])
	if err != nil {
		return fmt.Errorf("parse date: %w", err)
	}
	report, err := eng.Portfolio(ctx, d, args[1:])
	if err != nil {
		return fmt.Errorf("portfolio: %w", err)
	}

	table := NewTableWriter(os.Stdout)
	table.SetHeader([]string{"ticker", "kind", "qty", "avg_cost", "total_cost", "market_value", "unrealized_pl"})
	for _, row := range report.Positions {
		marketValue, unrealized := "-", "-"
		if row.MarketValue != nil {
			marketValue = row.MarketValue.String()
		}
		if row.UnrealizedPL != nil {
			unrealized = row.UnrealizedPL.String()
		}
		table.Append([]string{
			row.Ticker, string(row.Kind), row.Quantity.String(), row.AverageCost.String(),
			row.TotalCost.String(), marketValue, unrealized,
		})
	}
	table.Render()
	fmt.Printf("total_cost=%s\n", report.Summary.TotalCost.String())
	return nil
}

func cmdPerformance(ctx context.Context, eng *engine.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("performance requires a period and an as-of date")
	}
	period := args[0]
	asOf, err := calendar.Parse(args[1])
	if err != nil {
		return fmt.Errorf("parse date: %w", err)
	}
	tickers := args[2:]

	result, err := eng.Performance(ctx, period, asOf, tickers)
	if err != nil {
		return fmt.Errorf("performance: %w", err)
	}

	table := NewTableWriter(os.Stdout)
	table.SetHeader([]string{"field", "value"})
	table.Append([]string{"start", result.Start.String()})
	table.Append([]string{"end", result.End.String()})
	table.Append([]string{"start_value", result.StartValue.String()})
	table.Append([]string{"end_value", result.EndValue.String()})
	table.Append([]string{"realized_gains", result.RealizedGains.String()})
	table.Append([]string{"unrealized_gains", result.UnrealizedGains.String()})
	table.Append([]string{"total_return", result.TotalReturn.String()})
	table.Append([]string{"twr", result.TWR.String()})
	table.Render()
	return nil
}

func cmdTax(ctx context.Context, eng *engine.Context, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("tax requires <year> <month> <category> <TICKER...>")
	}
	year, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("parse year: %w", err)
	}
	month, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("parse month: %w", err)
	}
	category := domain.TaxCategory(args[2])
	tickers := args[3:]

	gains, err := eng.RealizedGainsForCategory(ctx, tickers, category, year, month)
	if err != nil {
		return fmt.Errorf("gather realized gains: %w", err)
	}

	event, darf, err := eng.TaxMonth(ctx, year, month, category, gains, calendar.WeekendCalendar{})
	if err != nil {
		return fmt.Errorf("tax month: %w", err)
	}

	table := NewTableWriter(os.Stdout)
	table.SetHeader([]string{"field", "value"})
	table.Append([]string{"category", string(event.Category)})
	table.Append([]string{"gross_sales", event.GrossSales.String()})
	table.Append([]string{"gross_profit", event.GrossProfit.String()})
	table.Append([]string{"gross_loss", event.GrossLoss.String()})
	table.Append([]string{"net", event.Net.String()})
	table.Append([]string{"rate", event.Rate.String()})
	table.Append([]string{"tax_due", event.TaxDue.String()})
	table.Append([]string{"is_exempt", strconv.FormatBool(event.IsExempt)})
	table.Render()
	if darf != nil {
		fmt.Printf("DARF %s due %s: %s\n", darf.Code, darf.DueDate.String(), darf.Amount.String())
	}
	return nil
}

func cmdInconsistencies(ctx context.Context, eng *engine.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("inconsistencies requires a subcommand: list|resolve")
	}
	switch args[0] {
	case "list":
		open, err := eng.OpenInconsistencies(ctx)
		if err != nil {
			return fmt.Errorf("list inconsistencies: %w", err)
		}
		table := NewTableWriter(os.Stdout)
		table.SetHeader([]string{"id", "kind", "severity", "context"})
		for _, in := range open {
			table.Append([]string{strconv.FormatInt(in.ID, 10), in.Kind, string(in.Severity), in.Context})
		}
		table.Render()
		return nil
	case "resolve":
		if len(args) < 5 {
			return fmt.Errorf("resolve requires <id> <RESOLVED|IGNORED> <reason> <invalidate-from YYYY-MM-DD>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("parse id: %w", err)
		}
		invalidateFrom, err := calendar.Parse(args[4])
		if err != nil {
			return fmt.Errorf("parse invalidate-from date: %w", err)
		}
		resolution := inconsistency.Resolution{
			Status:         domain.InconsistencyStatus(args[2]),
			Reason:         args[3],
			InvalidateFrom: invalidateFrom,
		}
		if err := eng.ResolveInconsistency(ctx, id, resolution); err != nil {
			return fmt.Errorf("resolve inconsistency: %w", err)
		}
		fmt.Println("resolved")
		return nil
	default:
		return fmt.Errorf("unknown inconsistencies subcommand %q", args[0])
	}
}
