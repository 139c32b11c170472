// Package snapshot implements the content-addressed portfolio cache of spec
// §4.H: a fingerprint over every governing-date-bounded event, used to decide
// whether a stored PositionSnapshot row is still valid or must be recomputed.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"b3ledger/calendar"
	"b3ledger/domain"
	"b3ledger/metrics"
	"b3ledger/portfolio"
)

// Store is the subset of store.Conn the cache needs, kept as an interface so
// snapshot stays decoupled from the concrete pgx-backed implementation (the
// teacher's own packages favor concrete structs; an interface here is
// required because snapshot must be testable without a live database and
// must not import store's testcontainers dependency into every caller).
type Store interface {
	GetPositionSnapshot(ctx context.Context, d calendar.Date, assetID int64) (domain.PositionSnapshot, bool, error)
	ListPositionSnapshots(ctx context.Context, d calendar.Date) ([]domain.PositionSnapshot, error)
	UpsertPositionSnapshot(ctx context.Context, s domain.PositionSnapshot) error
}

// Fingerprint computes the content hash over every transaction, corporate
// event, and income event it is given, normalized to canonical decimal
// strings (spec §4.H); it applies no date bound itself. engine.Portfolio
// passes the transactions and corporate events dated on or before its as-of
// date and every income event of the asset. Equality of inputs implies equality
// of digest; the digest itself is opaque.
func Fingerprint(txs []domain.Transaction, events []domain.CorporateEvent, income []domain.IncomeEvent) string {
	var lines []string
	for _, t := range txs {
		lines = append(lines, "T|"+t.TradeDate.String()+"|"+string(t.Side)+"|"+
			t.Quantity.String()+"|"+t.PricePerUnit.String()+"|"+t.TotalCost.String()+"|"+t.Fees.String())
	}
	for _, e := range events {
		lines = append(lines, "E|"+e.ExDate.String()+"|"+string(e.Kind)+"|"+e.QuantityAdjustment.String()+"|"+e.CashAmount.String())
	}
	for _, in := range income {
		lines = append(lines, "I|"+in.EventDate.String()+"|"+string(in.Kind)+"|"+in.TotalAmount.String())
	}
	// Sort so fingerprint depends only on content, not database row order
	// (spec §8.1 "Fingerprint stability": "up to row id").
	sort.Strings(lines)

	h := sha256.New()
	for _, line := range lines {
		h.Write([]byte(line))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Read satisfies a portfolio query at date d: if a stored report with a
// matching fingerprint exists, return it; else the caller (engine) recomputes
// and calls Save (spec §4.H "Read").
func Read(ctx context.Context, st Store, d calendar.Date, assetID int64, currentFingerprint string) (domain.PositionSnapshot, bool, error) {
	row, ok, err := st.GetPositionSnapshot(ctx, d, assetID)
	if err != nil || !ok {
		metrics.RecordSnapshotMiss()
		return domain.PositionSnapshot{}, false, err
	}
	if row.TxFingerprint != currentFingerprint {
		metrics.RecordSnapshotMiss()
		return domain.PositionSnapshot{}, false, nil
	}
	metrics.RecordSnapshotHit()
	return row, true, nil
}

// Save writes one PositionSnapshot row per position in report, stamped with
// fingerprint, upserting on (snapshot_date, asset_id) (spec §4.H "Save").
func Save(ctx context.Context, st Store, report *portfolio.Report, fingerprints map[int64]string) error {
	for _, row := range report.Positions {
		s := domain.PositionSnapshot{
			SnapshotDate: report.AsOf, AssetID: row.AssetID,
			Quantity: row.Quantity, AverageCost: row.AverageCost,
			MarketPrice: row.MarketPrice, MarketValue: row.MarketValue, UnrealizedPL: row.UnrealizedPL,
			TxFingerprint: fingerprints[row.AssetID],
		}
		if err := st.UpsertPositionSnapshot(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
