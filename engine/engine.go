// Package engine is the public facade composing every calculator package
// against one persistent store and one injected configuration — the
// "explicit dependency injection, no global state" discipline of spec §9,
// generalized from the teacher's single `Conn` god-object (internal/data/conn.go)
// into a narrow, swappable Store interface.
package engine

import (
	"context"

	"go.uber.org/zap"

	"b3ledger/calendar"
	"b3ledger/config"
	"b3ledger/decimal"
	"b3ledger/domain"
	"b3ledger/registry"
)

// Store is the full persistence surface the engine needs. *store.Conn
// satisfies it; tests substitute an in-memory fake.
type Store interface {
	GetOrCreateAsset(ctx context.Context, ticker string) (domain.Asset, error)
	GetAsset(ctx context.Context, id int64) (domain.Asset, error)
	GetAssetByTicker(ctx context.Context, ticker string) (domain.Asset, bool, error)
	SetAssetKind(ctx context.Context, ticker string, kind domain.AssetKind, name string) error

	AppendTransaction(ctx context.Context, t domain.Transaction) (domain.Transaction, bool, error)
	ForceAppendTransaction(ctx context.Context, t domain.Transaction) (domain.Transaction, error)
	AppendCorporateEvent(ctx context.Context, e domain.CorporateEvent) (domain.CorporateEvent, bool, error)
	AppendIncomeEvent(ctx context.Context, ev domain.IncomeEvent, source string) (domain.IncomeEvent, error)
	AppendCashFlow(ctx context.Context, cf domain.CashFlow) (domain.CashFlow, error)
	AppendInconsistency(ctx context.Context, in domain.Inconsistency) (domain.Inconsistency, error)
	ListOpenInconsistencies(ctx context.Context) ([]domain.Inconsistency, error)
	ResolveInconsistency(ctx context.Context, id int64, status domain.InconsistencyStatus, resolution string) error

	ListTransactions(ctx context.Context, assetID int64) ([]domain.Transaction, error)
	ListCorporateEvents(ctx context.Context, assetID int64) ([]domain.CorporateEvent, error)
	FindRenameAncestors(ctx context.Context, assetID int64) ([]int64, error)
	ListIncomeEvents(ctx context.Context, assetID int64) ([]domain.IncomeEvent, error)
	ListCashFlows(ctx context.Context, from, to calendar.Date) ([]domain.CashFlow, error)
	ListLossCarryforwards(ctx context.Context, category domain.TaxCategory) ([]domain.LossCarryforward, error)
	UpsertLossCarryforward(ctx context.Context, l domain.LossCarryforward) error

	GetPositionSnapshot(ctx context.Context, d calendar.Date, assetID int64) (domain.PositionSnapshot, bool, error)
	ListPositionSnapshots(ctx context.Context, d calendar.Date) ([]domain.PositionSnapshot, error)
	UpsertPositionSnapshot(ctx context.Context, s domain.PositionSnapshot) error
	InvalidateSnapshotsFrom(ctx context.Context, d calendar.Date) error
	GetLossSnapshot(ctx context.Context, year int, category domain.TaxCategory) (domain.LossSnapshot, bool, error)
	UpsertLossSnapshot(ctx context.Context, s domain.LossSnapshot) error

	GetImportCursor(ctx context.Context, source, entryType string) (domain.ImportCursor, bool, error)
}

// Context bundles every collaborator an operation needs, passed explicitly by
// every caller (spec §9 "no global state" — the correction of the teacher's
// package-level singletons seen elsewhere in its job-scheduler CLI).
type Context struct {
	Config   config.Config
	Logger   *zap.Logger
	Store    Store
	Registry *registry.Resolver
	Prices   PriceSource
}

// PriceSource is the engine-boundary port spec §6.3 names; identical in
// shape to portfolio.PriceSource so a Context's Prices satisfies both without
// an adapter.
type PriceSource interface {
	Fetch(ctx context.Context, ticker string, date *calendar.Date) (*decimal.Amount, error)
}
