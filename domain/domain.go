// Package domain holds the entity types shared across every component of the
// ledger: Asset, Transaction, CorporateEvent, IncomeEvent, and the supporting
// enums. These are plain value types with no persistence or calculation logic
// attached, matching the teacher's convention of keeping row shapes
// (internal/app/account's Trade, Statistics structs) separate from the
// packages that compute over them.
package domain

import (
	"b3ledger/calendar"
	"b3ledger/decimal"
)

// AssetKind enumerates the instrument categories the tax engine distinguishes.
type AssetKind string

const (
	KindStock   AssetKind = "STOCK"
	KindBDR     AssetKind = "BDR"
	KindETF     AssetKind = "ETF"
	KindFII     AssetKind = "FII"
	KindFIAGRO  AssetKind = "FIAGRO"
	KindFIInfra AssetKind = "FI_INFRA"
	KindFIDC    AssetKind = "FIDC"
	KindFIP     AssetKind = "FIP"
	KindBond    AssetKind = "BOND"
	KindGovBond AssetKind = "GOV_BOND"
	KindOption  AssetKind = "OPTION"
	KindTerm    AssetKind = "TERM"
	KindUnknown AssetKind = "UNKNOWN"
)

// Vintage distinguishes fund quotas issued before or after the 2026 rate change.
type Vintage string

const (
	VintagePre2026  Vintage = "PRE_2026"
	VintagePost2026 Vintage = "POST_2026"
	// VintageNone applies to asset kinds without a vintage split (stocks, BDRs, etc).
	VintageNone Vintage = ""
)

// TaxCategory is the (kind, day-trade?, vintage?) cross product §3.1 defines.
type TaxCategory string

// Side is a transaction's buy/sell direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Asset identifies a tradeable instrument by its globally-unique ticker.
type Asset struct {
	ID     int64
	Ticker string
	Kind   AssetKind
	Name   string
}

// Transaction is an immutable ledger entry (spec §3.2). Once inserted it is
// never mutated by overlay events; the overlay engine produces a derived
// AdjustedTransaction view instead.
type Transaction struct {
	ID                 int64
	AssetID             int64
	Side               Side
	TradeDate          calendar.Date
	SettlementDate     *calendar.Date
	Quantity           decimal.Amount
	PricePerUnit       decimal.Amount
	TotalCost          decimal.Amount
	Fees               decimal.Amount
	IsDayTrade         bool
	QuotaIssuanceDate  *calendar.Date
	Source             string
}

// CorporateEventKind tags the variant a CorporateEvent carries.
type CorporateEventKind string

const (
	EventSplit          CorporateEventKind = "SPLIT"
	EventRename         CorporateEventKind = "RENAME"
	EventExchange       CorporateEventKind = "EXCHANGE"
	EventCapitalReturn  CorporateEventKind = "CAPITAL_RETURN"
)

// ExchangeKind distinguishes a spinoff from a merger within an Exchange event.
type ExchangeKind string

const (
	ExchangeSpinoff ExchangeKind = "SPINOFF"
	ExchangeMerger  ExchangeKind = "MERGER"
)

// CorporateEvent is a tagged-variant record (spec §3.2). Exactly one of the
// Split/Rename/Exchange/CapitalReturn payload fields is populated, selected by Kind.
type CorporateEvent struct {
	ID        int64
	AssetID   int64
	EventDate calendar.Date
	ExDate    calendar.Date
	Source    string
	Kind      CorporateEventKind

	// Split payload.
	QuantityAdjustment decimal.Amount

	// Rename payload.
	FromAssetID int64
	ToAssetID   int64

	// Exchange payload (also reuses FromAssetID/ToAssetID above).
	ExchangeKind  ExchangeKind
	ToQuantity    decimal.Amount
	AllocatedCost *decimal.Amount
	CashAmount    decimal.Amount

	// CapitalReturn payload.
	AmountPerUnit decimal.Amount
}

// IncomeEventKind enumerates cash distributions from a held asset.
type IncomeEventKind string

const (
	IncomeDividend     IncomeEventKind = "DIVIDEND"
	IncomeJCP          IncomeEventKind = "JCP"
	IncomeAmortization IncomeEventKind = "AMORTIZATION"
)

// IncomeEvent records a distribution paid against a held position.
type IncomeEvent struct {
	ID              int64
	AssetID         int64
	EventDate       calendar.Date
	ExDate          *calendar.Date
	Kind            IncomeEventKind
	AmountPerQuota  decimal.Amount
	TotalAmount     decimal.Amount
	WithholdingTax  decimal.Amount
	IsQuotaPre2026  bool
}

// PositionSnapshot is a cached, content-addressed portfolio row (spec §4.H).
type PositionSnapshot struct {
	SnapshotDate  calendar.Date
	AssetID       int64
	Quantity      decimal.Amount
	AverageCost   decimal.Amount
	MarketPrice   *decimal.Amount
	MarketValue   *decimal.Amount
	UnrealizedPL  *decimal.Amount
	TxFingerprint string
	Label         string
}

// CashFlowKind distinguishes external contributions from withdrawals.
type CashFlowKind string

const (
	CashFlowContribution CashFlowKind = "CONTRIBUTION"
	CashFlowWithdrawal   CashFlowKind = "WITHDRAWAL"
)

// CashFlow records money entering or leaving the tracked portfolio, used to
// partition the TWR calculation into sub-periods (spec §4.I).
type CashFlow struct {
	ID            int64
	FlowDate      calendar.Date
	Kind          CashFlowKind
	Amount        decimal.Amount
	AssetID       *int64
	TransactionID *int64
}

// LossCarryforward is a per-category, per-month loss bucket available to
// offset future gains in the same category (spec §4.F point 4).
type LossCarryforward struct {
	Year            int
	Month           int
	Category        TaxCategory
	LossAmount      decimal.Amount
	RemainingAmount decimal.Amount
}

// LossSnapshot is a content-addressed, once-per-closed-year cache of the
// ending carry-forward balance (spec §4.F "Carry-forward snapshots").
type LossSnapshot struct {
	Year            int
	Category        TaxCategory
	EndingRemaining decimal.Amount
	TxFingerprint   string
}

// InconsistencyStatus tracks the resolution lifecycle of an Inconsistency.
type InconsistencyStatus string

const (
	InconsistencyOpen     InconsistencyStatus = "OPEN"
	InconsistencyResolved InconsistencyStatus = "RESOLVED"
	InconsistencyIgnored  InconsistencyStatus = "IGNORED"
)

// InconsistencySeverity distinguishes hard blockers from soft warnings.
type InconsistencySeverity string

const (
	SeverityBlocking InconsistencySeverity = "BLOCKING"
	SeverityWarn     InconsistencySeverity = "WARN"
)

// Inconsistency is an append-only record of data an importer or validator
// could not fully resolve (spec §4.J).
type Inconsistency struct {
	ID            int64
	Kind          string
	Status        InconsistencyStatus
	Severity      InconsistencySeverity
	AssetID       *int64
	TransactionID *int64
	MissingFields []string
	Context       string
	Resolution    string
}

// ImportCursor records the last imported date per (source, entry_type) pair so
// importers can resume incrementally (spec §3.2).
type ImportCursor struct {
	Source     string
	EntryType  string
	LastImport calendar.Date
}
