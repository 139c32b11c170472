// Package costbasis implements average-cost accounting over an overlay-
// adjusted transaction stream (spec §4.E). It never writes to the store; it
// is a lazy fold the Tax engine and Portfolio evaluator consume.
package costbasis

import (
	"b3ledger/calendar"
	"b3ledger/decimal"
	"b3ledger/domain"
	"b3ledger/errs"
	"b3ledger/overlay"
)

// RealizedGain is emitted for every SELL (or, when the SELL draws on more
// than one fund-quota vintage, once per vintage consumed), carrying enough
// detail for the tax engine's categorization step (spec §4.F "Categorization").
type RealizedGain struct {
	SaleDate   calendar.Date
	AssetID    int64
	Quantity   decimal.Amount
	CostBasis  decimal.Amount
	Proceeds   decimal.Amount
	Fees       decimal.Amount
	Gain       decimal.Amount
	IsDayTrade bool
	BuyDate    calendar.Date // most recent BUY trade date at time of sale; informational only, see Vintage
	Vintage    domain.Vintage
}

// Position is the running (qty, avg_cost, total_cost) state after folding
// every adjusted transaction.
type Position struct {
	Quantity    decimal.Amount
	AverageCost decimal.Amount
	TotalCost   decimal.Amount
}

// Run folds adjusted over a single blended average-cost accounting, emitting
// a RealizedGain per SELL and the final Position. Day-trade detection (spec
// §4.E "Day-trade detection") relies on domain.Transaction.IsDayTrade already
// having been derived at ingest time per spec §3.2; Run trusts that flag
// rather than re-deriving it, since re-derivation needs same-trade-date
// cross-referencing against the rest of the ledger (see MatchDayTrade).
// Callers needing each SELL's gain split across fund-quota vintages (spec
// §8.2 scenario 5) want RunWithVintages instead; Run always reports
// domain.VintageNone.
func Run(assetID int64, adjusted []overlay.AdjustedTransaction, divisionScale int32) ([]RealizedGain, Position, error) {
	qty := decimal.Zero
	total := decimal.Zero
	var gains []RealizedGain

	var lastBuyDate calendar.Date
	for _, at := range adjusted {
		t := at.Source
		switch t.Side {
		case domain.SideBuy:
			qty = qty.Add(at.Quantity)
			total = total.Add(at.Cost)
			lastBuyDate = t.TradeDate
		case domain.SideSell:
			sellQty := at.Quantity.Neg() // AdjustedTransaction stores SELL quantity negated
			if qty.LessThan(sellQty) {
				return nil, Position{}, errs.NewInsufficientHistory(errs.InsufficientHistoryDetail{
					Asset: "", Date: t.TradeDate, Available: qty, Requested: sellQty,
				})
			}
			avg, err := total.Div(qty, divisionScale)
			if err != nil {
				return nil, Position{}, err
			}
			costBasis := avg.Mul(sellQty)
			proceeds := t.PricePerUnit.Mul(sellQty).Sub(t.Fees)
			gain := proceeds.Sub(costBasis)

			qty = qty.Sub(sellQty)
			total = total.Sub(costBasis)
			if qty.IsZero() {
				total = decimal.ReconcileToZero(total, divisionScale)
			}

			gains = append(gains, RealizedGain{
				SaleDate: t.TradeDate, AssetID: assetID, Quantity: sellQty,
				CostBasis: costBasis, Proceeds: proceeds, Fees: t.Fees, Gain: gain,
				IsDayTrade: t.IsDayTrade, BuyDate: lastBuyDate, Vintage: domain.VintageNone,
			})
		}
	}

	var avg decimal.Amount
	if !qty.IsZero() {
		var err error
		avg, err = total.Div(qty, divisionScale)
		if err != nil {
			return nil, Position{}, err
		}
	}
	return gains, Position{Quantity: qty, AverageCost: avg, TotalCost: total}, nil
}

// MatchDayTrade derives the is_day_trade flag for a batch of same-asset,
// same-trade-date transactions: the matched minimum quantity between opposite
// sides on that date is DAY on EACH side; the residual on each side is SWING
// (spec §3.2, §4.E "Day-trade detection", glossary "Day trade"). Ingest calls
// this once per (asset, trade_date) group, reconciled against whatever the
// ledger already holds for that date, before appending the new rows, splitting
// an over-matched row into a DAY portion and a SWING residual when necessary.
func MatchDayTrade(sameDateTxs []domain.Transaction) []domain.Transaction {
	var buys, sells decimal.Amount
	for _, t := range sameDateTxs {
		if t.Side == domain.SideBuy {
			buys = buys.Add(t.Quantity)
		} else {
			sells = sells.Add(t.Quantity)
		}
	}
	matched := decimal.Min(buys, sells)
	if matched.IsZero() {
		return sameDateTxs
	}

	out := make([]domain.Transaction, 0, len(sameDateTxs))
	buyRemaining, sellRemaining := matched, matched
	for _, t := range sameDateTxs {
		remaining := &buyRemaining
		if t.Side == domain.SideSell {
			remaining = &sellRemaining
		}
		if remaining.IsZero() {
			t.IsDayTrade = false
			out = append(out, t)
			continue
		}
		if t.Quantity.LessThanOrEqual(*remaining) {
			t.IsDayTrade = true
			*remaining = remaining.Sub(t.Quantity)
			out = append(out, t)
			continue
		}
		// Split: the matched portion is DAY, the residual SWING.
		dayPart := t
		dayPart.Quantity = *remaining
		dayPart.IsDayTrade = true
		swingPart := t
		swingPart.Quantity = t.Quantity.Sub(*remaining)
		swingPart.IsDayTrade = false
		*remaining = decimal.Zero
		out = append(out, dayPart, swingPart)
	}
	return out
}

// VintagePool sub-pools average cost by fund-quota vintage (PRE_2026 /
// POST_2026), so a SELL realizes gain proportionally in each vintage under
// its own average cost rather than one blended figure (spec §8.2 scenario 5,
// SPEC_FULL.md §3 supplemented feature).
type VintagePool struct {
	pools map[domain.Vintage]*Position
}

// NewVintagePool constructs an empty pool.
func NewVintagePool() *VintagePool {
	return &VintagePool{pools: make(map[domain.Vintage]*Position)}
}

// Buy adds q shares at cost to the named vintage's sub-pool.
func (p *VintagePool) Buy(v domain.Vintage, q, cost decimal.Amount) {
	pos, ok := p.pools[v]
	if !ok {
		pos = &Position{}
		p.pools[v] = pos
	}
	pos.Quantity = pos.Quantity.Add(q)
	pos.TotalCost = pos.TotalCost.Add(cost)
	if !pos.Quantity.IsZero() {
		pos.AverageCost, _ = pos.TotalCost.DivDefault(pos.Quantity)
	}
}

// VintageConsumption is one vintage's contribution to a SELL.
type VintageConsumption struct {
	Vintage   domain.Vintage
	Quantity  decimal.Amount
	CostBasis decimal.Amount
}

// Sell consumes sellQty from the pool's vintages in the order supplied by
// priority (oldest-first by convention), returning each vintage's contributed
// quantity and cost basis.
func (p *VintagePool) Sell(sellQty decimal.Amount, priority []domain.Vintage, divisionScale int32) ([]VintageConsumption, error) {
	remaining := sellQty
	var out []VintageConsumption
	for _, v := range priority {
		if remaining.IsZero() {
			break
		}
		pos, ok := p.pools[v]
		if !ok || pos.Quantity.IsZero() {
			continue
		}
		take := decimal.Min(remaining, pos.Quantity)
		avg, err := pos.TotalCost.Div(pos.Quantity, divisionScale)
		if err != nil {
			return nil, err
		}
		costBasis := avg.Mul(take)
		pos.Quantity = pos.Quantity.Sub(take)
		pos.TotalCost = pos.TotalCost.Sub(costBasis)
		remaining = remaining.Sub(take)
		out = append(out, VintageConsumption{Vintage: v, Quantity: take, CostBasis: costBasis})
	}
	if !remaining.IsZero() {
		return nil, errs.NewInsufficientHistory(errs.InsufficientHistoryDetail{
			Available: sellQty.Sub(remaining), Requested: sellQty,
		})
	}
	return out, nil
}

// Position aggregates every vintage sub-pool into one (qty, avg_cost,
// total_cost) snapshot, for callers that want the whole position without
// per-vintage detail (RunWithVintages reports its end state through it).
func (p *VintagePool) Position(divisionScale int32) (Position, error) {
	var qty, total decimal.Amount
	for _, pos := range p.pools {
		qty = qty.Add(pos.Quantity)
		total = total.Add(pos.TotalCost)
	}
	var avg decimal.Amount
	if !qty.IsZero() {
		var err error
		avg, err = total.Div(qty, divisionScale)
		if err != nil {
			return Position{}, err
		}
	}
	return Position{Quantity: qty, AverageCost: avg, TotalCost: total}, nil
}

// vintagePriority is the oldest-first consumption order Sell uses: pre-2026
// quotas before post-2026 ones, with the no-vintage bucket (non-fund assets)
// last since it only ever holds one pool anyway.
var vintagePriority = []domain.Vintage{domain.VintagePre2026, domain.VintagePost2026, domain.VintageNone}

// RunWithVintages folds adjusted the same way Run does but sub-pools BUYs by
// vintage (vintageOf classifies each BUY, typically from its
// quota_issuance_date) so a SELL realizes gain proportionally across
// whichever vintages it draws from instead of one blended average (spec
// §8.2 scenario 5). A vintageOf that always returns domain.VintageNone
// collapses this to a single pool equivalent to Run. Proceeds and fees are
// split across the vintages a SELL draws from in proportion to the quantity
// each vintage contributes.
func RunWithVintages(assetID int64, adjusted []overlay.AdjustedTransaction, divisionScale int32, vintageOf func(domain.Transaction) domain.Vintage) ([]RealizedGain, Position, error) {
	pool := NewVintagePool()
	var gains []RealizedGain
	var lastBuyDate calendar.Date

	for _, at := range adjusted {
		t := at.Source
		switch t.Side {
		case domain.SideBuy:
			pool.Buy(vintageOf(t), at.Quantity, at.Cost)
			lastBuyDate = t.TradeDate
		case domain.SideSell:
			sellQty := at.Quantity.Neg() // AdjustedTransaction stores SELL quantity negated
			consumptions, err := pool.Sell(sellQty, vintagePriority, divisionScale)
			if err != nil {
				return nil, Position{}, err
			}
			grossProceeds := t.PricePerUnit.Mul(sellQty)
			for _, cons := range consumptions {
				share, err := cons.Quantity.Div(sellQty, divisionScale)
				if err != nil {
					return nil, Position{}, err
				}
				shareFees := t.Fees.Mul(share)
				proceeds := grossProceeds.Mul(share).Sub(shareFees)
				gain := proceeds.Sub(cons.CostBasis)
				gains = append(gains, RealizedGain{
					SaleDate: t.TradeDate, AssetID: assetID, Quantity: cons.Quantity,
					CostBasis: cons.CostBasis, Proceeds: proceeds, Fees: shareFees, Gain: gain,
					IsDayTrade: t.IsDayTrade, BuyDate: lastBuyDate, Vintage: cons.Vintage,
				})
			}
		}
	}

	pos, err := pool.Position(divisionScale)
	if err != nil {
		return nil, Position{}, err
	}
	return gains, pos, nil
}
