// Package overlay re-derives the corporate-action-adjusted view of an asset's
// transaction stream on every read. It replaces the in-place mutation pattern
// under which corporate events physically rewrote transaction rows — prone to
// double-adjustment bugs a junction table had to guard against — with a pure,
// idempotent fold over an immutable ledger (spec §4.D, §9).
package overlay

import (
	"sort"

	"b3ledger/decimal"
	"b3ledger/domain"
	"b3ledger/errs"
)

// AdjustedTransaction is a Transaction as it appears after every corporate
// event with ex_date on or before its trade_date has folded into the running
// position (spec §4.D "Forward-only").
type AdjustedTransaction struct {
	Source   domain.Transaction
	Quantity decimal.Amount // effective quantity, post-split scaling
	Cost     decimal.Amount // this transaction's signed contribution to total cost
}

// EndState is the running position after folding every transaction and event.
type EndState struct {
	Quantity     decimal.Amount
	AdjustedCost decimal.Amount
	AvgPrice     decimal.Amount
}

// Result is the Overlay engine's pure output (spec §4.D "Core contract").
type Result struct {
	Adjusted []AdjustedTransaction
	End      EndState
}

// Apply merge-walks txs (already ordered trade_date ASC, id ASC — spec §3.3
// invariant 4) against events (ex_date ASC, id ASC — spec §4.D "Ordering"),
// producing the adjusted stream and end state for a single asset. It never
// writes to the store and is side-effect free (spec §4.D "Idempotence").
func Apply(assetID int64, label string, txs []domain.Transaction, events []domain.CorporateEvent, divisionScale int32) (*Result, error) {
	sorted := append([]domain.Transaction(nil), txs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].TradeDate.Equal(sorted[j].TradeDate) {
			return sorted[i].TradeDate.Before(sorted[j].TradeDate)
		}
		return sorted[i].ID < sorted[j].ID
	})
	evs := append([]domain.CorporateEvent(nil), events...)
	sort.SliceStable(evs, func(i, j int) bool {
		if !evs[i].ExDate.Equal(evs[j].ExDate) {
			return evs[i].ExDate.Before(evs[j].ExDate)
		}
		return evs[i].ID < evs[j].ID
	})

	var adjusted []AdjustedTransaction
	qty := decimal.Zero
	cost := decimal.Zero
	eventIdx := 0

	applyEvent := func(e domain.CorporateEvent) error {
		switch e.Kind {
		case domain.EventSplit:
			// Scale every already-emitted transaction's effective quantity by the
			// same ratio the running position scales by, preserving total cost
			// exactly (spec §4.D "Cost preservation", §3.3 invariant 5).
			if qty.IsZero() {
				return nil
			}
			newQty := qty.Add(e.QuantityAdjustment)
			ratio, err := newQty.DivDefault(qty)
			if err != nil {
				return err
			}
			for i := range adjusted {
				adjusted[i].Quantity = adjusted[i].Quantity.Mul(ratio)
			}
			qty = newQty
		case domain.EventCapitalReturn:
			// Reduces adjusted_cost by amount_per_unit * quantity_at_ex_date;
			// quantity unchanged (spec §4.D "Cost reduction").
			reduction := e.AmountPerUnit.Mul(qty)
			cost = cost.Sub(reduction)
		case domain.EventExchange:
			if e.FromAssetID != assetID {
				// This asset is the destination side of the exchange; no state
				// transform applies here. Its credit exists only as a BUY in txs
				// such as SpinoffSyntheticBuy/MergerSyntheticBuy build; Apply does
				// not build one, and the engine's ingest path does not either.
				break
			}
			switch e.ExchangeKind {
			case domain.ExchangeMerger:
				// Full liquidation of the source asset's basis (spec §4.D
				// "Basis allocation" — MERGER).
				qty = decimal.Zero
				cost = decimal.Zero
			case domain.ExchangeSpinoff:
				if e.AllocatedCost != nil {
					cost = cost.Sub(*e.AllocatedCost).Sub(e.CashAmount)
				}
			}
		}
		return nil
	}

	for _, t := range sorted {
		for eventIdx < len(evs) && !evs[eventIdx].ExDate.After(t.TradeDate) {
			// An event is consumed once the walk reaches the first transaction
			// dated on or after its ex_date, and applied before folding that
			// transaction's own effect, so a transaction dated on the ex_date
			// is already in post-event units and is not rescaled.
			if err := applyEvent(evs[eventIdx]); err != nil {
				return nil, err
			}
			eventIdx++
		}

		switch t.Side {
		case domain.SideBuy:
			qty = qty.Add(t.Quantity)
			cost = cost.Add(t.TotalCost)
			adjusted = append(adjusted, AdjustedTransaction{Source: t, Quantity: t.Quantity, Cost: t.TotalCost})
		case domain.SideSell:
			if qty.LessThan(t.Quantity) {
				return nil, errs.NewInsufficientHistory(errs.InsufficientHistoryDetail{
					Asset: label, Date: t.TradeDate, Available: qty, Requested: t.Quantity,
				})
			}
			avg, err := cost.Div(qty, divisionScale)
			if err != nil {
				return nil, err
			}
			saleCost := avg.Mul(t.Quantity)
			qty = qty.Sub(t.Quantity)
			cost = cost.Sub(saleCost)
			adjusted = append(adjusted, AdjustedTransaction{Source: t, Quantity: t.Quantity.Neg(), Cost: saleCost.Neg()})
		}
	}
	for eventIdx < len(evs) {
		if err := applyEvent(evs[eventIdx]); err != nil {
			return nil, err
		}
		eventIdx++
	}

	cost = decimal.ReconcileToZero(cost, divisionScale)
	var avg decimal.Amount
	if !qty.IsZero() {
		var err error
		avg, err = cost.Div(qty, divisionScale)
		if err != nil {
			return nil, err
		}
	}

	return &Result{
		Adjusted: adjusted,
		End:      EndState{Quantity: qty, AdjustedCost: cost, AvgPrice: avg},
	}, nil
}

// SpinoffSyntheticBuy builds the synthetic BUY transaction a SPINOFF event
// credits to the destination asset: to_quantity shares at unit cost
// allocated_cost / to_quantity (spec §4.D "Basis allocation").
func SpinoffSyntheticBuy(e domain.CorporateEvent, toAssetID int64) (domain.Transaction, error) {
	if e.AllocatedCost == nil {
		return domain.Transaction{}, errs.NewInsufficientInformation(errs.InsufficientInformationDetail{
			MissingFields: []string{"allocated_cost"}, Context: "exchange event",
		})
	}
	unitCost, err := e.AllocatedCost.DivDefault(e.ToQuantity)
	if err != nil {
		return domain.Transaction{}, err
	}
	return domain.Transaction{
		AssetID:      toAssetID,
		Side:         domain.SideBuy,
		TradeDate:    e.ExDate,
		Quantity:     e.ToQuantity,
		PricePerUnit: unitCost,
		TotalCost:    *e.AllocatedCost,
		Fees:         decimal.Zero,
		Source:       "overlay:exchange",
	}, nil
}

// MergerSyntheticBuy is the analogous synthetic BUY a MERGER credits to the
// destination asset after fully liquidating the source (spec §4.D).
func MergerSyntheticBuy(e domain.CorporateEvent, toAssetID int64, liquidatedCost decimal.Amount) (domain.Transaction, error) {
	if e.ToQuantity.IsZero() {
		return domain.Transaction{}, errs.NewInsufficientInformation(errs.InsufficientInformationDetail{
			MissingFields: []string{"to_quantity"}, Context: "merger event",
		})
	}
	total := liquidatedCost.Add(e.CashAmount)
	unitCost, err := total.DivDefault(e.ToQuantity)
	if err != nil {
		return domain.Transaction{}, err
	}
	return domain.Transaction{
		AssetID:      toAssetID,
		Side:         domain.SideBuy,
		TradeDate:    e.ExDate,
		Quantity:     e.ToQuantity,
		PricePerUnit: unitCost,
		TotalCost:    total,
		Fees:         decimal.Zero,
		Source:       "overlay:exchange",
	}, nil
}
