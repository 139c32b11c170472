package store

import (
	"context"
	"fmt"

	"b3ledger/domain"
)

// GetOrCreateAsset resolves ticker to its Asset row, creating one with kind
// UNKNOWN if absent. Used by the importer boundary (spec §6.2 point c) before
// the registry has a chance to classify a brand-new symbol.
func (c *Conn) GetOrCreateAsset(ctx context.Context, ticker string) (domain.Asset, error) {
	var a domain.Asset
	err := c.DB.QueryRow(ctx, `SELECT id, ticker, kind, name FROM assets WHERE ticker = $1`, ticker).
		Scan(&a.ID, &a.Ticker, &a.Kind, &a.Name)
	if err == nil {
		return a, nil
	}
	err = c.DB.QueryRow(ctx,
		`INSERT INTO assets(ticker, kind, name) VALUES ($1, $2, '')
		 ON CONFLICT (ticker) DO UPDATE SET ticker = EXCLUDED.ticker
		 RETURNING id, ticker, kind, name`,
		ticker, domain.KindUnknown).Scan(&a.ID, &a.Ticker, &a.Kind, &a.Name)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("store: get or create asset %s: %w", ticker, err)
	}
	return a, nil
}

// GetAssetByTicker looks up an asset without creating it.
func (c *Conn) GetAssetByTicker(ctx context.Context, ticker string) (domain.Asset, bool, error) {
	var a domain.Asset
	err := c.DB.QueryRow(ctx, `SELECT id, ticker, kind, name FROM assets WHERE ticker = $1`, ticker).
		Scan(&a.ID, &a.Ticker, &a.Kind, &a.Name)
	if err != nil {
		return domain.Asset{}, false, nil
	}
	return a, true, nil
}

// GetAsset looks up an asset by id.
func (c *Conn) GetAsset(ctx context.Context, id int64) (domain.Asset, error) {
	var a domain.Asset
	err := c.DB.QueryRow(ctx, `SELECT id, ticker, kind, name FROM assets WHERE id = $1`, id).
		Scan(&a.ID, &a.Ticker, &a.Kind, &a.Name)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("store: get asset %d: %w", id, err)
	}
	return a, nil
}

// SetAssetKind refines a previously-UNKNOWN (or reclassified) asset's kind,
// the registry's "explicit user override" tier (spec §4.C point 1).
func (c *Conn) SetAssetKind(ctx context.Context, ticker string, kind domain.AssetKind, name string) error {
	_, err := c.ExecWithRetry(ctx,
		`UPDATE assets SET kind = $2, name = $3 WHERE ticker = $1`, ticker, kind, name)
	if err != nil {
		return fmt.Errorf("store: set asset kind for %s: %w", ticker, err)
	}
	return nil
}
