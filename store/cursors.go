package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"

	"b3ledger/calendar"
	"b3ledger/domain"
)

// advanceCursorTx advances the (source, entryType) cursor to max(current, d),
// the "advances ImportCursor(source, entry_type) to the maximum date
// observed" rule (spec §6.2 point e).
func advanceCursorTx(ctx context.Context, tx pgx.Tx, source, entryType string, d calendar.Date) error {
	if source == "" {
		return nil
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO import_cursors(source, entry_type, last_import)
		VALUES ($1,$2,$3)
		ON CONFLICT (source, entry_type) DO UPDATE SET
			last_import = GREATEST(import_cursors.last_import, EXCLUDED.last_import)`,
		source, entryType, d.ToTime())
	if err != nil {
		return fmt.Errorf("store: advance import cursor: %w", err)
	}
	return nil
}

// GetImportCursor reads the last imported date for (source, entryType), if any.
func (c *Conn) GetImportCursor(ctx context.Context, source, entryType string) (domain.ImportCursor, bool, error) {
	var cur domain.ImportCursor
	cur.Source, cur.EntryType = source, entryType
	err := c.DB.QueryRow(ctx,
		`SELECT last_import FROM import_cursors WHERE source = $1 AND entry_type = $2`,
		source, entryType).Scan(&cur.LastImport)
	if err != nil {
		return domain.ImportCursor{}, false, nil
	}
	return cur, true, nil
}

// SetMetadata upserts a key/value pair in the Metadata table (spec §3.2).
func (c *Conn) SetMetadata(ctx context.Context, key, value string) error {
	_, err := c.ExecWithRetry(ctx, `
		INSERT INTO metadata(key, value) VALUES ($1,$2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return fmt.Errorf("store: set metadata %s: %w", key, err)
	}
	return nil
}

// GetMetadata reads a value from the Metadata table, reporting whether it exists.
func (c *Conn) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := c.DB.QueryRow(ctx, `SELECT value FROM metadata WHERE key = $1`, key).Scan(&value)
	if err != nil {
		return "", false, nil
	}
	return value, true, nil
}
