package engine

import (
	"context"

	"b3ledger/domain"
	"b3ledger/inconsistency"
)

// OpenInconsistencies lists every unresolved inconsistency (spec §4.J).
func (c *Context) OpenInconsistencies(ctx context.Context) ([]domain.Inconsistency, error) {
	return inconsistency.Open(ctx, c.Store)
}

// ResolveInconsistency closes out an inconsistency and invalidates every
// snapshot from resolution.InvalidateFrom forward, since resolving it is
// itself a ledger mutation (spec §4.J).
func (c *Context) ResolveInconsistency(ctx context.Context, id int64, resolution inconsistency.Resolution) error {
	return inconsistency.Resolve(ctx, c.Store, id, resolution)
}
