// Package inconsistency wraps the append-only Inconsistency ledger with the
// resolution workflow spec §4.J describes: resolving a record is itself a
// mutation, so it must invalidate snapshots from the affected date forward,
// a step the bare store layer does not perform on its own.
package inconsistency

import (
	"context"
	"fmt"

	"b3ledger/calendar"
	"b3ledger/domain"
)

// Store is the subset of store.Conn the resolution workflow needs.
type Store interface {
	AppendInconsistency(ctx context.Context, in domain.Inconsistency) (domain.Inconsistency, error)
	ListOpenInconsistencies(ctx context.Context) ([]domain.Inconsistency, error)
	ResolveInconsistency(ctx context.Context, id int64, status domain.InconsistencyStatus, resolution string) error
	InvalidateSnapshotsFrom(ctx context.Context, d calendar.Date) error
}

// Report records a new BLOCKING or WARN inconsistency (spec §4.J).
func Report(ctx context.Context, st Store, in domain.Inconsistency) (domain.Inconsistency, error) {
	return st.AppendInconsistency(ctx, in)
}

// Open lists every unresolved inconsistency, oldest first.
func Open(ctx context.Context, st Store) ([]domain.Inconsistency, error) {
	return st.ListOpenInconsistencies(ctx)
}

// Resolution is the payload applied when closing out an inconsistency: either
// the caller injected a synthetic transaction/event (Status = Resolved) or
// chose to ignore it with a reason (Status = Ignored).
type Resolution struct {
	Status      domain.InconsistencyStatus
	Reason      string
	InvalidateFrom calendar.Date
}

// Resolve applies resolution and invalidates every snapshot from
// resolution.InvalidateFrom forward, since a resolved inconsistency can
// change any adjusted-cost computation that ran across that date (spec §4.J
// "Resolution is itself a mutation").
func Resolve(ctx context.Context, st Store, id int64, resolution Resolution) error {
	if resolution.Status != domain.InconsistencyResolved && resolution.Status != domain.InconsistencyIgnored {
		return fmt.Errorf("inconsistency: invalid resolution status %q", resolution.Status)
	}
	if err := st.ResolveInconsistency(ctx, id, resolution.Status, resolution.Reason); err != nil {
		return err
	}
	return st.InvalidateSnapshotsFrom(ctx, resolution.InvalidateFrom)
}
