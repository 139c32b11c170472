package inconsistency

import (
	"context"
	"testing"

	"b3ledger/calendar"
	"b3ledger/domain"
)

type fakeStore struct {
	rows           map[int64]domain.Inconsistency
	nextID         int64
	invalidatedFrom calendar.Date
	invalidateCalls int
}

func (f *fakeStore) AppendInconsistency(ctx context.Context, in domain.Inconsistency) (domain.Inconsistency, error) {
	f.nextID++
	in.ID = f.nextID
	in.Status = domain.InconsistencyOpen
	if f.rows == nil {
		f.rows = map[int64]domain.Inconsistency{}
	}
	f.rows[in.ID] = in
	return in, nil
}

func (f *fakeStore) ListOpenInconsistencies(ctx context.Context) ([]domain.Inconsistency, error) {
	var out []domain.Inconsistency
	for _, in := range f.rows {
		if in.Status == domain.InconsistencyOpen {
			out = append(out, in)
		}
	}
	return out, nil
}

func (f *fakeStore) ResolveInconsistency(ctx context.Context, id int64, status domain.InconsistencyStatus, resolution string) error {
	in := f.rows[id]
	in.Status = status
	in.Resolution = resolution
	f.rows[id] = in
	return nil
}

func (f *fakeStore) InvalidateSnapshotsFrom(ctx context.Context, d calendar.Date) error {
	f.invalidateCalls++
	f.invalidatedFrom = d
	return nil
}

func TestResolveInvalidatesSnapshots(t *testing.T) {
	st := &fakeStore{}
	in, err := Report(context.Background(), st, domain.Inconsistency{
		Kind: "MISSING_COST_BASIS", Severity: domain.SeverityBlocking,
		MissingFields: []string{"allocated_cost"}, Context: "exchange event",
	})
	if err != nil {
		t.Fatal(err)
	}

	err = Resolve(context.Background(), st, in.ID, Resolution{
		Status: domain.InconsistencyResolved, Reason: "injected synthetic buy",
		InvalidateFrom: calendar.MustParse("2024-03-01"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if st.invalidateCalls != 1 || !st.invalidatedFrom.Equal(calendar.MustParse("2024-03-01")) {
		t.Fatalf("expected one invalidation from 2024-03-01, got %d calls at %s", st.invalidateCalls, st.invalidatedFrom)
	}
	if st.rows[in.ID].Status != domain.InconsistencyResolved {
		t.Fatal("expected the record to transition to RESOLVED")
	}

	open, err := Open(context.Background(), st)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 0 {
		t.Fatal("resolved inconsistency should no longer be open")
	}
}

func TestResolveRejectsInvalidStatus(t *testing.T) {
	st := &fakeStore{}
	in, _ := Report(context.Background(), st, domain.Inconsistency{Kind: "X"})
	err := Resolve(context.Background(), st, in.ID, Resolution{Status: domain.InconsistencyOpen})
	if err == nil {
		t.Fatal("expected an error when resolving back to OPEN")
	}
}
