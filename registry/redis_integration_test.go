package registry

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"b3ledger/domain"
)

// TestResolveCachesProviderHitInRedis exercises the real cache path (a fake
// store/provider, but a real redis) since the other tests in this package
// pass a nil client and never touch the lazy-refresh/singleflight machinery
// resolveCached actually runs in production.
func TestResolveCachesProviderHitInRedis(t *testing.T) {
	rdb, cleanup := OpenTestRedis(t)
	defer cleanup()

	st := &fakeStore{assets: map[string]domain.Asset{}}
	p := &fakeProvider{name: "b3csv", known: map[string]domain.AssetKind{"MXRF11": domain.KindFII}}
	r := New(st, rdb, 0, zap.NewNop(), []Provider{p})

	ctx := context.Background()
	res, err := r.Resolve(ctx, "MXRF11")
	if err != nil {
		t.Fatal(err)
	}
	if res.Tier != "b3csv" || res.Kind != domain.KindFII {
		t.Fatalf("first resolve: got %+v", res)
	}
	if p.calls != 1 {
		t.Fatalf("expected one provider call, got %d", p.calls)
	}

	// A second resolve for the same ticker must hit the redis cache rather
	// than the provider again, even though the store still doesn't have the
	// kind persisted as an "override" (GetAssetByTicker keeps returning
	// KindUnknown in this fake, so only the cache explains the skip).
	res2, err := r.Resolve(ctx, "MXRF11")
	if err != nil {
		t.Fatal(err)
	}
	if res2.Tier != "b3csv" || res2.Kind != domain.KindFII {
		t.Fatalf("second resolve: got %+v", res2)
	}
	if p.calls != 1 {
		t.Fatalf("expected the cache to absorb the second lookup, provider was called %d times", p.calls)
	}
}
