package registry

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"b3ledger/domain"
)

func TestSuffixHeuristic(t *testing.T) {
	cases := map[string]domain.AssetKind{
		"PETR4":  domain.KindStock,
		"VALE3":  domain.KindStock,
		"MXRF11": domain.KindUnknown, // ambiguous FII/UNITS, refused
		"AAPL34": domain.KindBDR,
		"XX":     domain.KindUnknown,
	}
	for ticker, want := range cases {
		if got := SuffixHeuristic(ticker); got != want {
			t.Errorf("SuffixHeuristic(%s) = %s, want %s", ticker, got, want)
		}
	}
}

type fakeStore struct {
	assets map[string]domain.Asset
	sets   map[string]domain.AssetKind
}

func (f *fakeStore) GetAssetByTicker(ctx context.Context, ticker string) (domain.Asset, bool, error) {
	a, ok := f.assets[ticker]
	return a, ok, nil
}

func (f *fakeStore) SetAssetKind(ctx context.Context, ticker string, kind domain.AssetKind, name string) error {
	if f.sets == nil {
		f.sets = map[string]domain.AssetKind{}
	}
	f.sets[ticker] = kind
	return nil
}

type fakeProvider struct {
	name    string
	known   map[string]domain.AssetKind
	calls   int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Fetch(ctx context.Context, ticker string) (domain.AssetKind, string, bool, error) {
	p.calls++
	kind, ok := p.known[ticker]
	return kind, ticker + " Inc", ok, nil
}

func TestResolveShortCircuitsOnOverride(t *testing.T) {
	st := &fakeStore{assets: map[string]domain.Asset{
		"PETR4": {ID: 1, Ticker: "PETR4", Kind: domain.KindStock},
	}}
	r := New(st, nil, 0, zap.NewNop(), nil)
	res, err := r.Resolve(context.Background(), "PETR4")
	if err != nil {
		t.Fatal(err)
	}
	if res.Tier != "override" || res.Kind != domain.KindStock || res.Confidence != Confirmed {
		t.Fatalf("got %+v", res)
	}
}

func TestResolveFallsThroughToCachedProvider(t *testing.T) {
	st := &fakeStore{assets: map[string]domain.Asset{}}
	p := &fakeProvider{name: "b3csv", known: map[string]domain.AssetKind{"MXRF11": domain.KindFII}}
	r := New(st, nil, 0, zap.NewNop(), []Provider{p})
	res, err := r.Resolve(context.Background(), "MXRF11")
	if err != nil {
		t.Fatal(err)
	}
	if res.Tier != "b3csv" || res.Kind != domain.KindFII {
		t.Fatalf("got %+v", res)
	}
	if st.sets["MXRF11"] != domain.KindFII {
		t.Fatal("expected the resolved kind to be persisted")
	}
}

func TestResolveFallsBackToHeuristicWhenNoProviderKnowsIt(t *testing.T) {
	st := &fakeStore{assets: map[string]domain.Asset{}}
	p := &fakeProvider{name: "b3csv", known: map[string]domain.AssetKind{}}
	r := New(st, nil, 0, zap.NewNop(), []Provider{p})
	res, err := r.Resolve(context.Background(), "PETR4")
	if err != nil {
		t.Fatal(err)
	}
	if res.Tier != "heuristic" || res.Kind != domain.KindStock || res.Confidence != Heuristic {
		t.Fatalf("got %+v", res)
	}
}

func TestResolveReturnsUnknownForAmbiguousSuffixWithNoProviderMatch(t *testing.T) {
	st := &fakeStore{assets: map[string]domain.Asset{}}
	p := &fakeProvider{name: "b3csv", known: map[string]domain.AssetKind{}}
	r := New(st, nil, 0, zap.NewNop(), []Provider{p})
	res, err := r.Resolve(context.Background(), "MXRF11")
	if err != nil {
		t.Fatal(err)
	}
	if res.Tier != "unknown" || res.Kind != domain.KindUnknown {
		t.Fatalf("got %+v", res)
	}
}
