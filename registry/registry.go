// Package registry resolves ticker -> (kind, name) through the layered
// lookup order of spec §4.C: explicit override, cached B3 instruments list,
// cached Mais-Retorno registry, an optional scrape fallback, and finally a
// suffix heuristic that refuses to guess where B3's own conventions are
// ambiguous.
package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"b3ledger/domain"
	"b3ledger/metrics"
)

// Store is the subset of store.Conn the registry needs for the override tier
// and for persisting confirmed classifications.
type Store interface {
	GetAssetByTicker(ctx context.Context, ticker string) (domain.Asset, bool, error)
	SetAssetKind(ctx context.Context, ticker string, kind domain.AssetKind, name string) error
}

// Provider is one external source of ticker classifications (the B3
// instruments CSV, Mais-Retorno, or a scrape fallback). Resolved tells the
// caller whether the provider actually knows the ticker; a provider that
// doesn't recognize a symbol returns resolved=false, not an error.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, ticker string) (kind domain.AssetKind, name string, resolved bool, err error)
}

// ProgressSink surfaces lazy-refresh activity to an interactive caller
// (spec §4.C "surfaces progress via an injected progress sink").
type ProgressSink interface {
	Notify(stage, ticker string)
}

type noopSink struct{}

func (noopSink) Notify(string, string) {}

// Resolver implements the §4.C lookup order, short-circuiting on first hit.
type Resolver struct {
	store    Store
	redis    *redis.Client
	ttl      time.Duration
	cached   []Provider // tier 2+: B3 CSV, Mais-Retorno, in priority order
	scrape   Provider   // tier 4, optional
	sink     ProgressSink
	logger   *zap.Logger
	inflight singleflight.Group
}

// Option configures a Resolver at construction time.
type Option func(*Resolver)

// WithScrapeFallback installs the optional tier-4 scrape provider.
func WithScrapeFallback(p Provider) Option {
	return func(r *Resolver) { r.scrape = p }
}

// WithProgressSink installs a progress sink; the default is silent.
func WithProgressSink(sink ProgressSink) Option {
	return func(r *Resolver) { r.sink = sink }
}

// New builds a Resolver. cached is the ordered list of tier-2/3 providers
// (typically B3 CSV first, then Mais-Retorno); ttl is the cache lifetime for
// both (spec §6.5 registry_ttl_seconds, default 86400s).
func New(st Store, rdb *redis.Client, ttl time.Duration, logger *zap.Logger, cached []Provider, opts ...Option) *Resolver {
	r := &Resolver{store: st, redis: rdb, ttl: ttl, cached: cached, sink: noopSink{}, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Confidence distinguishes a classification backed by a registry source from
// a suffix guess, so a report can flag the latter instead of silently
// treating it as settled (spec §4.C "never hard-committed without registry
// confirmation").
type Confidence string

const (
	Confirmed Confidence = "CONFIRMED"
	Heuristic Confidence = "HEURISTIC"
)

// Resolution is the outcome of resolving one ticker, including which tier
// answered it so callers (and metrics) can tell a confirmed classification
// from a heuristic guess.
type Resolution struct {
	Ticker     string
	Kind       domain.AssetKind
	Name       string
	Tier       string // override | <cached provider Name(), e.g. b3_instruments, mais_retorno> | scrape | heuristic | unknown
	Confidence Confidence
}

// Resolve runs the full lookup order for one ticker (spec §4.C).
func (r *Resolver) Resolve(ctx context.Context, ticker string) (Resolution, error) {
	if asset, ok, err := r.store.GetAssetByTicker(ctx, ticker); err != nil {
		return Resolution{}, fmt.Errorf("registry: override lookup for %s: %w", ticker, err)
	} else if ok && asset.Kind != domain.KindUnknown {
		metrics.RecordRegistryLookup("override")
		return Resolution{Ticker: ticker, Kind: asset.Kind, Name: asset.Name, Tier: "override", Confidence: Confirmed}, nil
	}

	for _, p := range r.cached {
		res, err := r.resolveCached(ctx, p, ticker)
		if err != nil {
			return Resolution{}, err
		}
		if res.Tier != "" {
			return res, nil
		}
	}

	if r.scrape != nil {
		r.sink.Notify("scrape", ticker)
		kind, name, resolved, err := r.scrape.Fetch(ctx, ticker)
		if err == nil && resolved {
			metrics.RecordRegistryLookup("scrape")
			if err := r.store.SetAssetKind(ctx, ticker, kind, name); err != nil {
				return Resolution{}, err
			}
			return Resolution{Ticker: ticker, Kind: kind, Name: name, Tier: "scrape", Confidence: Confirmed}, nil
		}
	}

	kind := SuffixHeuristic(ticker)
	if kind != domain.KindUnknown {
		metrics.RecordRegistryLookup("heuristic")
		return Resolution{Ticker: ticker, Kind: kind, Tier: "heuristic", Confidence: Heuristic}, nil
	}
	metrics.RecordRegistryLookup("unknown")
	return Resolution{Ticker: ticker, Kind: domain.KindUnknown, Tier: "unknown", Confidence: Heuristic}, nil
}

// resolveCached checks the redis cache for p's classification of ticker,
// lazily refreshing through singleflight on a miss so concurrent lookups for
// the same ticker collapse into one provider call (spec §4.C "refresh is
// triggered lazily").
func (r *Resolver) resolveCached(ctx context.Context, p Provider, ticker string) (Resolution, error) {
	key := cacheKey(p.Name(), ticker)
	if r.redis != nil {
		val, err := r.redis.Get(ctx, key).Result()
		if err == nil {
			kind, name, ok := decodeCacheValue(val)
			if ok {
				metrics.RecordRegistryLookup(p.Name())
				return Resolution{Ticker: ticker, Kind: kind, Name: name, Tier: p.Name(), Confidence: Confirmed}, nil
			}
			// Cached "not found" sentinel: short-circuit to the next tier
			// without re-calling the provider.
			return Resolution{}, nil
		}
		if err != redis.Nil {
			r.logger.Warn("registry cache read failed", zap.String("tier", p.Name()), zap.Error(err))
		}
	}

	r.sink.Notify(p.Name(), ticker)
	result, err, _ := r.inflight.Do(key, func() (interface{}, error) {
		kind, name, resolved, err := p.Fetch(ctx, ticker)
		if err != nil {
			return nil, err
		}
		if r.redis != nil {
			r.redis.Set(ctx, key, encodeCacheValue(kind, name, resolved), r.ttl)
		}
		return resolution{kind, name, resolved}, nil
	})
	if err != nil {
		return Resolution{}, fmt.Errorf("registry: %s lookup for %s: %w", p.Name(), ticker, err)
	}
	res := result.(resolution)
	if !res.resolved {
		return Resolution{}, nil
	}
	metrics.RecordRegistryLookup(p.Name())
	if err := r.store.SetAssetKind(ctx, ticker, res.kind, res.name); err != nil {
		return Resolution{}, err
	}
	return Resolution{Ticker: ticker, Kind: res.kind, Name: res.name, Tier: p.Name(), Confidence: Confirmed}, nil
}

type resolution struct {
	kind     domain.AssetKind
	name     string
	resolved bool
}

func cacheKey(source, ticker string) string {
	return "registry:" + source + ":" + ticker
}

// encodeCacheValue/decodeCacheValue pack a provider result (including the
// "ticker confirmed absent" sentinel) into a single redis string value.
func encodeCacheValue(kind domain.AssetKind, name string, resolved bool) string {
	if !resolved {
		return "ABSENT"
	}
	return "OK|" + string(kind) + "|" + name
}

func decodeCacheValue(v string) (domain.AssetKind, string, bool) {
	if v == "ABSENT" {
		return domain.KindUnknown, "", false
	}
	parts := strings.SplitN(v, "|", 3)
	if len(parts) != 3 || parts[0] != "OK" {
		return domain.KindUnknown, "", false
	}
	return domain.AssetKind(parts[1]), parts[2], true
}

// SuffixHeuristic implements spec §4.C point 5: *3..*6 -> STOCK, *34 -> BDR,
// *11 is ambiguous between FII and UNITS and is refused (UNKNOWN) rather
// than guessed.
func SuffixHeuristic(ticker string) domain.AssetKind {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	n := len(ticker)
	if n < 5 {
		return domain.KindUnknown
	}
	suffix := ticker[n-2:]
	switch suffix {
	case "34":
		return domain.KindBDR
	case "11":
		return domain.KindUnknown
	}
	last := ticker[n-1]
	if last >= '3' && last <= '6' {
		return domain.KindStock
	}
	return domain.KindUnknown
}
