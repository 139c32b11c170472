package registry

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"b3ledger/domain"
)

// B3InstrumentsProvider resolves tickers against a locally cached copy of
// B3's instruments list (spec §4.C tier 2), a CSV of ticker,kind,name rows
// refreshed out of band. It never makes a network call itself.
type B3InstrumentsProvider struct {
	path string
}

// NewB3InstrumentsProvider builds a provider reading csvPath on every Fetch;
// callers needing in-memory caching should wrap it with the Resolver's own
// redis tier rather than duplicating a cache here.
func NewB3InstrumentsProvider(csvPath string) *B3InstrumentsProvider {
	return &B3InstrumentsProvider{path: csvPath}
}

func (p *B3InstrumentsProvider) Name() string { return "b3_instruments" }

func (p *B3InstrumentsProvider) Fetch(ctx context.Context, ticker string) (domain.AssetKind, string, bool, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return "", "", false, fmt.Errorf("registry: open b3 instruments file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 3
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", "", false, fmt.Errorf("registry: read b3 instruments file: %w", err)
		}
		if strings.EqualFold(strings.TrimSpace(record[0]), ticker) {
			return domain.AssetKind(strings.TrimSpace(record[1])), strings.TrimSpace(record[2]), true, nil
		}
	}
	return "", "", false, nil
}

// MaisRetornoProvider resolves tickers through the Mais Retorno fund/stock
// lookup API (spec §4.C tier 3), following the safely-constructed-URL and
// bounded-timeout http.Client pattern used elsewhere in the corpus for
// external market-data calls.
type MaisRetornoProvider struct {
	baseURL string
	client  *http.Client
}

// NewMaisRetornoProvider builds a provider against baseURL (an empty string
// defaults to the production API host).
func NewMaisRetornoProvider(baseURL string) *MaisRetornoProvider {
	if baseURL == "" {
		baseURL = "https://maisretorno.com/api/v1"
	}
	return &MaisRetornoProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type maisRetornoLookup struct {
	Kind  string `json:"tipo"`
	Name  string `json:"nome"`
	Found bool   `json:"encontrado"`
}

func (p *MaisRetornoProvider) Name() string { return "mais_retorno" }

func (p *MaisRetornoProvider) Fetch(ctx context.Context, ticker string) (domain.AssetKind, string, bool, error) {
	parsed, err := url.Parse(p.baseURL + "/ativos/" + ticker)
	if err != nil {
		return "", "", false, fmt.Errorf("registry: invalid mais retorno url: %w", err)
	}
	if !strings.HasPrefix(parsed.String(), p.baseURL) {
		return "", "", false, fmt.Errorf("registry: url escaped configured host")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", "", false, fmt.Errorf("registry: build mais retorno request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", "", false, fmt.Errorf("registry: fetch mais retorno: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", "", false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", false, fmt.Errorf("registry: mais retorno returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", false, fmt.Errorf("registry: read mais retorno response: %w", err)
	}
	var lookup maisRetornoLookup
	if err := json.Unmarshal(body, &lookup); err != nil {
		return "", "", false, fmt.Errorf("registry: unmarshal mais retorno response: %w", err)
	}
	if !lookup.Found {
		return "", "", false, nil
	}
	return mapMaisRetornoKind(lookup.Kind), lookup.Name, true, nil
}

func mapMaisRetornoKind(raw string) domain.AssetKind {
	switch strings.ToUpper(raw) {
	case "ACAO", "STOCK":
		return domain.KindStock
	case "BDR":
		return domain.KindBDR
	case "ETF":
		return domain.KindETF
	case "FII":
		return domain.KindFII
	case "FIAGRO":
		return domain.KindFIAGRO
	case "FI-INFRA", "FIINFRA":
		return domain.KindFIInfra
	default:
		return domain.KindUnknown
	}
}
