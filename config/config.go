// Package config loads the engine's tunables from the process environment,
// matching the teacher's internal/data/conn.go getEnv(key, fallback) idiom
// rather than pulling in a configuration framework: every knob in spec §6.5
// has a single documented env var and default.
package config

import (
	"encoding/json"
	"os"
	"strconv"

	"b3ledger/decimal"
	"b3ledger/domain"
)

// Config holds every configuration knob spec §6.5 enumerates, plus the
// connection strings the ambient store/registry stack needs.
type Config struct {
	// DatabaseURL is the pgx connection string for the persistent store.
	DatabaseURL string
	// RedisAddr is the host:port the registry's TTL cache dials.
	RedisAddr     string
	RedisPassword string

	// TaxRates maps a TaxCategory to its rate (spec §4.F point 5); overridable
	// in full, never hard-coded inside the tax package itself.
	TaxRates map[domain.TaxCategory]decimal.Amount

	// StockSwingExemptionThreshold is the monthly gross-sales ceiling at or
	// below which STOCK_SWING gains are untaxed (spec §6.5, default 20000.00).
	StockSwingExemptionThreshold decimal.Amount

	// DecimalDivisionPrecision is the scale used by average-cost division
	// (spec §6.5, default 10).
	DecimalDivisionPrecision int32

	// SettlementDays is the T+N business-day settlement lag (spec §6.5, default 2).
	SettlementDays int

	// DisablePriceFetch forces every PriceSource lookup to return absent,
	// for deterministic tests and offline runs (spec §6.3, §6.5).
	DisablePriceFetch bool

	// RegistryTTLSeconds is the cache lifetime for asset-registry lookups
	// (spec §6.5, default 86400 = 24h).
	RegistryTTLSeconds int64

	// B3InstrumentsCSVPath points at a locally cached copy of B3's
	// instruments list for the registry's tier-2 provider. Empty disables it.
	B3InstrumentsCSVPath string
	// MaisRetornoBaseURL overrides the tier-3 provider's API host; empty uses
	// its compiled-in default.
	MaisRetornoBaseURL string
}

// defaultTaxRates is the compiled-in table spec §4.F point 5 names. Treated as
// data: FromEnv only ever overlays this, never hard-codes a rate lookup
// elsewhere in the engine (spec §9 open question on the post-2026 table).
func defaultTaxRates() map[domain.TaxCategory]decimal.Amount {
	return map[domain.TaxCategory]decimal.Amount{
		"STOCK_SWING":              decimal.MustFromString("0.15"),
		"STOCK_DAY":                decimal.MustFromString("0.20"),
		"BDR_SWING":                decimal.MustFromString("0.15"),
		"BDR_DAY":                  decimal.MustFromString("0.20"),
		"ETF_SWING":                decimal.MustFromString("0.15"),
		"ETF_DAY":                  decimal.MustFromString("0.20"),
		"OPTION_SWING":             decimal.MustFromString("0.15"),
		"OPTION_DAY":               decimal.MustFromString("0.20"),
		"FII_SWING_PRE_2026":       decimal.MustFromString("0.20"),
		"FII_SWING_POST_2026":      decimal.MustFromString("0.175"),
		"FII_DAY":                  decimal.MustFromString("0.20"),
		"FIAGRO_SWING_PRE_2026":    decimal.MustFromString("0.20"),
		"FIAGRO_SWING_POST_2026":   decimal.MustFromString("0.175"),
		"FIAGRO_DAY":               decimal.MustFromString("0.20"),
		"FI_INFRA_SWING_PRE_2026":  decimal.MustFromString("0.20"),
		"FI_INFRA_SWING_POST_2026": decimal.MustFromString("0.175"),
		"FI_INFRA_DAY":             decimal.MustFromString("0.20"),
	}
}

// FromEnv builds a Config from the process environment, falling back to the
// spec's documented defaults for anything unset.
func FromEnv() (*Config, error) {
	dbHost := getEnv("B3LEDGER_DB_HOST", "localhost")
	dbPort := getEnv("B3LEDGER_DB_PORT", "5432")
	dbUser := getEnv("B3LEDGER_DB_USER", "postgres")
	dbPassword := getEnv("B3LEDGER_DB_PASSWORD", "")
	dbName := getEnv("B3LEDGER_DB_NAME", "b3ledger")

	databaseURL := "postgres://" + dbUser + ":" + dbPassword + "@" + dbHost + ":" + dbPort + "/" + dbName

	redisHost := getEnv("B3LEDGER_REDIS_HOST", "localhost")
	redisPort := getEnv("B3LEDGER_REDIS_PORT", "6379")

	precision, err := getEnvInt32("B3LEDGER_DECIMAL_DIVISION_PRECISION", 10)
	if err != nil {
		return nil, err
	}
	settlementDays, err := getEnvInt("B3LEDGER_SETTLEMENT_DAYS", 2)
	if err != nil {
		return nil, err
	}
	disablePriceFetch, err := getEnvBool("B3LEDGER_DISABLE_PRICE_FETCH", false)
	if err != nil {
		return nil, err
	}
	registryTTL, err := getEnvInt64("B3LEDGER_REGISTRY_TTL_SECONDS", 86400)
	if err != nil {
		return nil, err
	}
	exemption, err := decimal.NewFromString(getEnv("B3LEDGER_STOCK_SWING_EXEMPTION_THRESHOLD", "20000.00"))
	if err != nil {
		return nil, err
	}
	// B3LEDGER_TAX_RATES is a JSON object of category -> rate; each entry it
	// names replaces the default for that category.
	taxRates := defaultTaxRates()
	if raw, ok := os.LookupEnv("B3LEDGER_TAX_RATES"); ok {
		var overrides map[domain.TaxCategory]decimal.Amount
		if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
			return nil, err
		}
		for category, rate := range overrides {
			taxRates[category] = rate
		}
	}

	return &Config{
		DatabaseURL:                  databaseURL,
		RedisAddr:                    redisHost + ":" + redisPort,
		RedisPassword:                getEnv("B3LEDGER_REDIS_PASSWORD", ""),
		TaxRates:                     taxRates,
		StockSwingExemptionThreshold: exemption,
		DecimalDivisionPrecision:     precision,
		SettlementDays:               settlementDays,
		DisablePriceFetch:            disablePriceFetch,
		RegistryTTLSeconds:           registryTTL,
		B3InstrumentsCSVPath:         getEnv("B3LEDGER_B3_INSTRUMENTS_CSV_PATH", ""),
		MaisRetornoBaseURL:           getEnv("B3LEDGER_MAIS_RETORNO_BASE_URL", ""),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvInt32(key string, fallback int32) (int32, error) {
	v, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(n), nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	v, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}
