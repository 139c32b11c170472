// Command b3ledger is a demo shell exercising the engine end-to-end: connect
// the store, wire the registry and metrics, and dispatch one CLI subcommand.
// It stands in for the external consumer the core engine is built to be
// embedded into, not a production trading terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"b3ledger/config"
	"b3ledger/engine"
	"b3ledger/metrics"
	"b3ledger/registry"
	"b3ledger/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "b3ledger:", err)
		os.Exit(1)
	}
}

func run() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	conn, cleanup, err := store.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer cleanup()

	rdb := dialRedis(cfg, logger)
	defer rdb.Close()

	resolver := registry.New(conn, rdb, time.Duration(cfg.RegistryTTLSeconds)*time.Second, logger, cachedProviders(cfg))

	metricsServer := metrics.NewServer(os.Getenv("B3LEDGER_METRICS_ADDR"), logger)
	metricsServer.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsServer.Stop(shutdownCtx)
	}()

	eng := &engine.Context{
		Config:   *cfg,
		Logger:   logger,
		Store:    conn,
		Registry: resolver,
	}

	return dispatch(ctx, eng, os.Args[1:])
}

// cachedProviders builds the registry's tier-2/tier-3 provider chain from
// config, in priority order (B3 instruments CSV before Mais-Retorno). The CSV
// tier is skipped when its path is unset; the Mais-Retorno tier is always
// added, and an unset base URL leaves it on its compiled-in default host.
func cachedProviders(cfg *config.Config) []registry.Provider {
	var providers []registry.Provider
	if cfg.B3InstrumentsCSVPath != "" {
		providers = append(providers, registry.NewB3InstrumentsProvider(cfg.B3InstrumentsCSVPath))
	}
	providers = append(providers, registry.NewMaisRetornoProvider(cfg.MaisRetornoBaseURL))
	return providers
}

// dialRedis connects with a bounded retry loop, matching the teacher's
// connect-until-ping-succeeds shape in utils/conn.go.
func dialRedis(cfg *config.Config, logger *zap.Logger) *redis.Client {
	opts := &redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		PoolSize:     20,
		MinIdleConns: 5,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	client := redis.NewClient(opts)

	backoff := 250 * time.Millisecond
	for attempt := 1; attempt <= 10; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := client.Ping(ctx).Err()
		cancel()
		if err == nil {
			return client
		}
		logger.Warn("redis ping failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(backoff)
		backoff *= 2
		if backoff > 5*time.Second {
			backoff = 5 * time.Second
		}
	}
	logger.Warn("proceeding without a confirmed redis connection; registry cache will degrade to per-call provider fetches")
	return client
}
