// Command spectyra runs the prompt-optimization gateway: an HTTP front end
// over the spectral optimizer pipeline with Redis-backed cache and state and
// a Postgres or SQLite savings ledger.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/kataras/golog"

	"github.com/ImMrLucky/spectyra/cache"
	"github.com/ImMrLucky/spectyra/config"
	"github.com/ImMrLucky/spectyra/ledger"
	"github.com/ImMrLucky/spectyra/log"
	"github.com/ImMrLucky/spectyra/pipeline"
	"github.com/ImMrLucky/spectyra/provider"
	"github.com/ImMrLucky/spectyra/server"
	"github.com/ImMrLucky/spectyra/state"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	gl := golog.New()
	gl.SetLevel(cfg.LogLevel)
	logger := log.NewGologLogger(gl)
	log.SetDefaultLogger(logger)

	if cfg.OpenAI.APIKey == "" {
		return fmt.Errorf("no OpenAI API key configured")
	}
	openAI := provider.NewOpenAIProvider(provider.OpenAIOptions{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
	})

	var cacheStore cache.Store = cache.NewMemoryStore()
	var stateStore state.Store = state.NewMemoryStore()
	if cfg.Redis.Addr != "" {
		cacheStore = cache.NewRedisStore(cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Cache.TTL,
		})
		stateStore = state.NewRedisStore(state.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.State.TTL,
		})
		logger.Info("using redis at %s for cache and state", cfg.Redis.Addr)
	}

	ledgerWriter, err := buildLedger(cfg, logger)
	if err != nil {
		return err
	}

	opt := pipeline.New(pipeline.Options{
		Provider:          openAI,
		Embedder:          openAI,
		Cache:             cacheStore,
		State:             stateStore,
		Ledger:            ledgerWriter,
		Logger:            logger,
		MaxNodes:          &cfg.Optimizer.MaxNodes,
		SimilarityEdgeMin: cfg.Optimizer.SimilarityEdgeMin,
		CacheTTL:          cfg.Cache.TTL,
		StateTTL:          cfg.State.TTL,
		EmbedTimeout:      cfg.Optimizer.EmbedTimeout,
		ProviderTimeout:   cfg.Optimizer.ProviderTimeout,
		AuxTimeout:        cfg.Optimizer.AuxTimeout,
	})
	defer opt.Close()

	srv := server.NewServer(server.Options{
		Optimizer: opt,
		Ledger:    ledgerWriter,
		Logger:    logger,
	})
	return srv.Start(cfg.Listen)
}

// buildLedger prefers Postgres, falls back to SQLite, then in-memory.
func buildLedger(cfg config.Config, logger log.Logger) (ledger.Writer, error) {
	ctx := context.Background()

	if cfg.Postgres.URL != "" {
		w, err := ledger.NewPostgresWriter(ctx, ledger.PostgresOptions{ConnString: cfg.Postgres.URL})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := w.InitSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to init ledger schema: %w", err)
		}
		logger.Info("savings ledger on postgres")
		return w, nil
	}

	if cfg.Sqlite.Path != "" {
		w, err := ledger.NewSqliteWriter(ledger.SqliteOptions{Path: cfg.Sqlite.Path})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite ledger: %w", err)
		}
		logger.Info("savings ledger on sqlite at %s", cfg.Sqlite.Path)
		return w, nil
	}

	logger.Warn("no ledger backend configured, savings records are in-memory only")
	return ledger.NewMemoryWriter(), nil
}
