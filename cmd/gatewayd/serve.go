package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/riftline/inspectgate/internal/bot"
	"github.com/riftline/inspectgate/internal/bot/gcclient"
	"github.com/riftline/inspectgate/internal/cache"
	"github.com/riftline/inspectgate/internal/config"
	"github.com/riftline/inspectgate/internal/httpapi"
	"github.com/riftline/inspectgate/internal/inspect"
	"github.com/riftline/inspectgate/internal/metrics"
	"github.com/riftline/inspectgate/internal/persistence/postgres"
	"github.com/riftline/inspectgate/internal/queue"
	"github.com/riftline/inspectgate/internal/schema"
	"github.com/riftline/inspectgate/internal/worker"
	"github.com/riftline/inspectgate/internal/workermanager"
)

const repoTimeout = 3 * time.Second

func serveCmd(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway's bot pool and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	schemaCtx, cancel := context.WithTimeout(ctx, cfg.Schema.FetchTimeout)
	catalog, err := schema.NewClient(cfg.Schema.ItemSchemaURL, cfg.Schema.FetchTimeout).Fetch(schemaCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("fetching item schema: %w", err)
	}

	db, err := sqlx.Connect("postgres", cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()

	redisClient := cache.NewRedisClient(cfg.RedisAddr, "", 0)
	defer redisClient.Close()

	registry := metrics.NewRegistry()

	assetRepo := postgres.NewAssetRepo(db, repoTimeout)
	historyRepo := postgres.NewHistoryRepo(db, repoTimeout)
	rankingRepo := postgres.NewRankingRepo(db, repoTimeout)
	assetCache := cache.New(redisClient, assetRepo, cache.DefaultTTL).WithRecorder(registry)

	accounts, err := workermanager.LoadAccounts(cfg.AccountsFile)
	if err != nil {
		return fmt.Errorf("loading accounts: %w", err)
	}

	botCfg := bot.DefaultConfig()
	manager := workermanager.New(workermanager.Config{
		BotsPerWorker:     cfg.BotsPerWorker,
		MaxInspectRetries: cfg.MaxInspectRetries,
		WorkerConfig: worker.Config{
			MaxRetries:    cfg.MaxRetries,
			BotConfig:     botCfg,
			SessionDir:    cfg.SessionPath,
			BlacklistPath: cfg.BlacklistPath,
			NewClient:     gcClientFactory(cfg),
			StatsInterval: cfg.StatsUpdateInterval,
		},
	})

	// The pool gets its own lifetime so a SIGTERM drains workers through
	// Shutdown (bots log off) before their run loops are cancelled.
	poolCtx, poolCancel := context.WithCancel(context.Background())
	defer poolCancel()
	if cfg.WorkerEnabled {
		manager.Start(poolCtx, accounts)
	} else {
		log.Warn().Msg("WORKER_ENABLED=false: serving cached/persisted lookups only, no bot pool started")
	}

	admission := queue.New(cfg.MaxQueueSize)
	inspectSvc := inspect.NewService(inspect.Config{
		Cache:        assetCache,
		Assets:       assetRepo,
		Histories:    historyRepo,
		Rankings:     rankingRepo,
		Manager:      manager,
		Admission:    admission,
		Schema:       catalog,
		QueueTimeout: cfg.QueueTimeout,
	})

	server := httpapi.NewServer(":"+strconv.Itoa(cfg.HTTPPort), httpapi.Config{
		Inspect: inspectSvc,
		Stats:   manager,
		Metrics: registry,
	})

	go samplePoolGauges(ctx, registry, manager, admission, cfg.StatsUpdateInterval)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		if cfg.WorkerEnabled {
			manager.Shutdown()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// samplePoolGauges mirrors the manager's aggregate snapshot and the
// admission set's depth into the Prometheus gauges on the stats cadence.
func samplePoolGauges(ctx context.Context, registry *metrics.Registry, manager *workermanager.Manager, admission *queue.Admission, interval time.Duration) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := manager.Stats()
			registry.SetPoolGauges(stats.ReadyBots, stats.BusyBots, admission.Len())
		}
	}
}

// gcClientFactory closes over the dial target and proxy template so each
// spawned bot gets its own websocket session with its own "[session]"
// proxy identity.
func gcClientFactory(cfg config.Config) worker.ClientFactory {
	return func(username string) gcclient.GCClient {
		return gcclient.NewSteamGCClient(gcclient.DialOptions{
			URL:           cfg.GCRelayURL,
			Username:      username,
			SessionID:     strconv.FormatInt(time.Now().UnixNano(), 36),
			ProxyTemplate: cfg.ProxyURL,
		})
	}
}
