// Package main runs the sentinel daemon: the HTTP API, the per-sentinel
// check timers and the Prometheus metrics listener in one process.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sentineld/internal/api"
	"sentineld/internal/config"
	"sentineld/internal/domain"
	"sentineld/internal/guard"
	"sentineld/internal/insight"
	"sentineld/internal/ledger"
	"sentineld/internal/ledger/stub"
	"sentineld/internal/notify"
	"sentineld/internal/observability"
	"sentineld/internal/paygate"
	"sentineld/internal/runner"
	"sentineld/internal/service"
	"sentineld/internal/storage"
	chstore "sentineld/internal/storage/clickhouse"
	"sentineld/internal/storage/memory"
	pgstore "sentineld/internal/storage/postgres"
)

// allStores holds all storage implementations.
type allStores struct {
	sentinelStore storage.SentinelStore
	activityStore storage.ActivityStore
	insightStore  storage.InsightStore
	sampleStore   storage.PriceSampleStore
	profileStore  storage.ProfileStore
}

func main() {
	logger := log.New(os.Stdout, "[sentineld] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	ledgerClient := createLedger(cfg, logger)

	g := guard.New(guard.Options{
		Ledger:   ledgerClient,
		MinGas:   cfg.MinGas,
		MinToken: cfg.MinToken,
		Logger:   logger,
	})

	fetcher := paygate.NewClient(ledgerClient, paygate.WithTimeout(cfg.RequestTimeout))

	generator := createGenerator(cfg, logger)
	notifier, err := createNotifier(cfg)
	if err != nil {
		logger.Fatalf("Failed to create notifier: %v", err)
	}

	// Track settlement finality over the receipt stream when configured.
	var confirmer ledger.ReceiptSubscriber
	if cfg.LedgerWSURL != "" {
		stream, err := ledger.NewConfirmStream(ctx, cfg.LedgerWSURL, nil, logger)
		if err != nil {
			logger.Fatalf("Failed to connect receipt stream: %v", err)
		}
		defer stream.Close()
		confirmer = stream
	}

	run := runner.New(runner.Options{
		Fetcher:       fetcher,
		Guard:         g,
		SentinelStore: stores.sentinelStore,
		ActivityStore: stores.activityStore,
		InsightStore:  stores.insightStore,
		SampleStore:   stores.sampleStore,
		Generator:     generator,
		Notifier:      notifier,
		Confirmer:     confirmer,
		PriceURL:      cfg.PriceURL,
		CheckInterval: cfg.CheckInterval,
		CheckFee:      cfg.CheckFee,
		Logger:        logger,
		BaseCtx:       ctx,
	})
	scheduler := run.Scheduler()

	svc := service.New(service.Options{
		SentinelStore: stores.sentinelStore,
		ActivityStore: stores.activityStore,
		InsightStore:  stores.insightStore,
		SampleStore:   stores.sampleStore,
		Guard:         g,
		Scheduler:     scheduler,
		Logger:        logger,
	})

	// Bring monitoring sentinels back after a restart.
	monitoring, err := stores.sentinelStore.GetByStatus(ctx, domain.StatusMonitoring)
	if err != nil {
		logger.Fatalf("Failed to load monitoring sentinels: %v", err)
	}
	scheduler.Restore(monitoring)
	logger.Printf("Restored %d monitoring sentinels", len(monitoring))

	router := api.NewRouter(svc, stores.sentinelStore, stores.activityStore, stores.insightStore, g, logger)

	apiSrv := &http.Server{Addr: cfg.APIAddr, Handler: router}
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: observability.Handler()}

	go func() {
		logger.Printf("API listening on %s", cfg.APIAddr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("API server error: %v", err)
		}
	}()
	go func() {
		logger.Printf("Metrics listening on %s", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Metrics server error: %v", err)
		}
	}()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Printf("Received signal %v, initiating graceful shutdown...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("API shutdown error: %v", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("Metrics shutdown error: %v", err)
	}

	scheduler.StopAll()
	cancel()

	logger.Println("Shutdown complete")
}

// createStores creates all required stores.
func createStores(ctx context.Context, cfg *config.Config) (*allStores, func(), error) {
	if cfg.UseMemory {
		stores := &allStores{
			sentinelStore: memory.NewSentinelStore(),
			activityStore: memory.NewActivityStore(),
			insightStore:  memory.NewInsightStore(),
			sampleStore:   memory.NewPriceSampleStore(),
			profileStore:  memory.NewProfileStore(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	stores := &allStores{
		sentinelStore: pgstore.NewSentinelStore(pool),
		activityStore: pgstore.NewActivityStore(pool, storage.DefaultActivityCap),
		insightStore:  pgstore.NewInsightStore(pool, storage.DefaultInsightCap),
		profileStore:  pgstore.NewProfileStore(pool),
	}

	// Price samples live in ClickHouse when configured, memory otherwise.
	if cfg.ClickHouseDSN != "" {
		chConn, err := chstore.NewConn(ctx, cfg.ClickHouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		stores.sampleStore = chstore.NewPriceSampleStore(chConn)
		return stores, func() { chConn.Close(); pool.Close() }, nil
	}

	stores.sampleStore = memory.NewPriceSampleStore()
	return stores, func() { pool.Close() }, nil
}

// createLedger selects the real RPC client or the in-process stub.
// Test-network runs without an RPC endpoint get a generously funded stub.
func createLedger(cfg *config.Config, logger *log.Logger) ledger.Client {
	if cfg.LedgerRPCURL == "" {
		logger.Println("No ledger RPC endpoint configured, using in-process stub ledger")
		return stub.New()
	}
	return ledger.NewRPCClient(cfg.LedgerRPCURL, cfg.Network,
		ledger.WithTimeout(cfg.RequestTimeout),
	)
}

// createGenerator selects the HTTP insight generator or the placeholder.
func createGenerator(cfg *config.Config, logger *log.Logger) insight.Generator {
	if cfg.InsightURL == "" {
		logger.Println("No insight endpoint configured, insights use placeholder analysis")
		return &insight.StaticGenerator{}
	}
	return insight.NewHTTPGenerator(cfg.InsightURL, cfg.InsightAPIKey, logger)
}

// createNotifier wires the webhook notifier plus telegram when a bot token
// is present.
func createNotifier(cfg *config.Config) (notify.Notifier, error) {
	router := &notify.Router{Webhook: notify.NewWebhookNotifier()}
	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.TelegramBotToken)
		if err != nil {
			return nil, fmt.Errorf("create telegram notifier: %w", err)
		}
		router.Telegram = tg
	}
	return router, nil
}
