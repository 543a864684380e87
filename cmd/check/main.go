// Package main runs a single priced check for one sentinel and prints the
// resulting activity as JSON. Useful for verifying wallet funding and the
// payment path without starting the daemon.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"sentineld/internal/config"
	"sentineld/internal/guard"
	"sentineld/internal/insight"
	"sentineld/internal/ledger"
	"sentineld/internal/ledger/stub"
	"sentineld/internal/notify"
	"sentineld/internal/paygate"
	"sentineld/internal/runner"
	"sentineld/internal/storage/memory"
	pgstore "sentineld/internal/storage/postgres"
)

func main() {
	sentinelID := flag.String("sentinel-id", "", "Sentinel to check (required)")
	flag.Parse()

	logger := log.New(os.Stdout, "[check] ", log.LstdFlags)

	if *sentinelID == "" {
		logger.Fatal("--sentinel-id is required")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if cfg.UseMemory {
		logger.Fatal("USE_MEMORY=true has no persisted sentinels to check")
	}

	ctx := context.Background()

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	var ledgerClient ledger.Client
	if cfg.LedgerRPCURL == "" {
		logger.Println("No ledger RPC endpoint configured, using stub ledger")
		ledgerClient = stub.New()
	} else {
		ledgerClient = ledger.NewRPCClient(cfg.LedgerRPCURL, cfg.Network, ledger.WithTimeout(cfg.RequestTimeout))
	}

	sentinels := pgstore.NewSentinelStore(pool)
	sentinel, err := sentinels.GetByID(ctx, *sentinelID)
	if err != nil {
		logger.Fatalf("Failed to load sentinel %s: %v", *sentinelID, err)
	}

	g := guard.New(guard.Options{
		Ledger:   ledgerClient,
		MinGas:   cfg.MinGas,
		MinToken: cfg.MinToken,
		Logger:   logger,
	})

	run := runner.New(runner.Options{
		Fetcher:       paygate.NewClient(ledgerClient, paygate.WithTimeout(cfg.RequestTimeout)),
		Guard:         g,
		SentinelStore: sentinels,
		ActivityStore: pgstore.NewActivityStore(pool, 0),
		InsightStore:  pgstore.NewInsightStore(pool, 0),
		SampleStore:   memory.NewPriceSampleStore(),
		Generator:     &insight.StaticGenerator{},
		Notifier:      &notify.Router{Webhook: notify.NewWebhookNotifier()},
		PriceURL:      cfg.PriceURL,
		CheckFee:      cfg.CheckFee,
		Logger:        logger,
	})

	activity, err := run.RunCheck(ctx, sentinel)
	if err != nil {
		logger.Fatalf("Check failed: %v", err)
	}
	if activity == nil {
		logger.Fatal("Check skipped: another check is in flight")
	}

	out, err := json.MarshalIndent(activity, "", "  ")
	if err != nil {
		logger.Fatalf("Failed to marshal activity: %v", err)
	}
	os.Stdout.Write(out)
	os.Stdout.Write([]byte("\n"))
}
