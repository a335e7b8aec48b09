// Package main runs the escrow API server: HTTP swap operations, the
// WebSocket event feed and Prometheus metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"token-swap-escrow/internal/api"
	"token-swap-escrow/internal/escrow"
	"token-swap-escrow/internal/events"
	"token-swap-escrow/internal/ledger"
	ledgermem "token-swap-escrow/internal/ledger/memory"
	ledgerpg "token-swap-escrow/internal/ledger/postgres"
	ledgerrpc "token-swap-escrow/internal/ledger/rpc"
	"token-swap-escrow/internal/storage"
	chstore "token-swap-escrow/internal/storage/clickhouse"
	"token-swap-escrow/internal/storage/memory"
	"token-swap-escrow/internal/storage/migrations"
	pgstore "token-swap-escrow/internal/storage/postgres"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for the event audit log (optional)")
	ledgerMode := flag.String("ledger", envOr("LEDGER_MODE", "postgres"), "Asset ledger backend: memory, postgres or rpc")
	ledgerEndpoint := flag.String("ledger-endpoint", os.Getenv("LEDGER_RPC_ENDPOINT"), "Remote ledger JSON-RPC endpoint (required for --ledger=rpc)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}
	if *ledgerMode == "rpc" && *ledgerEndpoint == "" {
		logger.Fatal("--ledger-endpoint is required for --ledger=rpc")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	swapStore, assetLedger, eventStore, cleanup, err := buildBackends(ctx, backendConfig{
		postgresDSN:    *postgresDSN,
		clickhouseDSN:  *clickhouseDSN,
		ledgerMode:     *ledgerMode,
		ledgerEndpoint: *ledgerEndpoint,
		useMemory:      *useMemory,
	})
	if err != nil {
		logger.Fatalf("Failed to create backends: %v", err)
	}
	defer cleanup()

	hub := api.NewHub(log.New(os.Stdout, "[events] ", log.LstdFlags|log.Lshortfile))
	sink := events.NewFanout(events.NewStoreSink(eventStore), hub)

	engine := escrow.NewEngine(escrow.Options{
		Store:  swapStore,
		Ledger: assetLedger,
		Events: sink,
		Logger: logger,
	})

	server := api.NewServer(api.Options{
		Engine:     engine,
		EventStore: eventStore,
		Hub:        hub,
		Logger:     logger,
	})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		}
	}()

	if err := server.Run(ctx, *listenAddr); err != nil {
		logger.Fatalf("Server error: %v", err)
	}
	logger.Println("Shutdown complete")
}

type backendConfig struct {
	postgresDSN    string
	clickhouseDSN  string
	ledgerMode     string
	ledgerEndpoint string
	useMemory      bool
}

// buildBackends creates the swap store, asset ledger and event store for
// the configured mode and runs migrations where they apply.
func buildBackends(ctx context.Context, cfg backendConfig) (storage.SwapStore, ledger.Ledger, storage.SwapEventStore, func(), error) {
	cleanups := []func(){}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var (
		swapStore storage.SwapStore
		pool      *pgstore.Pool
		err       error
	)
	if cfg.useMemory {
		swapStore = memory.NewSwapStore()
	} else {
		pool, err = pgstore.NewPool(ctx, cfg.postgresDSN)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		cleanups = append(cleanups, pool.Close)

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, nil, nil, fmt.Errorf("run postgres migrations: %w", err)
		}
		swapStore = pgstore.NewSwapStore(pool)
	}

	var assetLedger ledger.Ledger
	switch cfg.ledgerMode {
	case "memory":
		assetLedger = ledgermem.NewLedger()
	case "postgres":
		if pool == nil {
			cleanup()
			return nil, nil, nil, nil, fmt.Errorf("--ledger=postgres requires --postgres-dsn")
		}
		assetLedger = ledgerpg.NewLedger(pool)
	case "rpc":
		assetLedger = ledgerrpc.NewClient(cfg.ledgerEndpoint)
	default:
		cleanup()
		return nil, nil, nil, nil, fmt.Errorf("unknown ledger mode %q", cfg.ledgerMode)
	}

	var eventStore storage.SwapEventStore
	if cfg.clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.clickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
		}
		cleanups = append(cleanups, func() { conn.Close() })
		eventStore = chstore.NewSwapEventStore(conn)
	} else {
		eventStore = memory.NewSwapEventStore()
	}

	return swapStore, assetLedger, eventStore, cleanup, nil
}

// envOr returns the env value or a default.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
