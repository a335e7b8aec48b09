// Package main runs the expiry sweep: it finds pending swaps whose deadline
// and grace period have lapsed and refunds them. Expiry is permissionless,
// so the sweep needs no keys, only database access.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"token-swap-escrow/internal/escrow"
	"token-swap-escrow/internal/ledger"
	ledgerpg "token-swap-escrow/internal/ledger/postgres"
	ledgerrpc "token-swap-escrow/internal/ledger/rpc"
	"token-swap-escrow/internal/storage/migrations"
	pgstore "token-swap-escrow/internal/storage/postgres"
)

func main() {
	loadEnvFile()

	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	ledgerMode := flag.String("ledger", envOr("LEDGER_MODE", "postgres"), "Asset ledger backend: postgres or rpc")
	ledgerEndpoint := flag.String("ledger-endpoint", os.Getenv("LEDGER_RPC_ENDPOINT"), "Remote ledger JSON-RPC endpoint (required for --ledger=rpc)")
	interval := flag.Duration("interval", time.Minute, "Sweep interval")
	once := flag.Bool("once", false, "Run a single sweep and exit")

	flag.Parse()

	logger := log.New(os.Stdout, "[sweep] ", log.LstdFlags|log.Lshortfile)

	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}
	if *ledgerMode == "rpc" && *ledgerEndpoint == "" {
		logger.Fatal("--ledger-endpoint is required for --ledger=rpc")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, stopping...", sig)
		cancel()
	}()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	var assetLedger ledger.Ledger
	switch *ledgerMode {
	case "postgres":
		assetLedger = ledgerpg.NewLedger(pool)
	case "rpc":
		assetLedger = ledgerrpc.NewClient(*ledgerEndpoint)
	default:
		logger.Fatalf("unknown ledger mode %q", *ledgerMode)
	}

	store := pgstore.NewSwapStore(pool)
	engine := escrow.NewEngine(escrow.Options{
		Store:  store,
		Ledger: assetLedger,
		Logger: logger,
	})

	sweep := func() {
		expired, failed, err := runSweep(ctx, engine, store)
		if err != nil {
			logger.Printf("Sweep error: %v", err)
			return
		}
		if expired > 0 || failed > 0 {
			logger.Printf("Sweep done: %d expired, %d failed", expired, failed)
		}
	}

	sweep()
	if *once {
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Println("Shutdown complete")
			return
		case <-ticker.C:
			sweep()
		}
	}
}

// runSweep expires every lapsed pending swap. A swap raced to a terminal
// state by someone else is not a failure.
func runSweep(ctx context.Context, engine *escrow.Engine, store *pgstore.SwapStore) (expired, failed int, err error) {
	lapsed, err := store.GetLapsed(ctx, time.Now().Unix())
	if err != nil {
		return 0, 0, err
	}

	for _, rec := range lapsed {
		_, err := engine.Expire(ctx, escrow.ExpireRequest{SwapID: rec.ID})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, escrow.ErrNotPending):
			// Lost the race, nothing to do.
		default:
			failed++
		}
	}
	return expired, failed, nil
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
		return
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

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
