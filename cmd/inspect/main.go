package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/jeobran69367/Mspr4-produits/internal/application/factories/infrastructure"
	"github.com/jeobran69367/Mspr4-produits/internal/config"
)

func main() {
	fix := flag.Bool("fix", false, "reset processing spool rows to new")
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Storage.Driver != "postgres" {
		fmt.Fprintln(os.Stderr, "inspect reads the postgres database; set STORAGE_DRIVER=postgres")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	storage, err := infraFactory.Storage(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to open storage: %v\n", err)
		os.Exit(1)
	}
	pool, err := infraFactory.Postgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to connect to database: %v\n", err)
		os.Exit(1)
	}

	if *fix {
		n, err := storage.Spool.ReleaseStuck(ctx)
		if err != nil {
			fmt.Printf("Fix failed: %v\n", err)
		} else {
			fmt.Printf("Released %d spool rows\n", n)
		}
	}

	fmt.Println("--- Catalog ---")
	for _, table := range []string{"categories", "products", "stock"} {
		var n int64
		if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			fmt.Printf("%-10s error: %v\n", table, err)
			continue
		}
		fmt.Printf("%-10s %d\n", table, n)
	}

	fmt.Println("\n--- Low stock ---")
	low, err := storage.Stock.ListLow(ctx)
	if err != nil {
		fmt.Printf("error: %v\n", err)
	}
	for _, s := range low {
		fmt.Printf("Product: %s | Available: %d | Minimum: %d\n", s.ProductID, s.Available, s.Minimum)
	}
	if len(low) == 0 && err == nil {
		fmt.Println("none")
	}

	fmt.Println("\n--- Spool ---")
	counts, err := storage.Spool.CountByStatus(ctx)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Printf("%-10s %d\n", s, counts[s])
	}
}
