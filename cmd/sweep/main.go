// cmd/sweep/main.go

// sweep runs one overdue sweep and posts the summary to the channel.
// For deployments that prefer an external scheduler (cron, systemd
// timers) over the daemon's built-in interval.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"time"

	_ "github.com/lib/pq"

	"gearledger/internal/chat"
	"gearledger/internal/config"
	"gearledger/internal/ledger"
	"gearledger/internal/overdue"
	"gearledger/internal/pgstore"
	"gearledger/internal/sheets"
)

func main() {
	configPath := os.Getenv("GEARLEDGER_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open ledger store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	scanner := overdue.NewScanner(store, overdue.ScannerOptions{Logger: logger})
	notices, err := scanner.Sweep(ctx)
	if err != nil {
		logger.Error("sweep failed", "error", err)
		os.Exit(1)
	}
	if len(notices) == 0 {
		logger.Info("nothing overdue")
		return
	}

	client, err := chat.NewClient(chat.Config{
		HomeserverURL:  cfg.HomeserverURL,
		AccessToken:    cfg.AccessToken,
		UserID:         cfg.UserID,
		RoomID:         cfg.RoomID,
		Logger:         logger,
		SendsPerSecond: cfg.SendsPerSecond,
	})
	if err != nil {
		logger.Error("failed to create chat client", "error", err)
		os.Exit(1)
	}
	if err := client.Notify(ctx, overdue.FormatSummary(notices)); err != nil {
		logger.Error("failed to post overdue summary", "error", err)
		os.Exit(1)
	}
	logger.Info("overdue summary posted", "count", len(notices))
}

func openStore(ctx context.Context, cfg config.Config) (ledger.Store, func(), error) {
	switch cfg.Store {
	case config.StoreSheets:
		credentials, err := sheets.NewServiceAccount(cfg.ServiceAccountKeyFile, nil)
		if err != nil {
			return nil, nil, err
		}
		store, err := sheets.NewStore(sheets.Config{
			SpreadsheetID: cfg.SpreadsheetID,
			SheetName:     cfg.SheetName,
			Credentials:   credentials,
			HTTPClient:    &http.Client{Timeout: cfg.PersistTimeout()},
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil

	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		store, err := pgstore.NewStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, func() { db.Close() }, nil

	default:
		return ledger.NewMemoryStore(), func() {}, nil
	}
}
