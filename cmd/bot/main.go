// cmd/bot/main.go
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"gearledger/internal/chat"
	"gearledger/internal/config"
	"gearledger/internal/ledger"
	"gearledger/internal/ops"
	"gearledger/internal/overdue"
	"gearledger/internal/pgstore"
	"gearledger/internal/reconcile"
	"gearledger/internal/sheets"
)

func main() {
	configPath := getEnv("GEARLEDGER_CONFIG", "config.yaml")
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := setupTracing(ctx, cfg.OTLPEndpoint)
		if err != nil {
			logger.Error("failed to set up tracing", "error", err)
			os.Exit(1)
		}
		defer shutdown()
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open ledger store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

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

	svc := ledger.NewService(store, ledger.Options{
		Logger:         logger,
		PersistTimeout: cfg.PersistTimeout(),
	})
	defer svc.Close()

	scanner := overdue.NewScanner(store, overdue.ScannerOptions{Logger: logger})
	orchestrator := reconcile.New(svc, channelAdapter{client}, logger)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("watching room", "room_id", cfg.RoomID)
		return client.Run(ctx, func(ctx context.Context, msg chat.InboundMessage) {
			orchestrator.HandleMessage(ctx, reconcile.Message{
				ID:     msg.EventID,
				Sender: msg.Sender,
				Text:   msg.Text,
				Ref:    client.Permalink(msg.EventID),
			})
		})
	})

	group.Go(func() error {
		logger.Info("overdue sweep scheduled", "interval", cfg.SweepInterval())
		return scanner.Run(ctx, cfg.SweepInterval(), func(ctx context.Context, notices []overdue.Notice) error {
			return client.Notify(ctx, overdue.FormatSummary(notices))
		})
	})

	if cfg.OpsListenAddr != "" {
		server := &http.Server{
			Addr:    cfg.OpsListenAddr,
			Handler: ops.NewHandler(scanner, logger).Router(),
		}
		group.Go(func() error {
			logger.Info("ops server listening", "addr", cfg.OpsListenAddr)
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-ctx.Done()
			return server.Shutdown(context.Background())
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("daemon stopped")
}

// channelAdapter narrows the chat client to the orchestrator's view.
type channelAdapter struct {
	client *chat.Client
}

func (a channelAdapter) Reply(ctx context.Context, msg reconcile.Message, text string) error {
	return a.client.Reply(ctx, msg.ID, text)
}

func (a channelAdapter) React(ctx context.Context, msg reconcile.Message, key string) error {
	return a.client.React(ctx, msg.ID, key)
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

func setupTracing(ctx context.Context, endpoint string) (func(), error) {
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, err
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	return func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}, nil
}

func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn", "warning":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
