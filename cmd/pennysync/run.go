package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/rushikc/pennywise-sync/pkg/api"
	"github.com/rushikc/pennywise-sync/pkg/client"
	"github.com/rushikc/pennywise-sync/pkg/config"
	"github.com/rushikc/pennywise-sync/pkg/reader/gmail"
	"github.com/rushikc/pennywise-sync/pkg/rules"
	"github.com/rushikc/pennywise-sync/pkg/store/jsonfile"
	"github.com/rushikc/pennywise-sync/pkg/store/postgres"
	"github.com/rushikc/pennywise-sync/pkg/sync"
)

// Fallback parsing rules, compiled in so a run works without network access
// to the published rule document.
//
//go:embed config/emailParsingConfig.json
var defaultRulesJSON []byte

// expenseStore is what both backing stores provide to the runner.
type expenseStore interface {
	api.ExpenseSink
	api.CursorStore
	api.VendorTagStore
	api.Locker
}

func runSync(logger *slog.Logger, daemon bool) error {
	cfg, err := config.Load("config.json")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, cleanup, err := buildRunner(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if !daemon {
		return runOnce(ctx, runner, logger)
	}

	interval := time.Duration(cfg.IntervalMinutes) * time.Minute
	logger.Info("daemon started", "interval", interval)

	if err := runOnce(ctx, runner, logger); err != nil {
		logger.Error("sync batch failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-ticker.C:
			if err := runOnce(ctx, runner, logger); err != nil {
				logger.Error("sync batch failed", "error", err)
			}
		}
	}
}

func runOnce(ctx context.Context, runner *sync.Runner, logger *slog.Logger) error {
	summary, err := runner.RunBatch(ctx)
	if errors.Is(err, api.ErrLocked) {
		logger.Warn("another sync run holds the lease, skipping this batch")
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info("sync batch complete",
		"processed", summary.Processed,
		"expenses", summary.Expenses,
		"skipped", summary.Skipped,
	)
	return nil
}

func runBackfill(logger *slog.Logger) error {
	cfg, err := config.Load("config.json")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, cleanup, err := buildRunner(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	tagged, err := runner.BackfillTags(ctx)
	if err != nil {
		return err
	}

	logger.Info("tag backfill complete", "tagged", tagged)
	return nil
}

// buildRunner wires the store, Gmail source and rule loader into a batch
// runner. The returned cleanup closes the store.
func buildRunner(cfg config.Config, logger *slog.Logger) (*sync.Runner, func(), error) {
	store, cleanup, err := openStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	httpClient, err := client.New(cfg.SecretsFilePath, gmailapi.GmailReadonlyScope)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	source, err := gmail.New(httpClient, gmail.Config{Query: cfg.GmailQuery}, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var loader rules.Loader
	if cfg.RulesURL != "" {
		loader = rules.FromURL(httpClient, cfg.RulesURL, cfg.RulesVersion)
	} else {
		ruleSet, err := rules.Parse(defaultRulesJSON, cfg.RulesVersion)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("parsing built-in rules: %w", err)
		}
		loader = rules.Static(ruleSet)
	}

	runner, err := sync.New(sync.Options{
		Scope:   cfg.Scope,
		Source:  source,
		Sink:    store,
		Cursors: store,
		Tags:    store,
		Locker:  store,
		Rules:   loader,
		Logger:  logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return runner, cleanup, nil
}

func openStore(cfg config.Config, logger *slog.Logger) (expenseStore, func(), error) {
	switch cfg.Store {
	case "postgres":
		store, err := postgres.New(postgres.Config{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return store, store.Close, nil
	case "jsonfile":
		store, err := jsonfile.New(cfg.DataDir, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("opening jsonfile store: %w", err)
		}
		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q (expected postgres or jsonfile)", cfg.Store)
	}
}
