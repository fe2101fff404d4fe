package main

import (
	"fmt"
	"log/slog"
	"os"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/rushikc/pennywise-sync/pkg/client"
	"github.com/rushikc/pennywise-sync/pkg/config"
)

// runSetup runs the interactive OAuth flow once so later runs can use the
// cached token.
func runSetup(logger *slog.Logger) error {
	cfg, err := config.Load("config.json")
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.SecretsFilePath); err != nil {
		return fmt.Errorf(
			"client secret file %s not found; download the OAuth credentials from the Google Cloud console first: %w",
			cfg.SecretsFilePath, err,
		)
	}

	if _, err := client.New(cfg.SecretsFilePath, gmailapi.GmailReadonlyScope); err != nil {
		return err
	}

	logger.Info("setup complete, token cached", "token", client.TokenFile)
	return nil
}
