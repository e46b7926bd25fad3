// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/mdconvert/internal/quota"
	"github.com/pdiddy/mdconvert/internal/secrets"
	"github.com/pdiddy/mdconvert/internal/server"
	"github.com/pdiddy/mdconvert/internal/upload"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the conversion proxy",
	Long: `Serve starts an HTTP proxy in front of the conversion API. The API key
stays on the server; clients POST multipart files to /api/convert and read
their quota from /api/quota. Each client (X-Client-ID header, else remote
address) gets its own daily quota.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	serveCmd.Flags().Duration("read-timeout", 0, "request read timeout (default 2m)")
	serveCmd.Flags().String("endpoint", "", "conversion API URL")
	serveCmd.Flags().Duration("timeout", 0, "per-file conversion timeout (default 60s)")
	serveCmd.Flags().Int("concurrency", 0, "files converted at once per request (default 1)")
	serveCmd.Flags().Bool("send-options", false, "forward conversion options to the API")
	serveCmd.Flags().Int("daily-limit", 0, "conversions allowed per client per day (default 10)")
	serveCmd.Flags().String("quota-backend", "", "quota storage: sqlite, file, or memory (default sqlite)")
	serveCmd.Flags().String("quota-path", "", "quota database or file path (default .mdconvert/quota.db)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(viper.GetViper(), loadedSecrets)
	if err != nil {
		return err
	}
	if cfg.Conversion.APIKey == "" {
		return fmt.Errorf("serve requires an API key in .secrets/%s or %s", secrets.ConversionAPIKey, apiKeyEnv)
	}
	client, err := newConverter(cfg)
	if err != nil {
		return err
	}
	store, closeStore, err := quota.Open(cfg.Quota)
	if err != nil {
		return err
	}
	defer closeStore()

	slog.Info("starting proxy",
		"endpoint", cfg.Conversion.Endpoint,
		"api_key", secrets.Redact(cfg.Conversion.APIKey),
		"quota_backend", cfg.Quota.Backend,
		"daily_limit", cfg.Quota.DailyLimit)

	// Clients choose their own options; the server-side LLM key is not
	// shared with them.
	opts := cfg.Options
	opts.LLMAPIKey = ""

	srv := server.New(server.Deps{
		Converter:   client,
		Store:       store,
		DailyLimit:  cfg.Quota.DailyLimit,
		Concurrency: cfg.Conversion.Concurrency,
		Options:     opts,
		Limits:      upload.LimitsFrom(cfg.Upload),
		Version:     version,
		Logger:      slog.Default(),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", cfg.Server.Addr)
	return srv.Run(ctx, cfg.Server.Addr, cfg.Server.ReadTimeout)
}
