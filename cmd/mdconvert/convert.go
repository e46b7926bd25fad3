// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/mdconvert/internal/output"
	"github.com/pdiddy/mdconvert/internal/quota"
	"github.com/pdiddy/mdconvert/internal/upload"
	"github.com/pdiddy/mdconvert/internal/workflow"
	"github.com/pdiddy/mdconvert/pkg/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert [files...]",
	Short: "Convert documents to Markdown",
	Long: `Convert sends each file to the conversion API and collects the Markdown.
Files are checked against the accepted types and size limits first; the whole
selection must fit in today's remaining quota or nothing is sent.

One failing file does not stop the others. With --out, each result is written
to <out>/<name>.md with YAML frontmatter; otherwise results print to stdout.`,
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().String("endpoint", "", "conversion API URL")
	convertCmd.Flags().String("api-key-header", "", "request header that carries the API key (default x-api-key)")
	convertCmd.Flags().Duration("timeout", 0, "per-file conversion timeout (default 60s)")
	convertCmd.Flags().Int("retries", 0, "retries when the API answers 429 (default 3)")
	convertCmd.Flags().Int("concurrency", 0, "files converted at once (default 1)")
	convertCmd.Flags().Bool("send-options", false, "attach conversion options to each request")
	convertCmd.Flags().Int("daily-limit", 0, "conversions allowed per day (default 10)")
	convertCmd.Flags().String("quota-backend", "", "quota storage: sqlite, file, or memory (default sqlite)")
	convertCmd.Flags().String("quota-path", "", "quota database or file path (default .mdconvert/quota.db)")
	convertCmd.Flags().Int("max-files", 0, "files accepted per run (default 10)")
	convertCmd.Flags().Int64("max-file-size", 0, "largest accepted file in bytes (default 50 MB)")
	convertCmd.Flags().StringP("out", "o", "", "directory for .md files (default: print to stdout)")
	convertCmd.Flags().Bool("keep-errors", false, "also write files for failed conversions")
	convertCmd.Flags().String("format", "", "summary format: json, yaml, or msgpack (default json)")
	convertCmd.Flags().String("summary", "", "write a batch summary to this path (- for stdout, or stderr when Markdown prints to stdout)")
	convertCmd.Flags().String("model", "", "LLM used for image descriptions (see: mdconvert models)")
	convertCmd.Flags().Bool("use-llm", false, "describe images with an LLM")
	convertCmd.Flags().Bool("plugins", false, "enable converter plugins")
	convertCmd.Flags().String("doc-intel-endpoint", "", "Document Intelligence endpoint (enables it)")

	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide one or more files to convert")
	}

	cfg, err := loadConfig(viper.GetViper(), loadedSecrets)
	if err != nil {
		return err
	}
	client, err := newConverter(cfg)
	if err != nil {
		return err
	}
	if cfg.Conversion.APIKey == "" {
		slog.Warn("no conversion API key found", "file", ".secrets/conversion-api-key", "env", apiKeyEnv)
	}

	store, closeStore, err := quota.Open(cfg.Quota)
	if err != nil {
		return err
	}
	defer closeStore()

	// Markdown goes to stdout when no directory is set, so status moves to
	// stderr to keep the two apart.
	stdout := cmd.OutOrStdout()
	status := stdout
	if cfg.Output.Dir == "" {
		status = cmd.ErrOrStderr()
	}

	sel := upload.FromPaths(args, upload.LimitsFrom(cfg.Upload))
	for _, r := range sel.Rejected {
		fmt.Fprintf(status, "skipped:   %s (%s)\n", r.Name, r.Reason)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	ctrl := workflow.New(client, quota.NewTracker(store, nil), workflow.WriterNotifier{W: status}, workflow.Config{
		DailyLimit:  cfg.Quota.DailyLimit,
		Concurrency: cfg.Conversion.Concurrency,
		Options:     cfg.Options,
	})
	batch, err := ctrl.Run(ctx, sel.Files)
	if err != nil {
		var qe *workflow.QuotaExceededError
		if errors.As(err, &qe) {
			return fmt.Errorf("daily limit reached: %d file(s) requested, %d remaining today", qe.Requested, qe.Remaining)
		}
		return err
	}

	if cfg.Output.Dir != "" {
		w := output.Writer{Dir: cfg.Output.Dir, KeepErrors: cfg.Output.KeepErrors}
		paths, err := w.WriteBatch(batch)
		for _, p := range paths {
			fmt.Fprintf(status, "wrote:     %s\n", p)
		}
		if err != nil {
			return err
		}
	} else if err := output.Print(stdout, batch); err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("summary"); path != "" {
		if err := writeSummary(summaryStream(stdout, status, cfg.Output.Dir), path, batch, cfg.Output.SummaryFormat); err != nil {
			return err
		}
	}

	if batch.HasFailures() {
		return fmt.Errorf("%d file(s) failed conversion", batch.Failed())
	}
	return nil
}

// summaryStream picks where "--summary -" goes. Without an output directory
// stdout already carries the Markdown, so the summary joins the status lines.
func summaryStream(stdout, status io.Writer, outDir string) io.Writer {
	if outDir == "" {
		return status
	}
	return stdout
}

// writeSummary encodes the batch summary to path, or to stream for "-".
func writeSummary(stream io.Writer, path string, batch types.Batch, format string) error {
	if path == "-" {
		return output.EncodeSummary(stream, batch, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating summary: %w", err)
	}
	if err := output.EncodeSummary(f, batch, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
