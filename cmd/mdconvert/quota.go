// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/mdconvert/internal/quota"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show today's conversion count and remaining allowance",
	RunE:  runQuota,
}

func init() {
	quotaCmd.Flags().Int("daily-limit", 0, "conversions allowed per day (default 10)")
	quotaCmd.Flags().String("quota-backend", "", "quota storage: sqlite, file, or memory (default sqlite)")
	quotaCmd.Flags().String("quota-path", "", "quota database or file path (default .mdconvert/quota.db)")

	rootCmd.AddCommand(quotaCmd)
}

func runQuota(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(viper.GetViper(), loadedSecrets)
	if err != nil {
		return err
	}
	store, closeStore, err := quota.Open(cfg.Quota)
	if err != nil {
		return err
	}
	defer closeStore()

	limit := cfg.Quota.DailyLimit
	if limit <= 0 {
		limit = quota.DefaultDailyLimit
	}
	date := quota.Day(time.Now())
	used := quota.NewTracker(store, nil).CurrentCount(cmd.Context(), date)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Date:      %s\n", date)
	fmt.Fprintf(out, "Used:      %d/%d\n", used, limit)
	fmt.Fprintf(out, "Remaining: %d\n", max(limit-used, 0))
	return nil
}
