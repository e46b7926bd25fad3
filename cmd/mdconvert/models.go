package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/mdconvert/internal/upload"
	"github.com/pdiddy/mdconvert/pkg/types"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the LLM models and file types the converter accepts",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Models:")
		for i, m := range types.Models {
			if i == 0 {
				fmt.Fprintf(out, "  %s (default)\n", m)
				continue
			}
			fmt.Fprintf(out, "  %s\n", m)
		}
		fmt.Fprintln(out, "\nFile types:")
		for _, ext := range upload.Extensions() {
			mt, _ := upload.MimeType(ext)
			fmt.Fprintf(out, "  %-6s %s\n", ext, mt)
		}
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
