// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/mdconvert/internal/convert"
	"github.com/pdiddy/mdconvert/internal/quota"
	"github.com/pdiddy/mdconvert/internal/secrets"
	"github.com/pdiddy/mdconvert/internal/upload"
	"github.com/pdiddy/mdconvert/pkg/types"
)

const (
	defaultUserAgent = "mdconvert/0.1"
	defaultQuotaPath = ".mdconvert/quota.db"
	defaultAddr      = ":8080"
	defaultReadLimit = 2 * time.Minute

	// Environment fallbacks for keys not found in the secrets directory.
	apiKeyEnv    = "MDCONVERT_API_KEY"
	llmAPIKeyEnv = "MDCONVERT_LLM_API_KEY"
)

// flagKeys maps command-line flags to config keys. A flag only overrides the
// config when the running command defines it.
var flagKeys = map[string]string{
	"log-level":          "log_level",
	"endpoint":           "conversion.endpoint",
	"api-key-header":     "conversion.api_key_header",
	"timeout":            "conversion.timeout",
	"retries":            "conversion.max_retries",
	"concurrency":        "conversion.concurrency",
	"send-options":       "conversion.send_options",
	"daily-limit":        "quota.daily_limit",
	"quota-backend":      "quota.backend",
	"quota-path":         "quota.path",
	"max-files":          "upload.max_files",
	"max-file-size":      "upload.max_file_size",
	"out":                "output.dir",
	"keep-errors":        "output.keep_errors",
	"format":             "output.summary_format",
	"model":              "options.llm_model",
	"use-llm":            "options.use_llm_for_images",
	"plugins":            "options.enable_plugins",
	"doc-intel-endpoint": "options.document_intelligence_endpoint",
	"addr":               "server.addr",
	"read-timeout":       "server.read_timeout",
}

func bindFlags(cmd *cobra.Command) error {
	for flag, key := range flagKeys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding --%s: %w", flag, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	def := types.DefaultOptions()

	v.SetDefault("log_level", "warn")
	v.SetDefault("conversion.api_key_header", convert.DefaultAPIKeyHeader)
	v.SetDefault("conversion.timeout", convert.DefaultTimeout)
	v.SetDefault("conversion.user_agent", defaultUserAgent)
	v.SetDefault("conversion.max_retries", 3)
	v.SetDefault("conversion.concurrency", 1)
	v.SetDefault("quota.daily_limit", quota.DefaultDailyLimit)
	v.SetDefault("quota.backend", string(types.QuotaSQLite))
	v.SetDefault("quota.path", defaultQuotaPath)
	v.SetDefault("upload.max_files", upload.DefaultMaxFiles)
	v.SetDefault("upload.max_file_size", upload.DefaultMaxFileSize)
	v.SetDefault("output.summary_format", "json")
	v.SetDefault("options.llm_model", string(def.LLMModel))
	v.SetDefault("options.preserve_structure", def.PreserveStructure)
	v.SetDefault("options.extract_metadata", def.ExtractMetadata)
	v.SetDefault("options.include_images", def.IncludeImages)
	v.SetDefault("server.addr", defaultAddr)
	v.SetDefault("server.read_timeout", defaultReadLimit)
}

// loadConfig assembles the effective configuration from v and the loaded
// secrets. Keys never come from the config file.
func loadConfig(v *viper.Viper, s secrets.Secrets) (types.Config, error) {
	cfg := types.Config{
		Conversion: types.ConversionConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   v.GetDuration("conversion.timeout"),
				UserAgent: v.GetString("conversion.user_agent"),
			},
			Endpoint:     v.GetString("conversion.endpoint"),
			APIKeyHeader: v.GetString("conversion.api_key_header"),
			APIKey:       s.Lookup(secrets.ConversionAPIKey, apiKeyEnv),
			MaxRetries:   v.GetInt("conversion.max_retries"),
			Concurrency:  v.GetInt("conversion.concurrency"),
			SendOptions:  v.GetBool("conversion.send_options"),
		},
		Options: types.ConversionOptions{
			EnablePlugins:                v.GetBool("options.enable_plugins"),
			UseDocumentIntelligence:      v.GetBool("options.use_document_intelligence"),
			DocumentIntelligenceEndpoint: v.GetString("options.document_intelligence_endpoint"),
			UseLLMForImages:              v.GetBool("options.use_llm_for_images"),
			LLMModel:                     types.LLMModel(v.GetString("options.llm_model")),
			LLMAPIKey:                    s.Lookup(secrets.LLMAPIKey, llmAPIKeyEnv),
			PreserveStructure:            v.GetBool("options.preserve_structure"),
			ExtractMetadata:              v.GetBool("options.extract_metadata"),
			IncludeImages:                v.GetBool("options.include_images"),
		},
		Quota: types.QuotaConfig{
			DailyLimit: v.GetInt("quota.daily_limit"),
			Backend:    types.QuotaBackend(v.GetString("quota.backend")),
			Path:       v.GetString("quota.path"),
		},
		Upload: types.UploadConfig{
			MaxFiles:    v.GetInt("upload.max_files"),
			MaxFileSize: v.GetInt64("upload.max_file_size"),
		},
		Output: types.OutputConfig{
			Dir:           v.GetString("output.dir"),
			KeepErrors:    v.GetBool("output.keep_errors"),
			SummaryFormat: v.GetString("output.summary_format"),
		},
		Server: types.ServerConfig{
			Addr:        v.GetString("server.addr"),
			ReadTimeout: v.GetDuration("server.read_timeout"),
		},
	}
	if cfg.Options.DocumentIntelligenceEndpoint != "" {
		cfg.Options.UseDocumentIntelligence = true
	}
	if err := cfg.Options.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid options: %w", err)
	}
	return cfg, nil
}

// newConverter builds the HTTP conversion client for cfg.
func newConverter(cfg types.Config) (*convert.Client, error) {
	return convert.NewClient(cfg.Conversion, &http.Client{}, nil)
}
