// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys from a directory of plain-text files, with
// environment variables as a fallback. Each file is one secret: the file name
// is the key name and the trimmed contents are the value.
//
// Known key files: conversion-api-key, llm-api-key.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Key file names.
const (
	ConversionAPIKey = "conversion-api-key"
	LLMAPIKey        = "llm-api-key"
)

// Secrets maps key names to values.
type Secrets map[string]string

// Load reads every regular file in dir. A missing directory yields an empty
// set. Unreadable files are logged and skipped. A nil logger uses
// slog.Default.
func Load(dir string, logger *slog.Logger) (Secrets, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Secrets{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	out := Secrets{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("skipping unreadable secret", "name", name, "error", err)
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			out[name] = value
		}
	}
	return out, nil
}

// Lookup returns the secret called name, or the value of envVar when no
// file provided it.
func (s Secrets) Lookup(name, envVar string) string {
	if v := s[name]; v != "" {
		return v
	}
	if envVar == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(envVar))
}

// Redact masks a secret for display, keeping at most the last four
// characters of long values.
func Redact(v string) string {
	switch {
	case v == "":
		return "(not set)"
	case len(v) <= 8:
		return "****"
	default:
		return "****" + v[len(v)-4:]
	}
}
