// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert sends files to the remote Markdown conversion API.
// Each call converts one file and always yields a ConversionResult: failures
// become inline error text in the result instead of returned errors, so one
// bad file never stops a batch.
package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"github.com/pdiddy/mdconvert/internal/httputil"
	"github.com/pdiddy/mdconvert/pkg/types"
)

const (
	// FileField is the multipart field that carries the file bytes.
	FileField = "file"
	// OptionsField carries the JSON options when SendOptions is enabled.
	OptionsField = "options"

	// DefaultAPIKeyHeader is the header the API key travels in.
	DefaultAPIKeyHeader = "x-api-key"
	// DefaultTimeout bounds a single file conversion.
	DefaultTimeout = 60 * time.Second

	defaultUserAgent = "mdconvert/0.1"

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 64 << 20
)

// Converter transforms a selected file into Markdown. Implementations never
// fail outright: a failed conversion is a result with Succeeded false.
type Converter interface {
	Convert(ctx context.Context, file types.SelectedFile, opts types.ConversionOptions) types.ConversionResult
}

// StatusError reports a non-2xx response from the conversion API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("API error: %d", e.Code)
	}
	return fmt.Sprintf("API error: %d: %s", e.Code, e.Body)
}

// Client converts files through the remote HTTP API.
type Client struct {
	http         *http.Client
	endpoint     string
	apiKey       string
	apiKeyHeader string
	userAgent    string
	timeout      time.Duration
	maxRetries   int
	sendOptions  bool
	log          *slog.Logger
}

// NewClient builds a Client from cfg. A nil httpClient uses a fresh
// http.Client; per-file deadlines come from the context, not the client.
func NewClient(cfg types.ConversionConfig, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("conversion endpoint not configured (set conversion.endpoint or --endpoint)")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid conversion endpoint %q", cfg.Endpoint)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		http:         httpClient,
		endpoint:     cfg.Endpoint,
		apiKey:       cfg.APIKey,
		apiKeyHeader: cfg.APIKeyHeader,
		userAgent:    cfg.UserAgent,
		timeout:      cfg.Timeout,
		maxRetries:   cfg.MaxRetries,
		sendOptions:  cfg.SendOptions,
		log:          logger.With("component", "convert", "endpoint", u.Host),
	}
	if c.apiKeyHeader == "" {
		c.apiKeyHeader = DefaultAPIKeyHeader
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	return c, nil
}

// Convert posts file to the API and returns its Markdown. Transport errors,
// timeouts, and non-2xx statuses produce a failed result whose content names
// the file and the error.
func (c *Client) Convert(ctx context.Context, file types.SelectedFile, opts types.ConversionOptions) types.ConversionResult {
	start := time.Now()
	content, err := c.convert(ctx, file, opts)
	if err != nil {
		c.log.Warn("conversion failed", "file", file.Name, "error", err, "elapsed", time.Since(start))
		return types.ConversionResult{
			SourceFile: file,
			Content:    ErrorContent(file.Name, err),
		}
	}
	c.log.Debug("converted", "file", file.Name, "bytes", len(content), "elapsed", time.Since(start))
	return types.ConversionResult{
		SourceFile: file,
		Content:    content,
		Succeeded:  true,
	}
}

func (c *Client) convert(ctx context.Context, file types.SelectedFile, opts types.ConversionOptions) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, contentType, err := c.buildBody(file, opts)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHeader, c.apiKey)
	}

	resp, err := httputil.DoWithRetry(ctx, c.http, req, c.maxRetries)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("timed out after %s: %w", c.timeout, err)
		}
		return "", fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	return UnwrapEnvelope(string(data)), nil
}

// buildBody encodes file (and optionally opts) as multipart/form-data.
func (c *Client) buildBody(file types.SelectedFile, opts types.ConversionOptions) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FileField, file.Name))
	mimeType := file.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h.Set("Content-Type", mimeType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", fmt.Errorf("writing file part: %w", err)
	}

	if c.sendOptions {
		encoded, err := json.Marshal(opts)
		if err != nil {
			return nil, "", fmt.Errorf("encoding options: %w", err)
		}
		if err := mw.WriteField(OptionsField, string(encoded)); err != nil {
			return nil, "", fmt.Errorf("writing options field: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// UnwrapEnvelope returns the "result" string of a JSON envelope such as
// {"result": "# Title"}. Any other body, JSON or not, is returned unchanged.
func UnwrapEnvelope(body string) string {
	var env struct {
		Result *string `json:"result"`
	}
	if err := json.Unmarshal([]byte(body), &env); err != nil || env.Result == nil {
		return body
	}
	return *env.Result
}

// ErrorContent formats the inline Markdown shown in place of a failed file.
func ErrorContent(fileName string, err error) string {
	return fmt.Sprintf("**Error:** Could not convert file `%s`\n\n%v", fileName, err)
}
