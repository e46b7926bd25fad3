// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/mdconvert/internal/httputil"
	"github.com/pdiddy/mdconvert/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

const testKey = "test-key-123"

func sampleFile(name string) types.SelectedFile {
	return types.SelectedFile{
		Name:     name,
		Size:     11,
		MimeType: "application/pdf",
		Data:     []byte("%PDF-1.4 ok"),
	}
}

// newAPI starts a fake conversion API that checks the request shape and
// delegates the reply to respond.
func newAPI(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get(DefaultAPIKeyHeader) != testKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		respond(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestClient(t *testing.T, ts *httptest.Server, mutate ...func(*types.ConversionConfig)) *Client {
	t.Helper()
	cfg := types.ConversionConfig{
		Endpoint: ts.URL + "/convert",
		APIKey:   testKey,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := NewClient(cfg, ts.Client(), nil)
	require.NoError(t, err)
	return c
}

func TestConvert_ResponseBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"plain markdown", "## Title\n\nbody", "## Title\n\nbody"},
		{"json envelope", `{"result":"## Title"}`, "## Title"},
		{"envelope with extra fields", `{"result":"# Doc","pages":3}`, "# Doc"},
		{"json without result", `{"markdown":"# Doc"}`, `{"markdown":"# Doc"}`},
		{"non-string result", `{"result":42}`, `{"result":42}`},
		{"json array", `["a","b"]`, `["a","b"]`},
		{"broken json", `{"result":`, `{"result":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newAPI(t, func(w http.ResponseWriter, _ *http.Request) {
				io.WriteString(w, tt.body)
			})
			c := newTestClient(t, ts)

			res := c.Convert(context.Background(), sampleFile("a.pdf"), types.DefaultOptions())

			assert.True(t, res.Succeeded)
			assert.Equal(t, tt.want, res.Content)
			assert.Equal(t, "a.pdf", res.SourceFile.Name)
		})
	}
}

func TestConvert_MultipartRequest(t *testing.T) {
	var gotName, gotData, gotType, gotOptions string
	ts := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile(FileField)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		gotName, gotData, gotType = hdr.Filename, string(data), hdr.Header.Get("Content-Type")
		gotOptions = r.FormValue(OptionsField)
		io.WriteString(w, "# ok")
	})
	c := newTestClient(t, ts)

	res := c.Convert(context.Background(), sampleFile("report.pdf"), types.DefaultOptions())

	require.True(t, res.Succeeded, res.Content)
	assert.Equal(t, "report.pdf", gotName)
	assert.Equal(t, "%PDF-1.4 ok", gotData)
	assert.Equal(t, "application/pdf", gotType)
	assert.Empty(t, gotOptions, "options are not sent unless enabled")
}

func TestConvert_SendOptions(t *testing.T) {
	var gotOptions string
	ts := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		gotOptions = r.FormValue(OptionsField)
		io.WriteString(w, "# ok")
	})
	c := newTestClient(t, ts, func(cfg *types.ConversionConfig) { cfg.SendOptions = true })

	opts := types.DefaultOptions()
	opts.UseLLMForImages = true
	opts.LLMModel = types.ModelClaude3Haiku
	opts.LLMAPIKey = "sk-never-sent"

	res := c.Convert(context.Background(), sampleFile("a.pdf"), opts)
	require.True(t, res.Succeeded)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(gotOptions), &decoded))
	assert.Equal(t, true, decoded["use_llm_for_images"])
	assert.Equal(t, "claude-3-haiku", decoded["llm_model"])
	assert.NotContains(t, gotOptions, "sk-never-sent")
}

func TestConvert_StatusFailure(t *testing.T) {
	ts := newAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := newTestClient(t, ts)

	res := c.Convert(context.Background(), sampleFile("fileA.pdf"), types.DefaultOptions())

	assert.False(t, res.Succeeded)
	assert.Contains(t, res.Content, "fileA.pdf")
	assert.Contains(t, res.Content, "**Error:**")
	assert.Contains(t, res.Content, "API error: 500")
}

func TestConvert_MissingKeyRejected(t *testing.T) {
	ts := newAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "# never")
	})
	c := newTestClient(t, ts, func(cfg *types.ConversionConfig) { cfg.APIKey = "" })

	res := c.Convert(context.Background(), sampleFile("a.pdf"), types.DefaultOptions())
	assert.False(t, res.Succeeded)
	assert.Contains(t, res.Content, "API error: 401")
}

func TestConvert_CustomKeyHeader(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, "# ok")
	}))
	defer ts.Close()

	c, err := NewClient(types.ConversionConfig{
		Endpoint:     ts.URL,
		APIKey:       "Bearer tok",
		APIKeyHeader: "Authorization",
	}, ts.Client(), nil)
	require.NoError(t, err)

	res := c.Convert(context.Background(), sampleFile("a.pdf"), types.DefaultOptions())
	assert.True(t, res.Succeeded)
}

func TestConvert_RetriesRateLimit(t *testing.T) {
	var calls int32
	ts := newAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, "# second try")
	})
	c := newTestClient(t, ts)

	res := c.Convert(context.Background(), sampleFile("a.pdf"), types.DefaultOptions())
	assert.True(t, res.Succeeded)
	assert.Equal(t, "# second try", res.Content)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestConvert_Timeout(t *testing.T) {
	release := make(chan struct{})
	ts := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	c := newTestClient(t, ts, func(cfg *types.ConversionConfig) { cfg.Timeout = 50 * time.Millisecond })

	res := c.Convert(context.Background(), sampleFile("slow.pdf"), types.DefaultOptions())

	assert.False(t, res.Succeeded)
	assert.Contains(t, res.Content, "slow.pdf")
	assert.Contains(t, res.Content, "timed out")
}

func TestConvert_TransportFailure(t *testing.T) {
	ts := newAPI(t, func(w http.ResponseWriter, _ *http.Request) {})
	c := newTestClient(t, ts)
	ts.Close()

	res := c.Convert(context.Background(), sampleFile("offline.pdf"), types.DefaultOptions())
	assert.False(t, res.Succeeded)
	assert.Contains(t, res.Content, "offline.pdf")
	assert.Contains(t, res.Content, "HTTP request")
}

func TestNewClient_Validation(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		wantErr  string
	}{
		{"empty", "", "not configured"},
		{"relative", "/convert", "invalid conversion endpoint"},
		{"ftp", "ftp://example.com/convert", "invalid conversion endpoint"},
		{"https", "https://api.example.com/convert", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(types.ConversionConfig{Endpoint: tt.endpoint}, nil, nil)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DefaultTimeout, c.timeout)
			assert.Equal(t, DefaultAPIKeyHeader, c.apiKeyHeader)
		})
	}
}

func TestErrorContent(t *testing.T) {
	got := ErrorContent("notes.docx", fmt.Errorf("wrapped: %w", errors.New("boom")))
	assert.True(t, strings.HasPrefix(got, "**Error:** Could not convert file `notes.docx`"))
	assert.True(t, strings.HasSuffix(got, "\n\nwrapped: boom"))
}

func TestStatusError(t *testing.T) {
	assert.Equal(t, "API error: 502", (&StatusError{Code: 502}).Error())
	assert.Equal(t, "API error: 400: bad file", (&StatusError{Code: 400, Body: "bad file"}).Error())
}
