package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the per-file conversion timeout (default 60s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "mdconvert/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// ConversionConfig holds settings for the remote conversion API.
type ConversionConfig struct {
	HTTPConfig `yaml:",inline"`

	// Endpoint is the URL that receives the multipart POST for each file.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// APIKeyHeader names the request header carrying the API key (default "x-api-key").
	APIKeyHeader string `json:"api_key_header" yaml:"api_key_header"`

	// APIKey is the shared secret for the endpoint. It is loaded from
	// .secrets/ or the environment and never written back to config files.
	APIKey string `json:"-" yaml:"-"`

	// MaxRetries is the number of retries on HTTP 429 (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// Concurrency is the number of files converted in parallel (default 1, sequential).
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// SendOptions attaches the non-secret conversion options to each request
	// as an "options" form field.
	SendOptions bool `json:"send_options" yaml:"send_options"`
}

// QuotaBackend selects where the daily conversion counter is persisted.
type QuotaBackend string

const (
	QuotaSQLite QuotaBackend = "sqlite"
	QuotaFile   QuotaBackend = "file"
	QuotaMemory QuotaBackend = "memory"
)

// QuotaConfig holds settings for the soft daily quota.
type QuotaConfig struct {
	// DailyLimit is the number of successful conversions allowed per day (default 10).
	DailyLimit int `json:"daily_limit" yaml:"daily_limit"`

	// Backend selects the storage: sqlite, file, or memory.
	Backend QuotaBackend `json:"backend" yaml:"backend"`

	// Path is the database or YAML file path for persistent backends.
	Path string `json:"path" yaml:"path"`
}

// UploadConfig holds the selection filters applied before a batch starts.
type UploadConfig struct {
	// MaxFiles is the maximum number of files per selection (default 10).
	MaxFiles int `json:"max_files" yaml:"max_files"`

	// MaxFileSize is the maximum size of a single file in bytes (default 50 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`
}

// OutputConfig holds settings for writing converted Markdown.
type OutputConfig struct {
	// Dir is the directory for .md files. Empty prints to stdout.
	Dir string `json:"dir" yaml:"dir"`

	// KeepErrors writes the inline error content of failed files too.
	KeepErrors bool `json:"keep_errors" yaml:"keep_errors"`

	// SummaryFormat selects the batch summary encoding: json, yaml, or msgpack.
	SummaryFormat string `json:"summary_format" yaml:"summary_format"`
}

// ServerConfig holds settings for the conversion proxy.
type ServerConfig struct {
	// Addr is the listen address (default ":8080").
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout bounds reading a request including uploaded files.
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`
}

// Config groups all settings for the CLI and the proxy.
type Config struct {
	Conversion ConversionConfig  `json:"conversion" yaml:"conversion"`
	Options    ConversionOptions `json:"options" yaml:"options"`
	Quota      QuotaConfig       `json:"quota" yaml:"quota"`
	Upload     UploadConfig      `json:"upload" yaml:"upload"`
	Output     OutputConfig      `json:"output" yaml:"output"`
	Server     ServerConfig      `json:"server" yaml:"server"`
}
