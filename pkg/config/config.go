// Package config defines the tap configuration. It is organized into
// sections:
//   - connection: api_key, base_url, user_agent and the locations filter
//   - sync: max_pagination, start_date, streams and state_path
//   - Timeouts: HTTP transport timeouts
//   - Reliability: retry, rate limiting and failure policy
//   - Output: where records go and how they are compressed or uploaded
//   - Observability: logging, tracing and metrics
//
// Example usage:
//
//	cfg, err := config.Load("omnivore.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/ajitpratap0/nebula-omnivore/pkg/cursor"
)

const (
	// DefaultBaseURL is the public Omnivore API root
	DefaultBaseURL = "https://api.omnivore.io/1.0"
	// DefaultMaxPagination caps pages per stream invocation
	DefaultMaxPagination = 10
)

// Config is the complete tap configuration.
type Config struct {
	// APIKey is sent as the Api-Key header on every request
	APIKey string `mapstructure:"api_key" yaml:"api_key" json:"api_key"`
	// BaseURL is the API root all stream paths are appended to
	BaseURL string `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	// UserAgent overrides the User-Agent header when set
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
	// Locations restricts the sync to these location ids
	Locations []Location `mapstructure:"locations" yaml:"locations,omitempty" json:"locations,omitempty"`
	// MaxPagination caps the pages read per stream invocation
	MaxPagination int `mapstructure:"max_pagination" yaml:"max_pagination" json:"max_pagination"`
	// StartDate seeds incremental streams without a bookmark. Unix seconds or
	// YYYY-MM-DDTHH:MM:SS.ffffffZ.
	StartDate string `mapstructure:"start_date" yaml:"start_date,omitempty" json:"start_date,omitempty"`
	// Streams selects streams by name; empty selects all
	Streams []string `mapstructure:"streams" yaml:"streams,omitempty" json:"streams,omitempty"`
	// StatePath is read before and written after a sync
	StatePath string `mapstructure:"state_path" yaml:"state_path,omitempty" json:"state_path,omitempty"`

	Timeouts      TimeoutConfig       `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Reliability   ReliabilityConfig   `mapstructure:"reliability" yaml:"reliability" json:"reliability"`
	Output        OutputConfig        `mapstructure:"output" yaml:"output" json:"output"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability" json:"observability"`
}

// Location is one entry of the locations filter.
type Location struct {
	ID string `mapstructure:"id" yaml:"id" json:"id"`
}

// TimeoutConfig contains HTTP transport timeouts.
type TimeoutConfig struct {
	// Request bounds one HTTP round trip including the body read
	Request time.Duration `mapstructure:"request" yaml:"request" json:"request"`
	// Dial bounds establishing a TCP connection
	Dial         time.Duration `mapstructure:"dial" yaml:"dial" json:"dial"`
	TLSHandshake time.Duration `mapstructure:"tls_handshake" yaml:"tls_handshake" json:"tls_handshake"`
	// Idle closes pooled connections after this long
	Idle      time.Duration `mapstructure:"idle" yaml:"idle" json:"idle"`
	KeepAlive time.Duration `mapstructure:"keep_alive" yaml:"keep_alive" json:"keep_alive"`
}

// ReliabilityConfig contains retry and failure handling settings.
type ReliabilityConfig struct {
	// RetryAttempts is the total number of attempts per request
	RetryAttempts int `mapstructure:"retry_attempts" yaml:"retry_attempts" json:"retry_attempts"`
	// RetryDelay is the initial backoff delay
	RetryDelay      time.Duration `mapstructure:"retry_delay" yaml:"retry_delay" json:"retry_delay"`
	RetryMultiplier float64       `mapstructure:"retry_multiplier" yaml:"retry_multiplier" json:"retry_multiplier"`
	MaxRetryDelay   time.Duration `mapstructure:"max_retry_delay" yaml:"max_retry_delay" json:"max_retry_delay"`
	// RateLimitPerSec limits requests per second (0 = unlimited)
	RateLimitPerSec float64 `mapstructure:"rate_limit_per_sec" yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	// FailFast stops the sync on the first failed stream invocation
	FailFast bool `mapstructure:"fail_fast" yaml:"fail_fast" json:"fail_fast"`
}

// OutputConfig describes the record sink.
type OutputConfig struct {
	// Path is the JSON-lines file, "-" for stdout
	Path string `mapstructure:"path" yaml:"path" json:"path"`
	// Compression is none, gzip, zstd, snappy, s2 or lz4
	Compression string `mapstructure:"compression" yaml:"compression" json:"compression"`
	// UploadURL is an s3:// or gs:// destination for the finished file
	UploadURL          string `mapstructure:"upload_url" yaml:"upload_url,omitempty" json:"upload_url,omitempty"`
	GCSCredentialsFile string `mapstructure:"gcs_credentials_file" yaml:"gcs_credentials_file,omitempty" json:"gcs_credentials_file,omitempty"`
	AWSRegion          string `mapstructure:"aws_region" yaml:"aws_region,omitempty" json:"aws_region,omitempty"`
}

// ObservabilityConfig contains logging, tracing and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	LogEncoding string `mapstructure:"log_encoding" yaml:"log_encoding" json:"log_encoding"`
	// Tracing is none or stdout
	Tracing string `mapstructure:"tracing" yaml:"tracing" json:"tracing"`
	// MetricsAddr serves Prometheus metrics when set, e.g. ":9090"
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty"`
}

// Default returns a configuration with every default applied and no API key.
func Default() *Config {
	return &Config{
		BaseURL:       DefaultBaseURL,
		MaxPagination: DefaultMaxPagination,
		Timeouts: TimeoutConfig{
			Request:      300 * time.Second,
			Dial:         30 * time.Second,
			TLSHandshake: 10 * time.Second,
			Idle:         90 * time.Second,
			KeepAlive:    30 * time.Second,
		},
		Reliability: ReliabilityConfig{
			RetryAttempts:   7,
			RetryDelay:      2 * time.Second,
			RetryMultiplier: 2.0,
			MaxRetryDelay:   5 * time.Minute,
		},
		Output: OutputConfig{
			Path:        "-",
			Compression: "none",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogEncoding: "json",
			Tracing:     "none",
		},
	}
}

// LocationIDs returns the ids of the locations filter.
func (c *Config) LocationIDs() []string {
	ids := make([]string, 0, len(c.Locations))
	for _, l := range c.Locations {
		ids = append(ids, l.ID)
	}
	return ids
}

// StartCursor returns the normalized start_date, or 0 when unset.
func (c *Config) StartCursor() (int64, error) {
	if c.StartDate == "" {
		return 0, nil
	}
	return cursor.Normalize(c.StartDate)
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute URL, got %q", c.BaseURL)
	}
	if c.MaxPagination < 1 {
		return fmt.Errorf("max_pagination must be positive")
	}
	for i, l := range c.Locations {
		if l.ID == "" {
			return fmt.Errorf("locations[%d].id is required", i)
		}
	}
	if _, err := c.StartCursor(); err != nil {
		return fmt.Errorf("start_date: %w", err)
	}

	if c.Reliability.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be at least 1")
	}
	if c.Reliability.RetryDelay < 0 || c.Reliability.MaxRetryDelay < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if c.Reliability.RetryMultiplier < 1 {
		return fmt.Errorf("retry_multiplier must be at least 1")
	}
	if c.Reliability.RateLimitPerSec < 0 {
		return fmt.Errorf("rate_limit_per_sec must not be negative")
	}

	switch c.Output.Compression {
	case "", "none", "gzip", "zstd", "snappy", "s2", "lz4":
	default:
		return fmt.Errorf("unsupported output compression %q", c.Output.Compression)
	}
	switch c.Observability.Tracing {
	case "", "none", "stdout":
	default:
		return fmt.Errorf("unsupported tracing exporter %q", c.Observability.Tracing)
	}
	return nil
}
