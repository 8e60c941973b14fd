package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. OMNIVORE_API_KEY.
const EnvPrefix = "OMNIVORE"

// Load reads a YAML or JSON file, applies OMNIVORE_* environment overrides
// and defaults, and validates the result. An empty path loads from the
// environment only. ${VAR} references in the file are expanded first.
func Load(filePath string) (*Config, error) {
	v := newViper()

	if filePath != "" {
		data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the operator
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		v.SetConfigType(configType(filePath))
		if err := v.ReadConfig(bytes.NewReader([]byte(substituteEnvVars(string(data))))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML. The file holds the API key, so it is created
// readable by the owner only.
func Save(filePath string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	d := Default()

	defaults := map[string]interface{}{
		"base_url":                       d.BaseURL,
		"max_pagination":                 d.MaxPagination,
		"api_key":                        "",
		"user_agent":                     "",
		"start_date":                     "",
		"state_path":                     "",
		"timeouts.request":               d.Timeouts.Request,
		"timeouts.dial":                  d.Timeouts.Dial,
		"timeouts.tls_handshake":         d.Timeouts.TLSHandshake,
		"timeouts.idle":                  d.Timeouts.Idle,
		"timeouts.keep_alive":            d.Timeouts.KeepAlive,
		"reliability.retry_attempts":     d.Reliability.RetryAttempts,
		"reliability.retry_delay":        d.Reliability.RetryDelay,
		"reliability.retry_multiplier":   d.Reliability.RetryMultiplier,
		"reliability.max_retry_delay":    d.Reliability.MaxRetryDelay,
		"reliability.rate_limit_per_sec": d.Reliability.RateLimitPerSec,
		"reliability.fail_fast":          d.Reliability.FailFast,
		"output.path":                    d.Output.Path,
		"output.compression":             d.Output.Compression,
		"output.upload_url":              "",
		"output.gcs_credentials_file":    "",
		"output.aws_region":              "",
		"observability.log_level":        d.Observability.LogLevel,
		"observability.log_encoding":     d.Observability.LogEncoding,
		"observability.tracing":          d.Observability.Tracing,
		"observability.metrics_addr":     "",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	default:
		return "yaml"
	}
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values.
// Substituted values are not scanned again.
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		b.WriteString(content[:start])
		b.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
