package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/werkit/pkg/wer"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes %d must not be negative", cfg.Server.MaxBodyBytes))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Scoring
	if cfg.Scoring.MergeLimit < 0 || cfg.Scoring.MergeLimit > wer.MaxMergeLimit {
		errs = append(errs, fmt.Errorf("scoring.merge_limit %d is out of range [0, %d]", cfg.Scoring.MergeLimit, wer.MaxMergeLimit))
	}
	if cfg.Scoring.MaxTableCells < 0 {
		errs = append(errs, fmt.Errorf("scoring.max_table_cells %d must not be negative", cfg.Scoring.MaxTableCells))
	}

	// Batch
	if cfg.Batch.Workers < 0 {
		errs = append(errs, fmt.Errorf("batch.workers %d must not be negative", cfg.Batch.Workers))
	}

	// Phonetic
	if cfg.Phonetic.Enabled && (cfg.Phonetic.Threshold <= 0 || cfg.Phonetic.Threshold > 1) {
		errs = append(errs, fmt.Errorf("phonetic.threshold %.2f is out of range (0, 1]", cfg.Phonetic.Threshold))
	}
	if !cfg.Phonetic.Enabled && cfg.Phonetic.Threshold != DefaultPhoneticThreshold {
		slog.Warn("phonetic.threshold is set but phonetic annotation is disabled", "threshold", cfg.Phonetic.Threshold)
	}

	// Storage
	if cfg.Storage.PostgresDSN != "" && cfg.Storage.Path != "" {
		errs = append(errs, errors.New("storage.postgres_dsn and storage.path are mutually exclusive"))
	}
	if cfg.Storage.MaxRuns < 0 {
		errs = append(errs, fmt.Errorf("storage.max_runs %d must not be negative", cfg.Storage.MaxRuns))
	}

	return errors.Join(errs...)
}
