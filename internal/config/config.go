// Package config provides the configuration schema, loader, and hot-reload
// watcher for werkit.
package config

import (
	"log/slog"

	"github.com/MrWong99/werkit/pkg/wer"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to the corresponding [slog.Level]. Unknown values map to
// [slog.LevelInfo].
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Defaults applied by [Default] and therefore by [Load] for omitted keys.
const (
	DefaultListenAddr        = ":8080"
	DefaultMaxBodyBytes      = 1 << 20
	DefaultPhoneticThreshold = 0.85
	DefaultMaxTableCells     = 4_000_000
)

// Config is the root configuration structure for werkit.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Batch    BatchConfig    `yaml:"batch"`
	Phonetic PhoneticConfig `yaml:"phonetic"`
	Storage  StorageConfig  `yaml:"storage"`
}

// ServerConfig holds network and logging settings for the scoring service.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MaxBodyBytes limits the size of request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ScoringConfig holds the default comparison settings. Requests may override
// them individually.
type ScoringConfig struct {
	// MergeLimit is the number of token merges a concatenation match may use.
	// 0 yields the classical token edit distance.
	MergeLimit int `yaml:"merge_limit"`

	// CaseSensitive disables case folding before comparison.
	CaseSensitive bool `yaml:"case_sensitive"`

	// MaxTableCells bounds (|left|+1)·(|right|+1) for a single comparison
	// served over the network; table memory grows with it. 0 disables the
	// check.
	MaxTableCells int64 `yaml:"max_table_cells"`
}

// Options converts the scoring settings into [wer.Option] values.
func (s ScoringConfig) Options() []wer.Option {
	return []wer.Option{
		wer.WithMergeLimit(s.MergeLimit),
		wer.WithCaseSensitive(s.CaseSensitive),
	}
}

// BatchConfig tunes corpus evaluation.
type BatchConfig struct {
	// Workers bounds how many items are scored concurrently.
	// 0 means one worker per CPU.
	Workers int `yaml:"workers"`
}

// PhoneticConfig controls the annotation of substitutions that sound alike.
type PhoneticConfig struct {
	Enabled bool `yaml:"enabled"`

	// Threshold is the Jaro-Winkler similarity above which a substitution
	// without shared phonetic codes still counts as sounding alike.
	Threshold float64 `yaml:"threshold"`
}

// StorageConfig selects where evaluation runs are kept.
type StorageConfig struct {
	// PostgresDSN is the connection string of the run database.
	PostgresDSN string `yaml:"postgres_dsn"`

	// Path is a JSON lines file runs are appended to. It is used when no
	// PostgresDSN is set. With neither, runs are kept in memory and lost on
	// restart.
	Path string `yaml:"path"`

	// MaxRuns bounds the in-memory run history. 0 means the default.
	MaxRuns int `yaml:"max_runs"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:   DefaultListenAddr,
			LogLevel:     LogInfo,
			MaxBodyBytes: DefaultMaxBodyBytes,
		},
		Scoring: ScoringConfig{
			MaxTableCells: DefaultMaxTableCells,
		},
		Phonetic: PhoneticConfig{
			Enabled:   true,
			Threshold: DefaultPhoneticThreshold,
		},
	}
}
