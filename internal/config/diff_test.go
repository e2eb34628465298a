package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/werkit/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	d := config.Diff(cfg, cfg)
	if d.Changed() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level is hot-reloadable, got RestartRequired=%v", d.RestartRequired)
	}
}

func TestDiff_HotSections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		check  func(config.ConfigDiff) bool
	}{
		{"merge limit", func(c *config.Config) { c.Scoring.MergeLimit = 2 }, func(d config.ConfigDiff) bool { return d.ScoringChanged }},
		{"case policy", func(c *config.Config) { c.Scoring.CaseSensitive = true }, func(d config.ConfigDiff) bool { return d.ScoringChanged }},
		{"phonetic toggle", func(c *config.Config) { c.Phonetic.Enabled = false }, func(d config.ConfigDiff) bool { return d.PhoneticChanged }},
		{"phonetic threshold", func(c *config.Config) { c.Phonetic.Threshold = 0.95 }, func(d config.ConfigDiff) bool { return d.PhoneticChanged }},
		{"workers", func(c *config.Config) { c.Batch.Workers = 8 }, func(d config.ConfigDiff) bool { return d.BatchChanged }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			old, new := config.Default(), config.Default()
			tc.mutate(new)
			d := config.Diff(old, new)
			if !tc.check(d) {
				t.Errorf("change not reported: %+v", d)
			}
			if len(d.RestartRequired) != 0 {
				t.Errorf("expected no restart, got %v", d.RestartRequired)
			}
		})
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.ListenAddr = ":9999"
	new.Server.MaxBodyBytes = 42
	new.Server.TLS = &config.TLSConfig{CertFile: "a.crt", KeyFile: "a.key"}
	new.Storage.PostgresDSN = "postgres://localhost/werkit"

	d := config.Diff(old, new)
	want := []string{"server.listen_addr", "server.max_body_bytes", "server.tls", "storage"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if !d.Changed() {
		t.Error("expected Changed()=true")
	}
}

func TestDiff_TLSSameValues(t *testing.T) {
	t.Parallel()
	old, new := config.Default(), config.Default()
	old.Server.TLS = &config.TLSConfig{CertFile: "a.crt", KeyFile: "a.key"}
	new.Server.TLS = &config.TLSConfig{CertFile: "a.crt", KeyFile: "a.key"}

	if d := config.Diff(old, new); d.Changed() {
		t.Errorf("equal TLS settings reported as changed: %+v", d)
	}
}
