package config

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ScoringChanged is true when the default merge limit or case policy changed.
	ScoringChanged bool

	// PhoneticChanged is true when phonetic annotation was toggled or its
	// threshold changed.
	PhoneticChanged bool

	// BatchChanged is true when the batch worker count changed.
	BatchChanged bool

	// RestartRequired lists settings that changed but only take effect after
	// a restart.
	RestartRequired []string
}

// Changed reports whether d contains any change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.ScoringChanged || d.PhoneticChanged ||
		d.BatchChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.ScoringChanged = old.Scoring != new.Scoring
	d.PhoneticChanged = old.Phonetic != new.Phonetic
	d.BatchChanged = old.Batch != new.Batch

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Server.MaxBodyBytes != new.Server.MaxBodyBytes {
		d.RestartRequired = append(d.RestartRequired, "server.max_body_bytes")
	}
	if !sameTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}

	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
