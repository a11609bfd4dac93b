package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"voice":    {"vapi", "mock"},
	"analysis": {"openai", "anthropic", "gemini", "ollama", "mistral", "groq", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
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
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider name validation. Unknown names are warnings, not errors, so
	// third-party registrations keep working.
	validateProviderName("voice", cfg.Providers.Voice.Name)
	validateProviderName("analysis", cfg.Providers.Analysis.Name)
	validateProviderName("analysis", cfg.Providers.AnalysisFallback.Name)

	if cfg.Providers.Voice.Name == "" {
		slog.Warn("providers.voice is not configured; live calls cannot be started")
	}
	if cfg.Providers.Analysis.Name == "" {
		slog.Warn("providers.analysis is not configured; calls will not be scored")
	}
	if cfg.Providers.AnalysisFallback.Name != "" && cfg.Providers.Analysis.Name == "" {
		errs = append(errs, errors.New("providers.analysis_fallback is set but providers.analysis is not"))
	}

	// Session tuning
	s := cfg.Session
	if s.NearDupWindow < 0 {
		errs = append(errs, fmt.Errorf("session.near_dup_window %s must not be negative", s.NearDupWindow))
	}
	if s.Similarity < 0 || s.Similarity > 1 {
		errs = append(errs, fmt.Errorf("session.similarity %.3f is out of range [0, 1]", s.Similarity))
	}
	if s.EchoTail < 0 {
		errs = append(errs, fmt.Errorf("session.echo_tail %s must not be negative", s.EchoTail))
	}
	if s.PauseGap < 0 {
		errs = append(errs, fmt.Errorf("session.pause_gap %s must not be negative", s.PauseGap))
	}
	if s.DedupCap < 0 {
		errs = append(errs, fmt.Errorf("session.dedup_cap %d must not be negative", s.DedupCap))
	}

	// Storage
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; finished calls will not be persisted")
	}

	// Coach
	if cfg.Coach.RetryAttempts < 0 {
		errs = append(errs, fmt.Errorf("coach.retry_attempts %d must not be negative", cfg.Coach.RetryAttempts))
	}
	if cfg.Coach.RetryBase < 0 {
		errs = append(errs, fmt.Errorf("coach.retry_base %s must not be negative", cfg.Coach.RetryBase))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
