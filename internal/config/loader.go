package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/MrWong99/mockflow/internal/interview/guard"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known LLM provider names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// against the environment, applies defaults and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
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
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}
	if cfg.Server.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("server.max_sessions %d must not be negative", cfg.Server.MaxSessions))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// LLM
	validateProviderName("llm.provider", cfg.LLM.Provider.Name)
	for i, fb := range cfg.LLM.Fallbacks {
		prefix := fmt.Sprintf("llm.fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateProviderName(prefix, fb.Name)
	}
	if len(cfg.LLM.Fallbacks) > 0 && cfg.LLM.Provider.Name == "" {
		errs = append(errs, errors.New("llm.fallbacks requires llm.provider"))
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f is out of range [0, 2]", cfg.LLM.Temperature))
	}
	if cfg.LLM.MaxToolRounds < 0 {
		errs = append(errs, fmt.Errorf("llm.max_tool_rounds %d must not be negative", cfg.LLM.MaxToolRounds))
	}
	if cfg.LLM.Provider.Name == "" && cfg.LLM.Feedback {
		slog.Warn("llm.feedback is enabled but no llm.provider is configured; feedback will not be generated")
	}

	// Interview
	if _, err := cfg.Interview.Registry(); err != nil {
		errs = append(errs, fmt.Errorf("interview.stages: %w", err))
	}
	fb := cfg.Interview.Fallback
	if _, err := guard.ParseMode(fb.Mode); err != nil {
		errs = append(errs, fmt.Errorf("interview.fallback.mode %q is invalid; valid values: inactivity, absolute", fb.Mode))
	}
	if fb.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("interview.fallback.poll_interval %s must not be negative", fb.PollInterval))
	} else if fb.PollInterval > 0 && (fb.PollInterval.Seconds() < 20 || fb.PollInterval.Seconds() > 30) {
		slog.Warn("interview.fallback.poll_interval is outside the recommended 20s-30s range",
			"poll_interval", fb.PollInterval,
		)
	}
	if fb.CeilingFactor != 0 && fb.CeilingFactor <= 1 {
		errs = append(errs, fmt.Errorf("interview.fallback.ceiling_factor %.2f must be greater than 1", fb.CeilingFactor))
	}
	if fb.ClosingGrace < 0 {
		errs = append(errs, fmt.Errorf("interview.fallback.closing_grace %s must not be negative", fb.ClosingGrace))
	}
	if fb.WarningThreshold >= 1 {
		errs = append(errs, fmt.Errorf("interview.fallback.warning_threshold %.2f must be below 1", fb.WarningThreshold))
	}
	if s := cfg.Interview.Duplicates.SimilarityThreshold; s < 0 || s > 1 {
		errs = append(errs, fmt.Errorf("interview.duplicates.similarity_threshold %.2f is out of range [0, 1]", s))
	}

	// Store
	if cfg.Store.Backend != "" && !cfg.Store.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("store.backend %q is invalid; valid values: memory, postgres, sqlite", cfg.Store.Backend))
	}
	if (cfg.Store.Backend == StorePostgres || cfg.Store.Backend == StoreSQLite) && cfg.Store.DSN == "" {
		errs = append(errs, fmt.Errorf("store.dsn is required when store.backend is %s", cfg.Store.Backend))
	}

	// Observe
	if p := cfg.Observe.MetricsPath; p != "" && !strings.HasPrefix(p, "/") {
		errs = append(errs, fmt.Errorf("observe.metrics_path %q must start with /", p))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// [ValidProviderNames].
func validateProviderName(field, name string) {
	if name == "" || slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"field", field,
		"name", name,
		"known", ValidProviderNames,
	)
}

// parseBytes is [LoadFromReader] over an in-memory document.
func parseBytes(b []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(b))
}
