// Package config provides the configuration schema, loader, watcher and
// provider registry for the MockFlow interview server.
package config

import (
	"time"

	"github.com/MrWong99/mockflow/internal/interview/guard"
	"github.com/MrWong99/mockflow/internal/interview/stage"
)

// LogLevel controls log verbosity for the server.
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

// StoreBackend selects where finalized interviews are archived.
type StoreBackend string

const (
	// StoreMemory keeps records in process memory. They are lost on restart.
	StoreMemory StoreBackend = "memory"

	// StorePostgres archives to PostgreSQL. Requires store.dsn.
	StorePostgres StoreBackend = "postgres"

	// StoreSQLite archives to an embedded SQLite file. store.dsn is the file
	// path.
	StoreSQLite StoreBackend = "sqlite"
)

// IsValid reports whether b is a recognised store backend.
func (b StoreBackend) IsValid() bool {
	switch b {
	case StoreMemory, StorePostgres, StoreSQLite:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr       = ":8080"
	DefaultShutdownTimeout  = 15 * time.Second
	DefaultPollInterval     = 25 * time.Second
	DefaultClosingGrace     = 30 * time.Second
	DefaultWarningThreshold = 0.8
	DefaultCeilingFactor    = 2.0
	DefaultMaxToolRounds    = 6
	DefaultHistoryTokens    = 12000
	DefaultServiceName      = "mockflow"
	DefaultMetricsPath      = "/metrics"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Interview InterviewConfig `yaml:"interview"`
	Store     StoreConfig     `yaml:"store"`
	Observe   ObserveConfig   `yaml:"observe"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// ShutdownTimeout bounds graceful shutdown, including archiving of the
	// interviews still running.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxSessions caps concurrently running interviews. Zero means no limit.
	MaxSessions int `yaml:"max_sessions"`

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

// LLMConfig configures the built-in turn producer and feedback generator.
// When Provider.Name is empty the server runs without an LLM: external
// voice pipelines drive interviews through the HTTP or MCP surface only.
type LLMConfig struct {
	// Provider is the primary LLM.
	Provider ProviderEntry `yaml:"provider"`

	// Fallbacks are tried in order when the primary fails or its circuit
	// breaker is open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Temperature is the sampling temperature for interview turns.
	Temperature float64 `yaml:"temperature"`

	// MaxToolRounds bounds the tool-call loop of a single turn.
	MaxToolRounds int `yaml:"max_tool_rounds"`

	// HistoryTokens is the token budget of the working conversation history.
	// Older turns are summarised once 75% of it is used.
	HistoryTokens int `yaml:"history_tokens"`

	// Feedback enables post-interview feedback generation.
	Feedback bool `yaml:"feedback"`
}

// ProviderEntry is the configuration block for an LLM provider.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "anthropic").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// InterviewConfig shapes every interview started with this configuration.
type InterviewConfig struct {
	// Stages overrides the built-in stage list. Each entry starts from the
	// built-in stage of the same name; omitted fields keep the built-in
	// value. The order of entries is the interview order.
	Stages []StageConfig `yaml:"stages"`

	Fallback   FallbackConfig   `yaml:"fallback"`
	Duplicates DuplicatesConfig `yaml:"duplicates"`

	// IncludeDocuments is the default for sessions that do not say whether
	// resume and job description excerpts go into the instructions.
	IncludeDocuments bool `yaml:"include_documents"`
}

// StageConfig describes one stage.
type StageConfig struct {
	Name         string        `yaml:"name"`
	DisplayName  string        `yaml:"display_name"`
	TimeLimit    time.Duration `yaml:"time_limit"`
	MinQuestions *int          `yaml:"min_questions"`

	// Instructions replaces the built-in instruction template. Placeholders
	// such as [CANDIDATE_NAME] and [ROLE] are substituted per session.
	Instructions string `yaml:"instructions"`

	// Fallback controls whether the fallback loop may force this stage to
	// end. Defaults to the built-in value (true for unknown stages).
	Fallback *bool `yaml:"fallback"`
}

// FallbackConfig configures the per-session deadline loop.
type FallbackConfig struct {
	// Mode is "inactivity" (default) or "absolute".
	Mode string `yaml:"mode"`

	// PollInterval is how often each session checks its deadline.
	PollInterval time.Duration `yaml:"poll_interval"`

	// CeilingFactor scales a stage's time limit into the absolute ceiling in
	// inactivity mode.
	CeilingFactor float64 `yaml:"ceiling_factor"`

	// ClosingGrace is how long the closing stage may run past its limit
	// without spoken closing content before the interview ends.
	ClosingGrace time.Duration `yaml:"closing_grace"`

	// WarningThreshold is the fraction of stage time after which a warning is
	// logged. A negative value disables the warning.
	WarningThreshold float64 `yaml:"warning_threshold"`
}

// DuplicatesConfig configures question duplicate detection.
type DuplicatesConfig struct {
	// SimilarityThreshold enables Jaro-Winkler near-duplicate detection at
	// this score. Zero keeps exact and substring matching only.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// StoreConfig selects the interview archive.
type StoreConfig struct {
	Backend StoreBackend `yaml:"backend"`

	// DSN is the PostgreSQL connection string or the SQLite file path.
	DSN string `yaml:"dsn"`
}

// ObserveConfig configures telemetry.
type ObserveConfig struct {
	ServiceName string `yaml:"service_name"`

	// MetricsPath is where the Prometheus exposition is served.
	MetricsPath string `yaml:"metrics_path"`
}

// ApplyDefaults fills zero values with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.LLM.MaxToolRounds <= 0 {
		cfg.LLM.MaxToolRounds = DefaultMaxToolRounds
	}
	if cfg.LLM.HistoryTokens == 0 {
		cfg.LLM.HistoryTokens = DefaultHistoryTokens
	}
	fb := &cfg.Interview.Fallback
	if fb.Mode == "" {
		fb.Mode = string(guard.Inactivity)
	}
	if fb.PollInterval <= 0 {
		fb.PollInterval = DefaultPollInterval
	}
	if fb.CeilingFactor == 0 {
		fb.CeilingFactor = DefaultCeilingFactor
	}
	if fb.ClosingGrace == 0 {
		fb.ClosingGrace = DefaultClosingGrace
	}
	if fb.WarningThreshold == 0 {
		fb.WarningThreshold = DefaultWarningThreshold
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreMemory
	}
	if cfg.Observe.ServiceName == "" {
		cfg.Observe.ServiceName = DefaultServiceName
	}
	if cfg.Observe.MetricsPath == "" {
		cfg.Observe.MetricsPath = DefaultMetricsPath
	}
}

// Registry builds the stage registry described by Stages.
func (c InterviewConfig) Registry() (*stage.Registry, error) {
	overrides := make([]stage.Override, len(c.Stages))
	for i, s := range c.Stages {
		overrides[i] = stage.Override{
			Name:                s.Name,
			DisplayName:         s.DisplayName,
			TimeLimit:           s.TimeLimit,
			MinQuestions:        s.MinQuestions,
			InstructionTemplate: s.Instructions,
			Fallback:            s.Fallback,
		}
	}
	return stage.FromOverrides(overrides)
}

// Policy returns the fallback deadline policy.
func (c InterviewConfig) Policy() (guard.Policy, error) {
	mode, err := guard.ParseMode(c.Fallback.Mode)
	if err != nil {
		return guard.Policy{}, err
	}
	return guard.Policy{Mode: mode, CeilingFactor: c.Fallback.CeilingFactor}, nil
}

// DuplicateChecker returns the question duplicate detector.
func (c InterviewConfig) DuplicateChecker() guard.DuplicateChecker {
	return guard.DuplicateChecker{Similarity: c.Duplicates.SimilarityThreshold}
}

// Warning returns the warning fraction to hand to the controller, mapping
// negative values to zero (disabled).
func (c FallbackConfig) Warning() float64 {
	return max(c.WarningThreshold, 0)
}
