// Package config provides layered configuration loading for ctxrd.
//
// Configuration is loaded from compiled-in defaults, an optional YAML file,
// and environment variable overrides, in that order of increasing
// precedence, and unmarshalled into RuntimeConfig.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// RuntimeConfig is the fully-loaded, validated configuration for a ctxrd
// daemon: the master compression knobs plus the ambient fields every
// component in this codebase's config layer carries (observability,
// session-store paths, secret scrubbing, the optional semantic index, and
// the optional sync-transport notifier).
type RuntimeConfig struct {
	Enabled          bool   `koanf:"enabled"`
	AutoSummarize    bool   `koanf:"auto_summarize"`
	ContextThreshold int    `koanf:"context_threshold"`
	MaxContextTokens int    `koanf:"max_context_tokens"`
	SummaryModel     string `koanf:"summary_model"`

	CloudSync     CloudSyncConfig     `koanf:"cloud_sync"`
	Cleanup       CleanupConfig       `koanf:"cleanup"`
	Storage       StorageConfig       `koanf:"storage"`
	Observability ObservabilityConfig `koanf:"observability"`
	Secrets       SecretsConfig       `koanf:"secrets"`
	SemanticIndex SemanticIndexConfig `koanf:"semantic_index"`
	SyncTransport SyncTransportConfig `koanf:"sync_transport"`
}

// CloudSyncConfig controls the optional remote sync destination consumed by
// the Sync Queue driver's transport.
type CloudSyncConfig struct {
	Enabled  bool   `koanf:"enabled"`
	APIKey   Secret `koanf:"api_key"`
	Endpoint string `koanf:"endpoint"`
}

// CleanupConfig controls retention of completed sessions on disk.
type CleanupConfig struct {
	MaxSessionAgeDays int  `koanf:"max_session_age_days"`
	MaxStorageSizeMB  int  `koanf:"max_storage_size_mb"`
	AutoCleanup       bool `koanf:"auto_cleanup"`
}

// StorageConfig names the Session Store and Sync Queue directory layout.
type StorageConfig struct {
	BaseDir      string `koanf:"base_dir"`
	SessionsDir  string `koanf:"sessions_dir"`
	SyncQueueDir string `koanf:"sync_queue_dir"`
}

// ObservabilityConfig controls the structured logger and OpenTelemetry
// exporters shared by every component.
type ObservabilityConfig struct {
	ServiceName     string `koanf:"service_name"`
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	LogLevel        string `koanf:"log_level"`
	LogFormat       string `koanf:"log_format"`
}

// SecretsConfig controls the scrubber applied to FC arguments/results before
// truncation and before any content reaches the summariser.
type SecretsConfig struct {
	Enabled         bool   `koanf:"enabled"`
	RedactionString string `koanf:"redaction_string"`
	// DeepScan layers gitleaks' full ruleset behind the regex scrubber for
	// the FC result stream specifically. Off by default: it's a much
	// slower pass and the regex rules already cover the common cases.
	DeepScan bool `koanf:"deep_scan"`
}

// SemanticIndexConfig controls the optional chromem-go-backed re-ranking
// pass over L1's static knowledge (§12.3).
type SemanticIndexConfig struct {
	Enabled        bool   `koanf:"enabled"`
	CollectionName string `koanf:"collection_name"`
}

// SyncTransportConfig selects the Sync Queue driver's notification
// transport (§12.2). Kind "directory" is the Noop transport: the directory
// itself is the only coordination mechanism. Kind "nats" additionally
// publishes a small notification on every pending/retry transition.
type SyncTransportConfig struct {
	Kind    string `koanf:"kind"`
	NATSURL string `koanf:"nats_url"`
}

// DefaultRuntimeConfig returns the compiled-in defaults enumerated in this
// runtime's external configuration surface.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		Enabled:          true,
		AutoSummarize:    true,
		ContextThreshold: 100_000,
		MaxContextTokens: 150_000,
		SummaryModel:     "haiku",
		CloudSync: CloudSyncConfig{
			Enabled: false,
		},
		Cleanup: CleanupConfig{
			MaxSessionAgeDays: 30,
			MaxStorageSizeMB:  500,
			AutoCleanup:       true,
		},
		Storage: StorageConfig{
			BaseDir:      defaultBaseDir(),
			SessionsDir:  "sessions",
			SyncQueueDir: "sync-queue",
		},
		Observability: ObservabilityConfig{
			ServiceName:     "ctxrd",
			EnableTelemetry: false,
			LogLevel:        "info",
			LogFormat:       "json",
		},
		Secrets: SecretsConfig{
			Enabled:         true,
			RedactionString: "[REDACTED]",
		},
		SemanticIndex: SemanticIndexConfig{
			Enabled:        false,
			CollectionName: "ctxrd_context",
		},
		SyncTransport: SyncTransportConfig{
			Kind: "directory",
		},
	}
}

// Validate checks RuntimeConfig for the invariants enumerated in this
// runtime's configuration surface plus the ambient fields' own rules.
// Errors returned here are Configuration invalid errors: fatal for the
// load/update call, not the process.
func (c *RuntimeConfig) Validate() error {
	if c.ContextThreshold <= 0 {
		return errors.New("config: context_threshold must be positive")
	}
	if c.MaxContextTokens <= 0 {
		return errors.New("config: max_context_tokens must be positive")
	}
	if c.ContextThreshold >= c.MaxContextTokens {
		return fmt.Errorf("config: context_threshold (%d) must be less than max_context_tokens (%d)", c.ContextThreshold, c.MaxContextTokens)
	}

	switch c.SummaryModel {
	case "haiku", "user-default":
	default:
		return fmt.Errorf("config: summary_model %q must be one of haiku, user-default", c.SummaryModel)
	}

	if c.CloudSync.Enabled {
		if !c.CloudSync.APIKey.IsSet() {
			return errors.New("config: cloud_sync.api_key is required when cloud_sync.enabled is true")
		}
		if c.CloudSync.Endpoint == "" {
			return errors.New("config: cloud_sync.endpoint is required when cloud_sync.enabled is true")
		}
		if err := validateURL(c.CloudSync.Endpoint); err != nil {
			return fmt.Errorf("config: cloud_sync.endpoint: %w", err)
		}
	}

	if c.Cleanup.MaxSessionAgeDays <= 0 {
		return errors.New("config: cleanup.max_session_age_days must be positive")
	}
	if c.Cleanup.MaxStorageSizeMB <= 0 {
		return errors.New("config: cleanup.max_storage_size_mb must be positive")
	}

	if c.Storage.BaseDir == "" {
		return errors.New("config: storage.base_dir is required")
	}
	if err := validatePath(c.Storage.BaseDir); err != nil {
		return fmt.Errorf("config: storage.base_dir: %w", err)
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("config: observability.service_name is required when observability.enable_telemetry is true")
	}
	switch strings.ToLower(c.Observability.LogFormat) {
	case "json", "console", "":
	default:
		return fmt.Errorf("config: observability.log_format %q must be one of json, console", c.Observability.LogFormat)
	}

	switch c.SyncTransport.Kind {
	case "directory", "nats":
	default:
		return fmt.Errorf("config: sync_transport.kind %q must be one of directory, nats", c.SyncTransport.Kind)
	}

	return nil
}

// validateURL checks that urlStr uses an allowed scheme (http/https only).
func validateURL(urlStr string) error {
	if !strings.HasPrefix(urlStr, "http://") && !strings.HasPrefix(urlStr, "https://") {
		return fmt.Errorf("URL must use http:// or https:// scheme, got: %s", urlStr)
	}
	return nil
}

// validatePath rejects path-traversal sequences in a configured directory.
func validatePath(path string) error {
	if strings.Contains(path, "..") {
		return fmt.Errorf("path contains traversal sequence: %s", path)
	}
	return nil
}
