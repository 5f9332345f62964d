// Package config provides configuration loading for ctxrd.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// envSections lists the multi-word koanf sections, longest-prefix first, so
// the environment transformer splits a SECTION_field env var on the right
// boundary even when SECTION itself contains an underscore: CLOUD_SYNC_ENABLED
// must become cloud_sync.enabled, not cloud.sync_enabled.
var envSections = func() []string {
	s := []string{"cloud_sync", "semantic_index", "sync_transport", "observability", "storage", "cleanup", "secrets"}
	sort.Slice(s, func(i, j int) bool { return len(s[i]) > len(s[j]) })
	return s
}()

// defaultBaseDir returns the Session Store's default base directory,
// <home>/.ccjk/context, used when storage.base_dir is not overridden.
func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ccjk/context"
	}
	return filepath.Join(home, ".ccjk", "context")
}

// defaultConfigPath returns the fixed YAML config location, ~/.config/ctxrd/config.yaml.
func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "ctxrd", "config.yaml"), nil
}

// Load loads RuntimeConfig from compiled-in defaults, then an optional YAML
// file at configPath (or the fixed default path if empty), then
// environment-variable overrides, and validates the result.
//
// Precedence, highest to lowest:
//  1. Environment variables (OBSERVABILITY_SERVICE_NAME, STORAGE_BASE_DIR, ...)
//  2. YAML config file (~/.config/ctxrd/config.yaml)
//  3. Compiled-in defaults (DefaultRuntimeConfig)
func Load(configPath string) (*RuntimeConfig, error) {
	k := koanf.New(".")

	if configPath == "" {
		p, err := defaultConfigPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config: path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("config: opening config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("config: stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config: file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: parsing config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envToKoanfKey), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment overrides: %w", err)
	}

	cfg := DefaultRuntimeConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshalling: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

// envToKoanfKey maps an environment variable name to its koanf dot-path,
// e.g. CLOUD_SYNC_ENABLED -> cloud_sync.enabled, CONTEXT_THRESHOLD ->
// context_threshold (no section: a top-level RuntimeConfig field).
func envToKoanfKey(s string) string {
	lower := strings.ToLower(s)
	for _, section := range envSections {
		if strings.HasPrefix(lower, section+"_") {
			return section + "." + strings.TrimPrefix(lower, section+"_")
		}
	}
	return lower
}

// EnsureConfigDir creates the ctxrd config directory if it doesn't exist,
// with 0700 permissions (owner read/write/execute only).
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("config: resolving home directory: %w", err)
	}
	configDir := filepath.Join(home, ".config", "ctxrd")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("config: creating config directory %s: %w", configDir, err)
	}
	return nil
}

// validateConfigPath rejects config paths outside the allowed directories,
// following resolved symlinks so an attacker cannot use one to escape.
// This validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// Path may not exist yet; validate the unresolved absolute path.
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "ctxrd"),
		"/etc/ctxrd",
	}
	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/ctxrd/ or /etc/ctxrd/")
}

// validateConfigFileProperties checks permissions and size of an
// already-opened config file, taking FileInfo from that descriptor to avoid
// a stat/open TOCTOU race.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
