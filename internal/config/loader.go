// internal/config/loader.go
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix namespaces all gandalf environment variables.
	EnvPrefix = "GANDALF_"

	// envConfigPath points at an alternate config file.
	envConfigPath = "GANDALF_CONFIG"
)

// DefaultPath returns the default config file location, ~/.gandalf/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".gandalf", "config.yaml"), nil
}

// LoadWithFile loads configuration from YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (GANDALF_LOGGING_LEVEL, GANDALF_CACHE_TTL, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty,
// $GANDALF_CONFIG is consulted, then ~/.gandalf/config.yaml. A missing
// file is not an error; defaults apply.
//
// # Security Considerations
//
// File permissions: the config file must be 0600 or 0400. Weaker
// permissions are rejected because the file may pin paths that gandalf
// will open and read.
//
// Path validation: config files must live under ~/.gandalf/ or
// /etc/gandalf/. Symlinks are resolved before the check.
//
// File size: files larger than 1MB are rejected.
//
// # Environment Variable Mapping
//
// Variables are uppercased with underscore separators. The first
// underscore after the prefix splits section from field:
//
//	GANDALF_LOGGING_LEVEL         -> logging.level
//	GANDALF_CACHE_TTL             -> cache.ttl
//	GANDALF_SOURCES_TIMESTAMP_UNIT -> sources.timestamp_unit
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		configPath = os.Getenv(envConfigPath)
	}
	if configPath == "" {
		defaultPath, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = defaultPath
	}

	// Validate config path (even if file doesn't exist)
	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	// Load from YAML file if it exists
	if _, err := os.Stat(configPath); err == nil {
		// Open file once and validate via the file descriptor to avoid a
		// TOCTOU race between the stat and the read.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}

		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// rawbytes provider avoids re-opening the file
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Override with environment variables
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envTransform maps GANDALF_SECTION_FIELD to section.field.
// The first underscore after the prefix separates section from field;
// field names keep their underscores (GANDALF_POOL_BUSY_TIMEOUT
// becomes pool.busy_timeout).
func envTransform(s string) string {
	trimmed := strings.TrimPrefix(s, EnvPrefix)

	// GANDALF_CONFIG selects the file, it is not a config key
	if trimmed == "CONFIG" {
		return ""
	}

	lower := strings.ToLower(trimmed)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// EnsureConfigDir creates the gandalf home directory if it doesn't exist.
// Called during startup so cache and export paths have a parent ready.
// The directory is created with 0700 permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".gandalf")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	return nil
}

// validateConfigPath checks if path is in allowed directories.
// This validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Resolve symlinks so a link cannot escape the allowed directories.
	// When resolution fails the path likely doesn't exist yet; validate
	// the absolute path instead.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".gandalf"),
		"/etc/gandalf",
	}

	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) || resolvedPath == dir {
			return nil
		}
	}

	return fmt.Errorf("config file must be in ~/.gandalf/ or /etc/gandalf/")
}

// validateConfigFileProperties checks file permissions and size.
// Takes FileInfo from an already-opened file descriptor.
func validateConfigFileProperties(info os.FileInfo) error {
	// Windows has a different permission model, skip the mode check there
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
