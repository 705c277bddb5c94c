package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/treemirror/treemirror/pkg/buildinfo"
	"github.com/treemirror/treemirror/pkg/plog"
	"github.com/treemirror/treemirror/pkg/runlock"
	"github.com/treemirror/treemirror/pkg/util"
)

// ConfigFileName is the name of the configuration file.
const ConfigFileName = "treemirror.config.json"

// systemExcludeFilePatterns is a slice of file patterns that should always be
// excluded from mirroring for the system to function correctly. Without
// these, the cleanup pass would delete the replica's own config and lock
// files on every run.
var systemExcludeFilePatterns = []string{ConfigFileName, runlock.LockFileName}

// systemExcludeDirPatterns is a slice of directory patterns that should
// always be excluded from mirroring for the system to function correctly.
var systemExcludeDirPatterns = []string{}

type PerformanceConfig struct {
	Workers       int `json:"workers"`
	DeleteWorkers int `json:"deleteWorkers"`
	BufferSizeKB  int `json:"bufferSizeKB" comment:"Size of the I/O buffer in kilobytes for file copies and hashing. Default is 256 (256KB)."`
}

type EngineConfig struct {
	Metrics     bool              `json:"metrics"`
	FailFast    bool              `json:"failFast"`
	Performance PerformanceConfig `json:"performance"`
}

type MirrorConfig struct {
	RetryCount       int `json:"retryCount"`
	RetryWaitSeconds int `json:"retryWaitSeconds"`

	DefaultExcludeFiles []string `json:"defaultExcludeFiles,omitempty"`
	DefaultExcludeDirs  []string `json:"defaultExcludeDirs,omitempty"`
	// Note: omitempty is intentionally not used for user-configurable slices
	// so that they appear in the generated config file for better discoverability.
	UserExcludeFiles []string `json:"userExcludeFiles"`
	UserExcludeDirs  []string `json:"userExcludeDirs"`
}

type RuntimeConfig struct {
	DryRun bool
}

type Config struct {
	Version  string        `json:"version"`
	Source   string        `json:"source"`
	Replica  string        `json:"-"` // Never added to config file
	Runtime  RuntimeConfig `json:"-"` // Never added to config file
	LogLevel string        `json:"logLevel"`
	Engine   EngineConfig  `json:"engine"`
	Mirror   MirrorConfig  `json:"mirror"`
}

// NewDefault creates and returns a Config struct with sensible default values.
func NewDefault() Config {
	return Config{
		Version:  buildinfo.Version,
		Source:   "", // Intentionally empty to force user configuration.
		Replica:  "", // Intentionally empty to force user configuration.
		LogLevel: "notice",
		Runtime: RuntimeConfig{
			DryRun: false,
		},
		Engine: EngineConfig{
			FailFast: false,
			Metrics:  true, // Default to enabled for detailed performance and file-counting metrics.
			Performance: PerformanceConfig{
				Workers:       4,   // Default to 4. Safe for HDDs (prevents thrashing), decent for SSDs.
				DeleteWorkers: 4,   // A sensible default for deleting orphans.
				BufferSizeKB:  256, // Default to 256KB buffer. Keep it between 64KB-4MB
			},
		},
		Mirror: MirrorConfig{
			RetryCount:       3, // Default retries on failure.
			RetryWaitSeconds: 5, // Default wait time between retries.
			UserExcludeFiles: []string{},
			UserExcludeDirs:  []string{},
			DefaultExcludeFiles: []string{
				// Common temporary and system files across platforms.
				"*.tmp",       // Temporary files
				"*.temp",      // Temporary files
				"*.swp",       // Vim swap files
				"~*",          // Files starting with a tilde (often temporary)
				"desktop.ini", // Windows folder customization file
				".DS_Store",   // macOS folder customization file
				"Thumbs.db",   // Windows image thumbnail cache
			},
			DefaultExcludeDirs: []string{
				// Common temporary, system, and trash directories.
				"@tmp",         // Synology temporary folder
				"@eadir",       // Synology index folder
				"#recycle",     // Synology recycle bin
				"$Recycle.Bin", // Windows recycle bin
			},
		},
	}
}

// Load attempts to load a configuration from "treemirror.config.json" in the
// replica directory. If the file doesn't exist, it returns the default config
// without an error. If the file exists but fails to parse, it returns an
// error and a zero-value config.
func Load(replicaRoot string) (Config, error) {
	absReplicaPath, err := filepath.Abs(replicaRoot)
	if err != nil {
		return Config{}, fmt.Errorf("could not determine absolute path for load directory %s: %w", replicaRoot, err)
	}

	configPath := filepath.Join(absReplicaPath, ConfigFileName)

	file, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(), nil // Config file doesn't exist, which is a normal case.
		}
		return Config{}, fmt.Errorf("error opening config file %s: %w", configPath, err)
	}
	defer file.Close()

	plog.Info("Loading configuration", "path", configPath)
	// Start with default values, then overwrite with the file's content.
	// This makes the config loading resilient to missing fields in the JSON file.
	config := NewDefault()
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}

	// After loading, validate that if there is a replica path in the config
	// file it matches the directory it was loaded from. This prevents using
	// a config file in the wrong directory.
	// NOTE: there should never be a replica path in the config!
	if config.Replica != "" {
		absReplicaInConfig, err := filepath.Abs(config.Replica)
		if err != nil {
			return Config{}, fmt.Errorf("could not determine absolute path for replica in config %s: %w", config.Replica, err)
		}
		if absReplicaPath != absReplicaInConfig {
			return Config{}, fmt.Errorf("replica in config file (%s) does not match the directory it was loaded from (%s)", absReplicaInConfig, absReplicaPath)
		}
	} else {
		config.Replica = absReplicaPath
	}

	// At this point our config has been migrated if needed so override the version in the struct
	if config.Version != buildinfo.Version {
		config.Version = buildinfo.Version
	}
	return config, nil
}

// Generate creates or overwrites a default treemirror.config.json file in the
// replica directory.
func Generate(configToGenerate Config) error {
	configPath := filepath.Join(configToGenerate.Replica, ConfigFileName)
	jsonData, err := json.MarshalIndent(configToGenerate, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal default config to JSON: %w", err)
	}

	if err := os.WriteFile(configPath, jsonData, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	plog.Info("Successfully saved config file", "path", configPath)
	return nil
}

// Validate checks the configuration for logical errors and inconsistencies.
// It performs strict checks, including ensuring the source path is non-empty
// and exists when checkSource is set.
func (c *Config) Validate(checkSource bool) error {
	if checkSource && c.Source == "" {
		return fmt.Errorf("source path cannot be empty")
	}
	if c.Replica == "" {
		return fmt.Errorf("replica path cannot be empty")
	}

	// Clean and expand paths for canonical representation before use.
	var err error

	if c.Source != "" {
		c.Source, err = util.ExpandPath(c.Source)
		if err != nil {
			return fmt.Errorf("could not expand source path: %w", err)
		}
		c.Source = filepath.Clean(c.Source)

		if checkSource {
			if _, err := os.Stat(c.Source); os.IsNotExist(err) {
				return fmt.Errorf("source path '%s' does not exist", c.Source)
			}
		}
	}

	c.Replica, err = util.ExpandPath(c.Replica)
	if err != nil {
		return fmt.Errorf("could not expand replica path: %w", err)
	}
	c.Replica = filepath.Clean(c.Replica)

	// Nesting either way is fatal: a replica inside the source would be
	// copied into itself, and a source inside the replica would be deleted
	// as an orphan.
	if c.Source != "" {
		if err := checkPathNesting(c.Source, c.Replica); err != nil {
			return err
		}
	}

	if c.Engine.Performance.Workers < 1 {
		return fmt.Errorf("engine.performance.workers must be at least 1")
	}
	if c.Engine.Performance.DeleteWorkers < 1 {
		return fmt.Errorf("engine.performance.deleteWorkers must be at least 1")
	}
	if c.Engine.Performance.BufferSizeKB <= 0 {
		return fmt.Errorf("engine.performance.bufferSizeKB must be greater than 0")
	}
	if c.Mirror.RetryCount < 0 {
		return fmt.Errorf("mirror.retryCount cannot be negative")
	}
	if c.Mirror.RetryWaitSeconds < 0 {
		return fmt.Errorf("mirror.retryWaitSeconds cannot be negative")
	}

	if err := validateGlobPatterns("defaultExcludeFiles", c.Mirror.DefaultExcludeFiles); err != nil {
		return err
	}
	if err := validateGlobPatterns("userExcludeFiles", c.Mirror.UserExcludeFiles); err != nil {
		return err
	}
	if err := validateGlobPatterns("defaultExcludeDirs", c.Mirror.DefaultExcludeDirs); err != nil {
		return err
	}
	if err := validateGlobPatterns("userExcludeDirs", c.Mirror.UserExcludeDirs); err != nil {
		return err
	}
	return nil
}

// checkPathNesting rejects source/replica pairs where one contains the other.
func checkPathNesting(source, replica string) error {
	if source == replica {
		return fmt.Errorf("source and replica cannot be the same directory")
	}
	sep := string(filepath.Separator)
	if strings.HasPrefix(replica+sep, source+sep) {
		return fmt.Errorf("replica path '%s' cannot be inside the source path '%s'", replica, source)
	}
	if strings.HasPrefix(source+sep, replica+sep) {
		return fmt.Errorf("source path '%s' cannot be inside the replica path '%s'", source, replica)
	}
	return nil
}

// LogSummary prints a user-friendly summary of the configuration.
func (c *Config) LogSummary() {
	logArgs := []interface{}{
		"log_level", c.LogLevel,
		"source", c.Source,
		"replica", c.Replica,
		"dry_run", c.Runtime.DryRun,
		"fail_fast", c.Engine.FailFast,
		"metrics", c.Engine.Metrics,
		"workers", c.Engine.Performance.Workers,
		"delete_workers", c.Engine.Performance.DeleteWorkers,
		"buffer_size_kb", c.Engine.Performance.BufferSizeKB,
		"retry_count", c.Mirror.RetryCount,
		"retry_wait_seconds", c.Mirror.RetryWaitSeconds,
	}
	if finalExcludeFiles := c.Mirror.ExcludeFiles(); len(finalExcludeFiles) > 0 {
		logArgs = append(logArgs, "exclude_files", strings.Join(finalExcludeFiles, ", "))
	}
	if finalExcludeDirs := c.Mirror.ExcludeDirs(); len(finalExcludeDirs) > 0 {
		logArgs = append(logArgs, "exclude_dirs", strings.Join(finalExcludeDirs, ", "))
	}
	plog.Info("Configuration loaded", logArgs...)
}

// validateGlobPatterns checks if a list of strings are valid glob patterns.
func validateGlobPatterns(fieldName string, patterns []string) error {
	for _, pattern := range patterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid glob pattern for %s: %q - %w", fieldName, pattern, err)
		}
	}
	return nil
}

// ExcludeFiles returns the final, combined slice of file exclusion patterns,
// including non-overridable system patterns, default patterns, and
// user-configured patterns. It automatically handles deduplication.
func (m *MirrorConfig) ExcludeFiles() []string {
	return util.MergeAndDeduplicate(systemExcludeFilePatterns, m.DefaultExcludeFiles, m.UserExcludeFiles)
}

// ExcludeDirs returns the final, combined slice of directory exclusion
// patterns, including non-overridable system patterns, default patterns, and
// user-configured patterns. It automatically handles deduplication.
func (m *MirrorConfig) ExcludeDirs() []string {
	return util.MergeAndDeduplicate(systemExcludeDirPatterns, m.DefaultExcludeDirs, m.UserExcludeDirs)
}

// MergeConfigWithFlags overlays the configuration values from flags on top of
// a base configuration. It iterates over the setFlags map, which contains
// only the flags explicitly provided by the user on the command line.
func MergeConfigWithFlags(base Config, setFlags map[string]any) Config {
	merged := base

	for name, value := range setFlags {
		switch name {
		case "source":
			merged.Source = value.(string)
		case "replica":
			merged.Replica = value.(string)
		case "log-level":
			merged.LogLevel = value.(string)
		case "fail-fast":
			merged.Engine.FailFast = value.(bool)
		case "metrics":
			merged.Engine.Metrics = value.(bool)
		case "dry-run":
			merged.Runtime.DryRun = value.(bool)
		case "workers":
			merged.Engine.Performance.Workers = value.(int)
		case "delete-workers":
			merged.Engine.Performance.DeleteWorkers = value.(int)
		case "buffer-size-kb":
			merged.Engine.Performance.BufferSizeKB = value.(int)
		case "retry-count":
			merged.Mirror.RetryCount = value.(int)
		case "retry-wait":
			merged.Mirror.RetryWaitSeconds = value.(int)
		case "user-exclude-files":
			merged.Mirror.UserExcludeFiles = value.([]string)
		case "user-exclude-dirs":
			merged.Mirror.UserExcludeDirs = value.([]string)
		case "force", "default":
			// Consumed by the init command directly.
		default:
			plog.Debug("unhandled flag in MergeConfigWithFlags", "flag", name)
		}
	}
	return merged
}
