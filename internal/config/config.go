package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all steward configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Memory bank validation
	Memory MemoryConfig `yaml:"memory"`

	// Sub-agent definitions
	Agents AgentsConfig `yaml:"agents"`

	// Snapshot backups
	Backup BackupConfig `yaml:"backup"`

	// Agent routing
	Router RouterConfig `yaml:"router"`

	// Routing benchmark harness
	Bench BenchConfig `yaml:"bench"`

	// Filesystem watcher
	Watch WatchConfig `yaml:"watch"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// MemoryConfig configures memory bank validation.
type MemoryConfig struct {
	// Directory name under .claude/
	Dir string `yaml:"dir"`

	// Size thresholds in bytes
	MaxFileBytes  int64 `yaml:"max_file_bytes"`  // critical above this
	WarnFileBytes int64 `yaml:"warn_file_bytes"` // warning above this

	// Line threshold
	WarnFileLines int `yaml:"warn_file_lines"`

	// Files not modified within this window are flagged stale
	StaleAfter string `yaml:"stale_after"`

	// Require a leading H1 title in every memory file
	RequireTitle bool `yaml:"require_title"`
}

// AgentsConfig configures sub-agent definition loading.
type AgentsConfig struct {
	// Directory name under .claude/
	Dir string `yaml:"dir"`

	// User-level agents directory; empty disables the second tier
	UserDir string `yaml:"user_dir"`

	MaxNameLength        int `yaml:"max_name_length"`
	MaxDescriptionLength int `yaml:"max_description_length"`
}

// BackupConfig configures snapshot backups of the memory bank.
type BackupConfig struct {
	// Newest snapshots kept by prune
	Keep int `yaml:"keep"`

	// Snapshots older than this are pruned regardless of count
	MaxAge string `yaml:"max_age"`

	// Verify checksums immediately after creating a snapshot
	VerifyAfterCreate bool `yaml:"verify_after_create"`
}

// RouterConfig configures the deterministic agent router.
type RouterConfig struct {
	WeightTrigger     float64 `yaml:"weight_trigger"`
	WeightName        float64 `yaml:"weight_name"`
	WeightDescription float64 `yaml:"weight_description"`

	// Decisions scoring below this return no match
	MinScore float64 `yaml:"min_score"`

	// Fallback agent when nothing scores; empty means no fallback
	DefaultAgent string `yaml:"default_agent"`
}

// BenchConfig configures the routing benchmark harness.
type BenchConfig struct {
	Iterations int    `yaml:"iterations"`
	Warmup     int    `yaml:"warmup"`
	Fixtures   string `yaml:"fixtures"`
}

// WatchConfig configures the filesystem watcher.
type WatchConfig struct {
	Debounce        string  `yaml:"debounce"`
	MaxEventsPerSec float64 `yaml:"max_events_per_sec"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level    string `yaml:"level"` // debug, info, warn, error
	File     string `yaml:"file"`
	MaxBytes int64  `yaml:"max_bytes"` // rotate when the log file exceeds this
	Keep     int    `yaml:"keep"`      // rotated files retained
	Compress bool   `yaml:"compress"`  // gzip rotated files
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "steward",
		Version: "0.3.0",

		Memory: MemoryConfig{
			Dir:           "memory",
			MaxFileBytes:  96 * 1024,
			WarnFileBytes: 48 * 1024,
			WarnFileLines: 600,
			StaleAfter:    "336h",
			RequireTitle:  true,
		},

		Agents: AgentsConfig{
			Dir:                  "agents",
			UserDir:              "~/.claude/agents",
			MaxNameLength:        64,
			MaxDescriptionLength: 1024,
		},

		Backup: BackupConfig{
			Keep:              10,
			MaxAge:            "720h",
			VerifyAfterCreate: true,
		},

		Router: RouterConfig{
			WeightTrigger:     3.0,
			WeightName:        2.0,
			WeightDescription: 1.0,
			MinScore:          1.0,
			DefaultAgent:      "",
		},

		Bench: BenchConfig{
			Iterations: 100,
			Warmup:     10,
			Fixtures:   "",
		},

		Watch: WatchConfig{
			Debounce:        "500ms",
			MaxEventsPerSec: 20,
		},

		Logging: LoggingConfig{
			Level:    "info",
			File:     "steward.log",
			MaxBytes: 1024 * 1024,
			Keep:     5,
			Compress: true,
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("STEWARD_MEMORY_DIR"); dir != "" {
		c.Memory.Dir = dir
	}
	if dir := os.Getenv("STEWARD_AGENTS_DIR"); dir != "" {
		c.Agents.Dir = dir
	}
	if level := os.Getenv("STEWARD_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if agent := os.Getenv("STEWARD_DEFAULT_AGENT"); agent != "" {
		c.Router.DefaultAgent = agent
	}

	// Numeric overrides are ignored when unparseable
	if keep := os.Getenv("STEWARD_BACKUP_KEEP"); keep != "" {
		if n, err := strconv.Atoi(keep); err == nil && n > 0 {
			c.Backup.Keep = n
		}
	}
}

// GetStaleAfter returns the memory staleness window as a duration.
func (c *Config) GetStaleAfter() time.Duration {
	d, err := time.ParseDuration(c.Memory.StaleAfter)
	if err != nil {
		return 14 * 24 * time.Hour
	}
	return d
}

// GetBackupMaxAge returns the backup age limit as a duration.
func (c *Config) GetBackupMaxAge() time.Duration {
	d, err := time.ParseDuration(c.Backup.MaxAge)
	if err != nil {
		return 30 * 24 * time.Hour
	}
	return d
}

// GetUserAgentsDir returns the personal agents directory with a leading
// ~ expanded. The literal is kept in the config file so it stays portable
// across machines. Empty when the tier is disabled or no home resolves.
func (c *Config) GetUserAgentsDir() string {
	dir := c.Agents.UserDir
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		return filepath.Join(home, strings.TrimPrefix(dir[1:], "/"))
	}
	return dir
}

// GetWatchDebounce returns the watcher debounce window as a duration.
func (c *Config) GetWatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// ValidLogLevels lists all supported logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Memory.Dir == "" {
		return fmt.Errorf("memory dir not configured")
	}
	if c.Agents.Dir == "" {
		return fmt.Errorf("agents dir not configured")
	}
	if c.Memory.WarnFileBytes > c.Memory.MaxFileBytes {
		return fmt.Errorf("memory warn threshold %d exceeds max %d", c.Memory.WarnFileBytes, c.Memory.MaxFileBytes)
	}
	if c.Backup.Keep < 1 {
		return fmt.Errorf("backup keep must be at least 1, got %d", c.Backup.Keep)
	}

	validLevel := false
	for _, l := range ValidLogLevels {
		if c.Logging.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}

	if c.Router.WeightTrigger < 0 || c.Router.WeightName < 0 || c.Router.WeightDescription < 0 {
		return fmt.Errorf("router weights must be non-negative")
	}
	if c.Bench.Iterations < 1 {
		return fmt.Errorf("bench iterations must be at least 1, got %d", c.Bench.Iterations)
	}

	return nil
}
