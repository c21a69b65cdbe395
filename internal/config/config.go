package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Catalog CatalogConfig `mapstructure:"catalog"`
	Paths   PathsConfig   `mapstructure:"paths"`
	Network NetworkConfig `mapstructure:"network"`
	Input   InputConfig   `mapstructure:"input"`
	History HistoryConfig `mapstructure:"history"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CatalogConfig locates the system catalog
type CatalogConfig struct {
	File string `mapstructure:"file"` // YAML, JSON or TOML, chosen by extension
}

// PathsConfig holds the filesystem layout
type PathsConfig struct {
	Staging     string `mapstructure:"staging"`     // Scratch space, cleared between items
	Destination string `mapstructure:"destination"` // Root holding one folder per system
}

// NetworkConfig holds transfer settings
type NetworkConfig struct {
	ListingTimeout  time.Duration `mapstructure:"listing_timeout"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"` // Connect, header and per-read bound
	ChunkSize       int           `mapstructure:"chunk_size"`
	UserAgent       string        `mapstructure:"user_agent"`
}

// InputConfig holds held-direction auto-repeat timing
type InputConfig struct {
	RepeatDelay    time.Duration `mapstructure:"repeat_delay"`
	RepeatInterval time.Duration `mapstructure:"repeat_interval"`
}

// HistoryConfig holds the install history store settings
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File        string `mapstructure:"file"`
	Level       string `mapstructure:"level"`
	FailureFile string `mapstructure:"failure_file"`
	Trace       bool   `mapstructure:"trace"` // Attach stacks to failure entries
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			File: filepath.Join(defaultConfigPath(), "catalog.yaml"),
		},
		Paths: PathsConfig{
			Staging:     filepath.Join(defaultDataPath(), "staging"),
			Destination: filepath.Join(defaultDataPath(), "roms"),
		},
		Network: NetworkConfig{
			ListingTimeout:  10 * time.Second,
			DownloadTimeout: 10 * time.Second,
			ChunkSize:       1024,
			UserAgent:       "romdl/1.0",
		},
		Input: InputConfig{
			RepeatDelay:    300 * time.Millisecond,
			RepeatInterval: 150 * time.Millisecond,
		},
		History: HistoryConfig{
			Enabled: true,
			Dir:     defaultDataPath(),
		},
		Logging: LoggingConfig{
			File:        filepath.Join(defaultDataPath(), "romdl.log"),
			Level:       "INFO",
			FailureFile: filepath.Join(defaultDataPath(), "failures.log"),
		},
	}
}

// defaultDataPath returns the default data directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "romdl")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "romdl")
	}
}

// defaultConfigPath returns the default config file path for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "romdl")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "romdl")
	}
}

// LoadConfig loads configuration from file and environment.
// An empty file searches the default locations.
func LoadConfig(file string) (*Config, error) {
	cfg := DefaultConfig()

	if file != "" {
		viper.SetConfigFile(file)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(defaultConfigPath())
		viper.AddConfigPath(".")
	}

	// Environment variable overrides (ROMDL_PATHS_STAGING, ...)
	viper.SetEnvPrefix("ROMDL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	bindEnv(cfg)

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	cfg.expandPaths()
	return cfg, nil
}

// bindEnv registers every key so AutomaticEnv applies during Unmarshal
// even when the key is absent from the config file.
func bindEnv(cfg *Config) {
	for key, value := range settings(cfg) {
		viper.SetDefault(key, value)
	}
}

// settings flattens cfg into viper keys (snake_case)
func settings(cfg *Config) map[string]any {
	return map[string]any{
		"catalog.file":             cfg.Catalog.File,
		"paths.staging":            cfg.Paths.Staging,
		"paths.destination":        cfg.Paths.Destination,
		"network.listing_timeout":  cfg.Network.ListingTimeout,
		"network.download_timeout": cfg.Network.DownloadTimeout,
		"network.chunk_size":       cfg.Network.ChunkSize,
		"network.user_agent":       cfg.Network.UserAgent,
		"input.repeat_delay":       cfg.Input.RepeatDelay,
		"input.repeat_interval":    cfg.Input.RepeatInterval,
		"history.enabled":          cfg.History.Enabled,
		"history.dir":              cfg.History.Dir,
		"logging.file":             cfg.Logging.File,
		"logging.level":            cfg.Logging.Level,
		"logging.failure_file":     cfg.Logging.FailureFile,
		"logging.trace":            cfg.Logging.Trace,
	}
}

// SaveConfig writes cfg to file, or to the default location when file is empty.
func SaveConfig(cfg *Config, file string) error {
	if file == "" {
		file = filepath.Join(defaultConfigPath(), "config.yaml")
	}

	// Ensure config directory exists
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Set fields individually to ensure correct key names (snake_case)
	for key, value := range settings(cfg) {
		if d, ok := value.(time.Duration); ok {
			value = d.String()
		}
		viper.Set(key, value)
	}

	if err := viper.WriteConfigAs(file); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandPaths resolves a leading ~ in every path setting
func (c *Config) expandPaths() {
	for _, p := range []*string{
		&c.Catalog.File,
		&c.Paths.Staging,
		&c.Paths.Destination,
		&c.History.Dir,
		&c.Logging.File,
		&c.Logging.FailureFile,
	} {
		*p = ExpandHome(*p)
	}
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// Validate checks settings the transfer pipeline depends on
func (c *Config) Validate() error {
	if c.Paths.Staging == "" {
		return fmt.Errorf("paths.staging is required")
	}
	if c.Paths.Destination == "" {
		return fmt.Errorf("paths.destination is required")
	}
	if c.Network.ChunkSize <= 0 {
		return fmt.Errorf("network.chunk_size must be positive, got %d", c.Network.ChunkSize)
	}
	if c.Network.ListingTimeout <= 0 || c.Network.DownloadTimeout <= 0 {
		return fmt.Errorf("network timeouts must be positive")
	}
	return nil
}
