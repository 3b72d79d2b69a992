package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete fileaccess configuration.
//
// This structure captures all configurable aspects of the tool including:
//   - Logging configuration
//   - Staging area used for files copied from remote shares
//   - Speed test parameters
//   - Defaults applied to newly created files and directories
//   - Named share definitions
//
// Configuration sources (in order of precedence):
//  1. Environment variables (FILEACCESS_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// Share Configuration Pattern:
// Each share type defines its own option set. A ShareConfig carries one map
// per type (e.g., sftp, s3) and only the section matching Type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Staging configures the scratch directory for remote file copies
	Staging StagingConfig `mapstructure:"staging" yaml:"staging"`

	// SpeedTest sets the default speed test parameters
	SpeedTest SpeedTestConfig `mapstructure:"speedtest" yaml:"speedtest"`

	// Defaults are applied to files and directories created on shares
	Defaults DefaultsConfig `mapstructure:"defaults" yaml:"defaults"`

	// Shares defines named shares that commands can refer to
	Shares []ShareConfig `mapstructure:"shares" yaml:"shares" validate:"dive"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// StagingConfig controls where remote files are copied before use.
type StagingConfig struct {
	// Dir is the staging directory. Empty creates a fresh directory under
	// the system temp dir for each run.
	Dir string `mapstructure:"dir" yaml:"dir"`

	// Prefix is prepended to scratch file names
	Prefix string `mapstructure:"prefix" yaml:"prefix"`

	// RandomLength is the number of random characters in scratch names
	RandomLength int `mapstructure:"random_length" yaml:"random_length" validate:"gte=8,lte=128"`

	// FileMode is the octal mode of scratch files (e.g., "0600")
	FileMode string `mapstructure:"file_mode" yaml:"file_mode" validate:"omitempty,octalmode"`

	// DirMode is the octal mode of the staging directory (e.g., "0700")
	DirMode string `mapstructure:"dir_mode" yaml:"dir_mode" validate:"omitempty,octalmode"`
}

// SpeedTestConfig sets the speed test defaults.
type SpeedTestConfig struct {
	// NumFiles is the number of files written, read and deleted
	NumFiles int `mapstructure:"num_files" yaml:"num_files" validate:"gt=0"`

	// FileSize is the size of each file in bytes
	FileSize int `mapstructure:"file_size" yaml:"file_size" validate:"gt=0"`
}

// DefaultsConfig holds attributes for new files and directories. Empty
// values leave the medium's defaults in place.
type DefaultsConfig struct {
	FileMode string `mapstructure:"file_mode" yaml:"file_mode,omitempty" validate:"omitempty,octalmode"`
	DirMode  string `mapstructure:"dir_mode" yaml:"dir_mode,omitempty" validate:"omitempty,octalmode"`
	UID      *int   `mapstructure:"uid" yaml:"uid,omitempty" validate:"omitempty,gte=0"`
	GID      *int   `mapstructure:"gid" yaml:"gid,omitempty" validate:"omitempty,gte=0"`
}

// ShareConfig defines a single named share.
//
// The Type field determines which backend is used. Only the corresponding
// type-specific section is decoded.
type ShareConfig struct {
	// Name identifies the share on the command line
	Name string `mapstructure:"name" yaml:"name" validate:"required"`

	// Type selects the backend
	// Valid values: local, sftp, smb, s3, memory
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=local sftp smb s3 memory"`

	// Local contains local filesystem options
	// Only used when Type = "local"
	Local map[string]any `mapstructure:"local" yaml:"local,omitempty"`

	// SFTP contains SSH/SFTP options
	// Only used when Type = "sftp"
	SFTP map[string]any `mapstructure:"sftp" yaml:"sftp,omitempty"`

	// SMB contains SMB/CIFS options
	// Only used when Type = "smb"
	SMB map[string]any `mapstructure:"smb" yaml:"smb,omitempty"`

	// S3 contains S3 options
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3,omitempty"`

	// Memory contains in-memory share options
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory,omitempty"`
}

// section returns the option map for the share's type.
func (sc *ShareConfig) section() map[string]any {
	switch sc.Type {
	case "local":
		return sc.Local
	case "sftp":
		return sc.SFTP
	case "smb":
		return sc.SMB
	case "s3":
		return sc.S3
	case "memory":
		return sc.Memory
	default:
		return nil
	}
}

// Share returns the share named name.
func (c *Config) Share(name string) (*ShareConfig, error) {
	for i := range c.Shares {
		if c.Shares[i].Name == name {
			return &c.Shares[i], nil
		}
	}
	return nil, fmt.Errorf("share %q is not configured", name)
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (FILEACCESS_*)
//  2. Configuration file
//  3. Default values
//
// A missing configuration file is not an error.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	// Read configuration file if it exists
	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use FILEACCESS_ prefix and underscores
	// Example: FILEACCESS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("FILEACCESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only applies to keys viper knows about
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"staging.dir", "staging.prefix", "staging.random_length",
		"staging.file_mode", "staging.dir_mode",
		"speedtest.num_files", "speedtest.file_size",
		"defaults.file_mode", "defaults.dir_mode", "defaults.uid", "defaults.gid",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/fileaccess/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "fileaccess")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "fileaccess")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
