package config

import (
	"strings"

	"github.com/marmos91/fileaccess/pkg/share"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults
//   - Explicit values are preserved
//   - Share-specific defaults are handled by the backends
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyStagingDefaults(&cfg.Staging)
	applySpeedTestDefaults(&cfg.SpeedTest)
	applyShareDefaults(cfg.Shares)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// applyStagingDefaults sets staging area defaults.
func applyStagingDefaults(cfg *StagingConfig) {
	if cfg.Prefix == "" {
		cfg.Prefix = "tmp_"
	}
	if cfg.RandomLength == 0 {
		cfg.RandomLength = share.DefaultRandomLength
	}
	if cfg.FileMode == "" {
		cfg.FileMode = "0600"
	}
	if cfg.DirMode == "" {
		cfg.DirMode = "0700"
	}
}

// applySpeedTestDefaults sets speed test defaults.
func applySpeedTestDefaults(cfg *SpeedTestConfig) {
	if cfg.NumFiles == 0 {
		cfg.NumFiles = share.DefaultSpeedTestFiles
	}
	if cfg.FileSize == 0 {
		cfg.FileSize = share.DefaultSpeedTestFileSize
	}
}

// applyShareDefaults normalizes share entries.
func applyShareDefaults(shares []ShareConfig) {
	for i := range shares {
		shares[i].Type = strings.ToLower(shares[i].Type)
		if shares[i].Type == "cifs" {
			shares[i].Type = "smb"
		}
	}
}
