// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package util

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultExpiration is the multisig order lifetime used for contract types
// without an explicit entry.
const DefaultExpiration = time.Hour

// DeviceConfig describes this wallet to connecting applications.
type DeviceConfig struct {
	Platform   string `yaml:"platform" description:"Platform reported to applications" default:"linux"`
	AppName    string `yaml:"app_name" description:"Wallet name reported to applications" default:"custody"`
	AppVersion string `yaml:"app_version" description:"Wallet version reported to applications" default:"0.1.0"`
}

// Config represents the custody configuration file
type Config struct {
	KeystoreDir          string            `yaml:"keystore" description:"Keystore directory" default:"keystore"`
	ProtocolVersion      int               `yaml:"protocol_version" description:"Supported bridge protocol version" default:"2"`
	MaxMessages          int               `yaml:"max_messages" description:"Maximum messages per send request" default:"4"`
	ApprovalTimeout      string            `yaml:"approval_timeout" description:"Time to wait for the user before declining (0=never)" default:"5m"`
	Network              string            `yaml:"network" description:"Network id reported in ton_addr items" default:"-239"`
	Device               DeviceConfig      `yaml:"device" description:"Device information"`
	ContractExpirations  map[string]string `yaml:"contract_expirations" description:"Multisig order lifetime per contract type"`
	FinalizedCacheSize   int               `yaml:"finalized_cache_size" description:"Finalized transactions remembered per process" default:"1024"`
	SubscriberBufferSize int               `yaml:"subscriber_buffer" description:"Buffered change notifications per subscriber" default:"16"`
	PasswordCommandArgv  []string          `yaml:"password_command_argv" description:"Helper printing the keystore password for unattended use"`
	PasswordCommandEnv   map[string]string `yaml:"password_command_env" description:"Environment passed to the password helper"`
}

// DefaultConfig returns the default configuration.
// Relative paths are resolved relative to the data directory ($CUSTODY_DATA).
func DefaultConfig() Config {
	return Config{
		KeystoreDir:     "keystore",
		ProtocolVersion: 2,
		MaxMessages:     4,
		ApprovalTimeout: "5m",
		Network:         "-239",
		Device: DeviceConfig{
			Platform:   "linux",
			AppName:    "custody",
			AppVersion: "0.1.0",
		},
		ContractExpirations: map[string]string{
			"multisig_v1":         "1h",
			"multisig_2":          "1h",
			"multisig_2_extended": "24h",
		},
		FinalizedCacheSize:   1024,
		SubscriberBufferSize: 16,
	}
}

// ResolvePath resolves a path relative to baseDir if not absolute.
// Returns path unchanged if empty or already absolute.
func ResolvePath(path, baseDir string) string {
	if path == "" || baseDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// GetDataDir returns the data directory.
// It checks -d flag value first (passed as parameter), then CUSTODY_DATA env var.
func GetDataDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("CUSTODY_DATA")
}

// LoadConfig loads configuration from <dataDir>/config.yaml.
// Returns the defaults if the file doesn't exist. A file that exists but
// cannot be parsed is an error.
func LoadConfig(dataDir string) (Config, error) {
	defaults := DefaultConfig()

	if dataDir == "" {
		return defaults, nil
	}
	defaults.KeystoreDir = ResolvePath(defaults.KeystoreDir, dataDir)

	path := filepath.Join(dataDir, "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaults, nil
		}
		return defaults, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return defaults, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// Fill in missing fields with defaults
	if config.KeystoreDir == "" {
		config.KeystoreDir = defaults.KeystoreDir
	}
	if config.ProtocolVersion == 0 {
		config.ProtocolVersion = defaults.ProtocolVersion
	}
	if config.MaxMessages == 0 {
		config.MaxMessages = defaults.MaxMessages
	}
	if config.ApprovalTimeout == "" {
		config.ApprovalTimeout = defaults.ApprovalTimeout
	}
	if config.Network == "" {
		config.Network = defaults.Network
	}
	if config.Device.Platform == "" {
		config.Device.Platform = defaults.Device.Platform
	}
	if config.Device.AppName == "" {
		config.Device.AppName = defaults.Device.AppName
	}
	if config.Device.AppVersion == "" {
		config.Device.AppVersion = defaults.Device.AppVersion
	}
	if config.ContractExpirations == nil {
		config.ContractExpirations = defaults.ContractExpirations
	}
	if config.FinalizedCacheSize <= 0 {
		config.FinalizedCacheSize = defaults.FinalizedCacheSize
	}
	if config.SubscriberBufferSize <= 0 {
		config.SubscriberBufferSize = defaults.SubscriberBufferSize
	}

	config.KeystoreDir = ResolvePath(config.KeystoreDir, dataDir)
	if len(config.PasswordCommandArgv) > 0 {
		config.PasswordCommandArgv[0] = ResolvePath(config.PasswordCommandArgv[0], dataDir)
	}

	if _, err := config.Expirations(); err != nil {
		return defaults, err
	}
	if _, err := ParseTimeout(config.ApprovalTimeout); err != nil {
		return defaults, fmt.Errorf("approval_timeout: %w", err)
	}

	return config, nil
}

// Expirations parses ContractExpirations into durations.
func (c *Config) Expirations() (map[string]time.Duration, error) {
	out := make(map[string]time.Duration, len(c.ContractExpirations))
	for contract, value := range c.ContractExpirations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("contract_expirations[%s]: invalid duration format: %w", contract, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("contract_expirations[%s]: must be positive, got %q", contract, value)
		}
		out[contract] = d
	}
	return out, nil
}

// PasswordCommand returns the configured password helper, if any.
func (c *Config) PasswordCommand() PasswordCommand {
	return PasswordCommand{Argv: c.PasswordCommandArgv, Env: c.PasswordCommandEnv}
}

// ApprovalTimeoutDuration returns the parsed approval timeout (0 = never).
func (c *Config) ApprovalTimeoutDuration() time.Duration {
	d, _ := ParseTimeout(c.ApprovalTimeout)
	return d
}

// ParseTimeout parses a timeout string into a time.Duration.
// Accepts formats like: "0" (never expire), "15m" (15 minutes), "1h" (1 hour).
// Negative durations are rejected.
func ParseTimeout(timeoutStr string) (time.Duration, error) {
	if timeoutStr == "" || timeoutStr == "0" {
		return 0, nil // Never expire
	}

	duration, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration format: %w", err)
	}

	if duration < 0 {
		return 0, fmt.Errorf("negative duration %q not supported (use \"0\" for no timeout)", timeoutStr)
	}

	return duration, nil
}
