// Package config provides configuration management for MerLink.
// It handles loading, saving, and environment overrides of settings.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yllada/merlink/common"
	"github.com/yllada/merlink/dashboard"
	"github.com/yllada/merlink/vpn"
)

// Environment variables that override the file.
const (
	EnvUsername     = "MERLINK_USERNAME"
	EnvPassword     = "MERLINK_PASSWORD"
	EnvOrganization = "MERLINK_ORGANIZATION"
	EnvNetwork      = "MERLINK_NETWORK"
)

// Config represents the application configuration.
// All settings except the password are persisted to a YAML file in the
// user's config directory.
type Config struct {
	// Username is the dashboard login email.
	Username string `yaml:"username,omitempty"`
	// Organization preselects an organization by id or name.
	Organization string `yaml:"organization,omitempty"`
	// Network preselects a network by id or name.
	Network string `yaml:"network,omitempty"`
	// NetworkTypes filters network listings and name matching.
	NetworkTypes []string `yaml:"network_types,omitempty"`
	// SavePassword stores the dashboard password in the keyring.
	SavePassword bool `yaml:"save_password"`
	// ShowNotifications enables desktop notifications for connection events.
	ShowNotifications bool `yaml:"show_notifications"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
	// RequestTimeout bounds each dashboard page load.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// ConnectTimeout bounds how long to wait for the tunnel.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	// Endpoints overrides the dashboard hosts.
	Endpoints Endpoints `yaml:"endpoints"`
	// VPN holds the platform connection settings.
	VPN vpn.Options `yaml:"vpn"`

	// Password only ever comes from the environment.
	Password string `yaml:"-"`
}

// Endpoints mirrors dashboard.Endpoints in the file.
type Endpoints struct {
	AccountURL     string `yaml:"account_url"`
	ShardURLFormat string `yaml:"shard_url_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ShowNotifications: true,
		LogLevel:          "info",
		RequestTimeout:    common.RequestTimeout,
		ConnectTimeout:    common.ConnectionTimeout,
		Endpoints: Endpoints{
			AccountURL:     common.DefaultAccountURL,
			ShardURLFormat: common.DefaultShardURLFormat,
		},
	}
}

// Path returns the default config file path.
func Path() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", common.ConfigDirName, common.ConfigFileName), nil
}

// Load loads the configuration from the default path.
// If the file doesn't exist, it creates one with default values.
func Load() (*Config, error) {
	configPath, err := Path()
	if err != nil {
		return nil, common.JoinSentinel(common.ErrConfigLoad, err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.SaveTo(configPath); err != nil {
			common.LogWarn("Could not write default configuration: %v", err)
		}
		return cfg, nil
	}
	return LoadFrom(configPath)
}

// LoadFrom reads and validates the configuration at path. Missing keys keep
// their defaults.
func LoadFrom(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, common.JoinSentinel(common.ErrConfigLoad, fmt.Errorf("error opening configuration: %w", err))
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true) // Strict validation: reject unknown fields

	config := DefaultConfig()
	if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, common.JoinSentinel(common.ErrConfigLoad, fmt.Errorf("error parsing configuration: %w", err))
	}

	if err := config.validate(); err != nil {
		return nil, common.JoinSentinel(common.ErrConfigLoad, fmt.Errorf("invalid configuration: %w", err))
	}
	return config, nil
}

// validate verifies that configuration values are valid, falling back to
// defaults where a value can be safely replaced.
func (c *Config) validate() error {
	def := DefaultConfig()

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		common.LogWarn("Unknown log_level %q, using %s", c.LogLevel, def.LogLevel)
		c.LogLevel = def.LogLevel
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.Endpoints.AccountURL == "" {
		c.Endpoints.AccountURL = def.Endpoints.AccountURL
	}
	if c.Endpoints.ShardURLFormat == "" {
		c.Endpoints.ShardURLFormat = def.Endpoints.ShardURLFormat
	}

	var errs []error
	if !strings.Contains(c.Endpoints.ShardURLFormat, "%d") {
		errs = append(errs, fmt.Errorf("shard_url_format %q has no %%d verb", c.Endpoints.ShardURLFormat))
	}
	if _, err := c.ParsedNetworkTypes(); err != nil {
		errs = append(errs, err)
	}
	if err := c.VPN.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParsedNetworkTypes converts NetworkTypes to dashboard types.
func (c *Config) ParsedNetworkTypes() ([]dashboard.NetworkType, error) {
	var types []dashboard.NetworkType
	for _, s := range c.NetworkTypes {
		t, err := dashboard.ParseNetworkType(s)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

// DashboardEndpoints returns the configured dashboard hosts.
func (c *Config) DashboardEndpoints() dashboard.Endpoints {
	return dashboard.Endpoints{
		AccountURL:     c.Endpoints.AccountURL,
		ShardURLFormat: c.Endpoints.ShardURLFormat,
	}
}

// ApplyEnv overrides settings from the process environment and, when
// present, the .env file at envFile. Process variables win over the file.
func (c *Config) ApplyEnv(envFile string) error {
	fileVars := map[string]string{}
	if envFile != "" && common.FileExists(envFile) {
		vars, err := godotenv.Read(envFile)
		if err != nil {
			return common.JoinSentinel(common.ErrConfigLoad, fmt.Errorf("error reading %s: %w", envFile, err))
		}
		fileVars = vars
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVars[key]
		return v, ok
	}

	for key, dst := range map[string]*string{
		EnvUsername:     &c.Username,
		EnvPassword:     &c.Password,
		EnvOrganization: &c.Organization,
		EnvNetwork:      &c.Network,
	} {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	common.Redact(c.Password)
	return nil
}

// Save saves the configuration to the default path.
func (c *Config) Save() error {
	configPath, err := Path()
	if err != nil {
		return common.JoinSentinel(common.ErrConfigSave, err)
	}
	return c.SaveTo(configPath)
}

// SaveTo writes the configuration to path.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return common.JoinSentinel(common.ErrConfigSave, fmt.Errorf("error creating config directory: %w", err))
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return common.JoinSentinel(common.ErrConfigSave, fmt.Errorf("error serializing configuration: %w", err))
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return common.JoinSentinel(common.ErrConfigSave, fmt.Errorf("error saving configuration: %w", err))
	}
	return nil
}
