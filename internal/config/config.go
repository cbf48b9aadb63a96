// Package config provides configuration management for the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/encoding/ini"
	"github.com/spf13/viper"
)

// DashboardDisabled is the sentinel endpoint value that disables the
// data product dashboard integration.
const DashboardDisabled = "disabled"

// Config holds the global configuration.
type Config struct {
	// DataProductDashboard is the endpoint of the SDP Data Product Dashboard
	// REST API, or "disabled".
	DataProductDashboard string `mapstructure:"data_product_dashboard"`

	// ScanTimeout is the number of seconds after which a scan with no
	// filesystem activity is considered inactive.
	ScanTimeout float64 `mapstructure:"scan_timeout"`

	// LoopWait is the wait, in seconds, between worker loop iterations.
	LoopWait float64 `mapstructure:"loop_wait"`

	// MinimumAge is the minimum age, in seconds, a file must have before it
	// is processed or transferred.
	MinimumAge float64 `mapstructure:"minimum_age"`

	// CondTimeout is the wait, in seconds, of the orchestrator when no scan
	// is available.
	CondTimeout float64 `mapstructure:"cond_timeout"`

	// Debug enables debug output.
	Debug bool `mapstructure:"debug"`

	// Verbose enables verbose output.
	Verbose bool `mapstructure:"verbose"`

	// Quiet suppresses non-error output.
	Quiet bool `mapstructure:"quiet"`

	// NoColor disables colored output.
	NoColor bool `mapstructure:"no_color"`

	// ConfigFile is the path to the configuration file (set at runtime).
	ConfigFile string `mapstructure:"-"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataProductDashboard: DashboardDisabled,
		ScanTimeout:          300,
		LoopWait:             2,
		MinimumAge:           10,
		CondTimeout:          10,
		Debug:                false,
		Verbose:              false,
		Quiet:                false,
		NoColor:              false,
	}
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "ska-pst-send", "ska-pst-send.ini")
}

// DashboardEnabled reports whether a data product dashboard endpoint is
// configured.
func (c *Config) DashboardEnabled() bool {
	return c.DataProductDashboard != "" && c.DataProductDashboard != DashboardDisabled
}

// Load loads configuration from all sources in priority order:
// 1. Command-line flags (handled by cobra)
// 2. Environment variables (SKA_PST_SEND_*)
// 3. Config file
// 4. Defaults
func Load(configFile string) (*Config, error) {
	codecRegistry := viper.NewCodecRegistry()
	if err := codecRegistry.RegisterCodec("ini", ini.Codec{}); err != nil {
		return nil, fmt.Errorf("registering INI codec: %w", err)
	}

	v := viper.NewWithOptions(
		viper.WithCodecRegistry(codecRegistry),
	)

	defaults := DefaultConfig()
	v.SetDefault("data_product_dashboard", defaults.DataProductDashboard)
	v.SetDefault("scan_timeout", defaults.ScanTimeout)
	v.SetDefault("loop_wait", defaults.LoopWait)
	v.SetDefault("minimum_age", defaults.MinimumAge)
	v.SetDefault("cond_timeout", defaults.CondTimeout)
	v.SetDefault("debug", defaults.Debug)
	v.SetDefault("verbose", defaults.Verbose)
	v.SetDefault("quiet", defaults.Quiet)
	v.SetDefault("no_color", defaults.NoColor)

	v.SetEnvPrefix("SKA_PST_SEND")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	// NO_COLOR is the conventional opt-out across terminals.
	if os.Getenv("NO_COLOR") != "" {
		v.Set("no_color", true)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".config", "ska-pst-send"))
		v.AddConfigPath(".")
		v.SetConfigName("ska-pst-send")
		v.SetConfigType("ini")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			if configFile != "" {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	// Viper reads an INI [DEFAULT] section as "DEFAULT.<key>".
	for _, key := range []string{
		"data_product_dashboard", "scan_timeout", "loop_wait",
		"minimum_age", "cond_timeout",
	} {
		sectioned := "DEFAULT." + key
		if !v.InConfig(key) && v.InConfig(sectioned) {
			v.Set(key, v.Get(sectioned))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ConfigFile = v.ConfigFileUsed()

	return &cfg, nil
}
