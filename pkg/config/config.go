package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/rocketdma/pkg/rocket"
	"github.com/OpenTraceLab/rocketdma/pkg/xdma"
)

// Config is the complete tool configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (applied by the caller after Load)
//  2. Environment variables (ROCKETDMA_*)
//  3. Configuration file (YAML)
//  4. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Device names the XDMA character devices
	Device DeviceConfig `mapstructure:"device" yaml:"device"`

	// Addresses locates the program, reset and result regions on the card
	Addresses AddressConfig `mapstructure:"addresses" yaml:"addresses"`

	// Result controls result page extraction
	Result ResultConfig `mapstructure:"result" yaml:"result"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// DeviceConfig names the two streaming channels.
type DeviceConfig struct {
	// H2C is the host-to-card device, e.g. /dev/xdma/card0/h2c0
	H2C string `mapstructure:"h2c" yaml:"h2c" validate:"required"`

	// C2H is the card-to-host device, e.g. /dev/xdma/card0/c2h0
	C2H string `mapstructure:"c2h" yaml:"c2h" validate:"required"`
}

// AddressConfig holds the card regions. Values may be written as integers or
// as strings with a 0x prefix.
type AddressConfig struct {
	ProgramBase Address `mapstructure:"program_base" yaml:"program_base"`
	ResetBase   Address `mapstructure:"reset_base" yaml:"reset_base"`
	ResultBase  Address `mapstructure:"result_base" yaml:"result_base"`
}

// ResultConfig controls how the result page is interpreted.
type ResultConfig struct {
	// PayloadMode is "page" (everything after the newline) or "nul"
	// (stop at the first NUL byte)
	PayloadMode string `mapstructure:"payload_mode" yaml:"payload_mode" validate:"required,oneof=page nul"`
}

// Address is a card address that renders as hex.
type Address uint64

// MarshalYAML renders the address as a 0x-prefixed hex string.
func (a Address) MarshalYAML() (any, error) {
	return a.String(), nil
}

func (a Address) String() string {
	return "0x" + strings.ToUpper(strconv.FormatUint(uint64(a), 16))
}

// ParseAddress accepts decimal, 0x hex, 0o octal or 0b binary.
func ParseAddress(s string) (Address, error) {
	v, err := strconv.ParseUint(strings.ReplaceAll(strings.TrimSpace(s), "_", ""), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return Address(v), nil
}

// AddressMap freezes the configured addresses for the operations layer.
func (c *Config) AddressMap() rocket.AddressMap {
	return rocket.AddressMap{
		ProgramBase: uint64(c.Addresses.ProgramBase),
		ResetBase:   uint64(c.Addresses.ResetBase),
		ResultBase:  uint64(c.Addresses.ResultBase),
	}
}

// Opener returns the device opener for the configured channels.
func (c *Config) Opener() xdma.DeviceOpener {
	return xdma.NewDeviceOpener(c.Device.H2C, c.Device.C2H)
}

// PayloadMode returns the parsed result payload mode.
func (c *Config) PayloadMode() xdma.PayloadMode {
	mode, err := xdma.ParsePayloadMode(c.Result.PayloadMode)
	if err != nil {
		return xdma.PayloadWholePage
	}
	return mode
}

// WriteYAML writes the effective configuration.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

// Load loads configuration from file, environment, and defaults.
//
// An empty configPath searches the default location; a missing file is not
// an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)
	setDefaults(v)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: ROCKETDMA_DEVICE_H2C=/dev/xdma/card1/h2c0
	v.SetEnvPrefix("ROCKETDMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicit path that does not exist falls back to defaults too.
		if configPath != "" && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns $XDG_CONFIG_HOME/rocketdma, ~/.config/rocketdma or ".".
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "rocketdma")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "rocketdma")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
