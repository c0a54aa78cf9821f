package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/OpenTraceLab/rocketdma/pkg/rocket"
	"github.com/OpenTraceLab/rocketdma/pkg/xdma"
)

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	cfg := &Config{
		Device: DeviceConfig{
			H2C: xdma.DefaultH2CPath,
			C2H: xdma.DefaultC2HPath,
		},
		Addresses: AddressConfig{
			ProgramBase: Address(rocket.DefaultProgramBase),
			ResetBase:   Address(rocket.DefaultResetBase),
			ResultBase:  Address(rocket.DefaultResultBase),
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// setDefaults registers every key with viper. Addresses are defaulted here
// rather than in ApplyDefaults because zero is a valid address. Registering
// the keys also lets AutomaticEnv resolve them during Unmarshal.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("device.h2c", d.Device.H2C)
	v.SetDefault("device.c2h", d.Device.C2H)
	v.SetDefault("addresses.program_base", uint64(d.Addresses.ProgramBase))
	v.SetDefault("addresses.reset_base", uint64(d.Addresses.ResetBase))
	v.SetDefault("addresses.result_base", uint64(d.Addresses.ResultBase))
	v.SetDefault("result.payload_mode", d.Result.PayloadMode)
}

// ApplyDefaults fills empty string fields and normalizes case.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyDeviceDefaults(&cfg.Device)
	applyResultDefaults(&cfg.Result)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	cfg.Format = strings.ToLower(cfg.Format)

	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyDeviceDefaults(cfg *DeviceConfig) {
	if cfg.H2C == "" {
		cfg.H2C = xdma.DefaultH2CPath
	}
	if cfg.C2H == "" {
		cfg.C2H = xdma.DefaultC2HPath
	}
}

func applyResultDefaults(cfg *ResultConfig) {
	if cfg.PayloadMode == "" {
		cfg.PayloadMode = xdma.PayloadWholePage.String()
	}
	cfg.PayloadMode = strings.ToLower(cfg.PayloadMode)
}
