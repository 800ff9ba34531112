// Package config loads the EEPROM tool settings from a config file,
// environment variables and command line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	eeprom "github.com/YdPater/i2c-tools"
	"github.com/YdPater/i2c-tools/bus"
)

// DefaultFile is read from the working directory when no --config is given.
const DefaultFile = "i2c-eeprom.yaml"

// RetryConfig bounds the ACK polling done while a device is busy.
type RetryConfig struct {
	Attempts uint          `mapstructure:"attempts" yaml:"attempts"`
	Delay    time.Duration `mapstructure:"delay" yaml:"delay"`
}

// Config is the whole tool configuration.
//
// Address is kept as a string because the tool reads it as hex with or
// without 0x; quote it in YAML ("0x50").
type Config struct {
	Adapter  string         `mapstructure:"adapter" yaml:"adapter"`
	Address  string         `mapstructure:"address" yaml:"address"`
	Device   string         `mapstructure:"device" yaml:"device"`
	SpeedKHz int            `mapstructure:"speed_khz" yaml:"speed_khz"`
	Output   string         `mapstructure:"output" yaml:"output"`
	LogLevel string         `mapstructure:"log_level" yaml:"log_level"`
	Retry    RetryConfig    `mapstructure:"retry" yaml:"retry"`
	Models   []eeprom.Model `mapstructure:"models" yaml:"models"`
}

// Validate checks the values that do not depend on the selected device.
func (c *Config) Validate() error {
	if c.Adapter == "" {
		return errors.New("adapter is required")
	}
	if _, err := eeprom.ParseSlaveAddress(c.Address); err != nil {
		return err
	}
	if c.SpeedKHz <= 0 {
		return fmt.Errorf("speed_khz must be positive, got %d", c.SpeedKHz)
	}
	if c.Retry.Attempts == 0 {
		return errors.New("retry.attempts must be at least 1")
	}
	if c.Retry.Delay < 0 {
		return errors.New("retry.delay must not be negative")
	}
	if _, err := c.Level(); err != nil {
		return err
	}

	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() (zapcore.Level, error) {
	return zapcore.ParseLevel(c.LogLevel)
}

var (
	defaults = map[string]any{
		"adapter":        bus.DefaultFTDIURL,
		"address":        "0x50",
		"device":         "",
		"speed_khz":      100,
		"output":         "mem.out",
		"log_level":      "info",
		"retry.attempts": eeprom.DefaultAttempts,
		"retry.delay":    eeprom.DefaultDelay,
	}

	// envBindings maps config keys to the environment variables that set
	// them, preferred name first.
	envBindings = map[string][]string{
		"adapter":        {"I2C_EEPROM_ADAPTER", "I2C_EEPROM_FTDI_DEVICE"},
		"address":        {"I2C_EEPROM_ADDRESS"},
		"device":         {"I2C_EEPROM_DEVICE"},
		"speed_khz":      {"I2C_EEPROM_SPEED_KHZ"},
		"output":         {"I2C_EEPROM_OUTPUT"},
		"log_level":      {"I2C_EEPROM_LOG_LEVEL"},
		"retry.attempts": {"I2C_EEPROM_RETRY_ATTEMPTS"},
		"retry.delay":    {"I2C_EEPROM_RETRY_DELAY"},
	}

	// flagBindings maps config keys to command line flag names.
	flagBindings = map[string]string{
		"adapter":        "adapter",
		"address":        "address",
		"device":         "eeprom-device",
		"speed_khz":      "speed",
		"output":         "output-file",
		"log_level":      "log-level",
		"retry.attempts": "retry-attempts",
		"retry.delay":    "retry-delay",
	}
)

// Load reads the config file at filePath when it is not empty, then layers
// environment variables and the flags set in flags on top. flags may be nil.
func Load(filePath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := bindEnvs(v); err != nil {
		return nil, err
	}
	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if filePath != "" {
		v.SetConfigFile(filePath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", filePath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

// bindEnvs binds the environment variables to the viper instance.
func bindEnvs(v *viper.Viper) error {
	for key, envs := range envBindings {
		inputs := slices.Insert(slices.Clone(envs), 0, key)
		if err := v.BindEnv(inputs...); err != nil {
			return err
		}
	}

	return nil
}

// bindFlags binds the flags present in flags. Unchanged flags only provide
// defaults, so the file and the environment still win over them.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key, name := range flagBindings {
		f := flags.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}

	return nil
}
