// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Link drivers
const (
	DriverRTU      = "rtu"
	DriverGoburrow = "goburrow"
	DriverLocal    = "local"
)

// Config defines the global configuration structure
type Config struct {
	RegisterMap  string          `mapstructure:"register_map"`  // Register map CSV path
	SerialConfig string          `mapstructure:"serial_config"` // Serial config CSV path
	Link         LinkConfig      `mapstructure:"link"`
	Devices      []DeviceConfig  `mapstructure:"devices"`
	Log          LogConfig       `mapstructure:"log"`
	Metrics      MetricsConfig   `mapstructure:"metrics"`
	Simulator    SimulatorConfig `mapstructure:"simulator"`

	// File is the config file actually read, empty when none was found.
	File string `mapstructure:"-"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// LinkConfig selects and tunes the register transport.
type LinkConfig struct {
	Driver string      `mapstructure:"driver"` // "rtu", "goburrow", "local"
	RS485  RS485Config `mapstructure:"rs485"`
}

// RS485Config defines RTS handling for half-duplex transceivers.
type RS485Config struct {
	Enabled            bool          `mapstructure:"enabled"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// DeviceConfig registers one car at startup.
type DeviceConfig struct {
	Car   string `mapstructure:"car"`
	Port  string `mapstructure:"port"`
	Slave int    `mapstructure:"slave"`
}

// MetricsConfig defines the Prometheus endpoint.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"` // e.g. ":9108", empty disables
}

// SimulatorConfig defines the bench field-device simulator.
type SimulatorConfig struct {
	Port        string            `mapstructure:"port"`      // Serial device to serve on
	SlaveIDs    string            `mapstructure:"slave_ids"` // "1", "1,2", "1-10"
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Seed        []SeedConfig      `mapstructure:"seed"`
}

// SeedConfig presets one register of every simulated slave. It is a list
// rather than a map because viper folds map keys to lower case.
type SeedConfig struct {
	Register string `mapstructure:"register"`
	Value    uint16 `mapstructure:"value"`
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap"
	Path string `mapstructure:"path"` // Directory for "file/mmap" type
}

// LoadConfig loads configuration from file. An empty configFile searches
// the default locations; finding nothing there is not an error.
func LoadConfig(configFile string) (*Config, error) {
	return Load(viper.New(), configFile)
}

// Load reads configuration through v, so callers can bind flags first.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("carlink")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/carlink/")
		v.AddConfigPath("$HOME/.carlink")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("carlink")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("register_map", "registermap.csv")
	v.SetDefault("serial_config", "serialconfig.csv")
	v.SetDefault("link.driver", DriverRTU)
	v.SetDefault("log.level", "info")
	v.SetDefault("simulator.slave_ids", "1")
	v.SetDefault("simulator.persistence.type", "memory")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.File = v.ConfigFileUsed()

	// Validate / Fixups
	if err := config.fixup(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) fixup() error {
	c.Link.Driver = strings.ToLower(c.Link.Driver)
	switch c.Link.Driver {
	case DriverRTU, DriverGoburrow, DriverLocal:
	default:
		return fmt.Errorf("unknown link driver %q", c.Link.Driver)
	}

	if c.File != "" {
		base := filepath.Dir(c.File)
		c.RegisterMap = resolvePath(base, c.RegisterMap)
		c.SerialConfig = resolvePath(base, c.SerialConfig)
		c.Simulator.Persistence.Path = resolvePath(base, c.Simulator.Persistence.Path)
	}

	for i, d := range c.Devices {
		if d.Car == "" || d.Port == "" {
			return fmt.Errorf("device #%d: car and port are required", i+1)
		}
	}
	return nil
}

// resolvePath anchors a relative path at the config file's directory.
func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
