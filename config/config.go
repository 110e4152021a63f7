// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads the node's YAML configuration.
//
// Every key is optional; Default lists the values used for missing keys.
// Durations are written the time.ParseDuration way ("1s", "20ms").
package config

import (
	"os"
	"strings"
	"time"

	logger "github.com/d2r2/go-logger"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/GermanBionicSystems/co2node/acquire"
	"github.com/GermanBionicSystems/co2node/bmp580"
	"github.com/GermanBionicSystems/co2node/monitoring"
	"github.com/GermanBionicSystems/co2node/scd4x"
)

// TokenEnv overrides monitoring.token when set, so the token can be kept
// out of the file.
const TokenEnv = "CO2NODE_MONITORING_TOKEN"

// Bus backends.
const (
	BackendPeriph = "periph"
	BackendI2CDev = "i2cdev"
)

type LogConfig struct {
	// One of debug, info, notify, warn, error, fatal.
	Level string `yaml:"level"`
}

type BusConfig struct {
	Backend string `yaml:"backend"`
	// periph bus name, empty for the first bus.
	Name string `yaml:"name"`
	// /dev/i2c-N for the i2cdev backend.
	Number int `yaml:"number"`
	// Bound on each transaction, zero for none.
	Timeout time.Duration `yaml:"timeout"`
}

type OversamplingConfig struct {
	Temperature string `yaml:"temperature"`
	Pressure    string `yaml:"pressure"`
}

type PressureConfig struct {
	Address      uint16             `yaml:"address"`
	Oversampling OversamplingConfig `yaml:"oversampling"`
	// Leave the sensor converting at 1 Hz between forced reads.
	Continuous bool `yaml:"continuous"`
}

type CO2Config struct {
	Address uint16 `yaml:"address"`
}

type AcquisitionConfig struct {
	PollRetries      int           `yaml:"poll_retries"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	CycleInterval    time.Duration `yaml:"cycle_interval"`
	EnableRetries    int           `yaml:"enable_retries"`
	EnableRetryDelay time.Duration `yaml:"enable_retry_delay"`
}

type MonitoringConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	FolderID string        `yaml:"folder_id"`
	Token    string        `yaml:"token"`
	Location string        `yaml:"location"`
	Room     string        `yaml:"room"`
	Timeout  time.Duration `yaml:"timeout"`
}

type DebugPinConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Input    string        `yaml:"input"`
	LED      string        `yaml:"led"`
	Interval time.Duration `yaml:"interval"`
}

type ConsoleConfig struct {
	Enabled bool      `yaml:"enabled"`
	Width   int       `yaml:"width"`
	MaxPPM  scd4x.PPM `yaml:"max_ppm"`
}

type DisplayConfig struct {
	Enabled bool `yaml:"enabled"`
	Width   int  `yaml:"width"`
	Height  int  `yaml:"height"`
}

type LiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Config is the top-level structure of the file.
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Bus         BusConfig         `yaml:"bus"`
	Pressure    PressureConfig    `yaml:"pressure"`
	CO2         CO2Config         `yaml:"co2"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
	DebugPin    DebugPinConfig    `yaml:"debug_pin"`
	Console     ConsoleConfig     `yaml:"console"`
	Display     DisplayConfig     `yaml:"display"`
	Live        LiveConfig        `yaml:"live"`
}

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Bus: BusConfig{Backend: BackendPeriph, Number: 1, Timeout: 100 * time.Millisecond},
		Pressure: PressureConfig{
			Address:      bmp580.DefaultAddress,
			Oversampling: OversamplingConfig{Temperature: bmp580.O1x.String(), Pressure: bmp580.O1x.String()},
		},
		CO2: CO2Config{Address: scd4x.SensorAddress},
		Acquisition: AcquisitionConfig{
			PollRetries:      acquire.DefaultOpts.PollRetries,
			PollInterval:     acquire.DefaultOpts.PollInterval,
			CycleInterval:    acquire.DefaultOpts.CycleInterval,
			EnableRetries:    20,
			EnableRetryDelay: 20 * time.Millisecond,
		},
		Monitoring: MonitoringConfig{Endpoint: monitoring.DefaultEndpoint, Timeout: 10 * time.Second},
		DebugPin:   DebugPinConfig{Input: "GPIO10", LED: "GPIO8", Interval: time.Second},
		Console:    ConsoleConfig{Width: 40, MaxPPM: 2000},
		Display:    DisplayConfig{Width: 128, Height: 64},
		Live:       LiveConfig{Addr: ":8080"},
	}
}

// Load reads path over the defaults, applies the environment override and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return Parse(data)
}

// Parse is Load on an in-memory document.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if tok := os.Getenv(TokenEnv); tok != "" {
		cfg.Monitoring.Token = tok
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values the zero value of which, or any value, would be
// wrong.
func (c *Config) Validate() error {
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch c.Bus.Backend {
	case BackendPeriph, BackendI2CDev:
	default:
		return errors.Errorf("config: bus.backend %q, want %s or %s", c.Bus.Backend, BackendPeriph, BackendI2CDev)
	}
	if c.Bus.Timeout < 0 {
		return errors.New("config: bus.timeout is negative")
	}
	if c.Pressure.Address > 0x7f || c.CO2.Address > 0x7f {
		return errors.New("config: i2c addresses are 7 bit")
	}
	if c.Pressure.Address == c.CO2.Address {
		return errors.Errorf("config: both sensors at address %#x", c.Pressure.Address)
	}
	if _, err := c.PressureOpts(); err != nil {
		return errors.Wrap(err, "config: pressure.oversampling")
	}
	a := c.Acquisition
	if a.PollRetries < 0 || a.EnableRetries < 0 {
		return errors.New("config: acquisition retries are negative")
	}
	if a.PollInterval <= 0 || a.CycleInterval < 0 || a.EnableRetryDelay < 0 {
		return errors.New("config: acquisition intervals must be positive")
	}
	if m := c.Monitoring; m.Enabled {
		if m.Location == "" {
			return errors.New("config: monitoring.location is mandatory")
		}
		if m.FolderID == "" {
			return errors.New("config: monitoring.folder_id is required")
		}
		if m.Token == "" {
			return errors.Errorf("config: monitoring.token or %s is required", TokenEnv)
		}
	}
	if c.DebugPin.Enabled && c.DebugPin.Input == "" {
		return errors.New("config: debug_pin.input is required")
	}
	if c.Display.Enabled && (c.Display.Width <= 0 || c.Display.Height <= 0) {
		return errors.New("config: display size must be positive")
	}
	if c.Live.Enabled && c.Live.Addr == "" {
		return errors.New("config: live.addr is required")
	}
	return nil
}

// LogLevel converts Log.Level.
func (c *Config) LogLevel() (logger.LogLevel, error) {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return logger.DebugLevel, nil
	case "info", "":
		return logger.InfoLevel, nil
	case "notify":
		return logger.NotifyLevel, nil
	case "warn", "warning":
		return logger.WarnLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	case "fatal":
		return logger.FatalLevel, nil
	}
	return 0, errors.Errorf("config: unknown log.level %q", c.Log.Level)
}

// PressureOpts converts the pressure sensor settings.
func (c *Config) PressureOpts() (*bmp580.Opts, error) {
	t, err := bmp580.ParseOversampling(c.Pressure.Oversampling.Temperature)
	if err != nil {
		return nil, err
	}
	p, err := bmp580.ParseOversampling(c.Pressure.Oversampling.Pressure)
	if err != nil {
		return nil, err
	}
	return &bmp580.Opts{Temperature: t, Pressure: p}, nil
}

// AcquireOpts converts the acquisition settings.
func (c *Config) AcquireOpts() *acquire.Opts {
	return &acquire.Opts{
		PollRetries:   c.Acquisition.PollRetries,
		PollInterval:  c.Acquisition.PollInterval,
		CycleInterval: c.Acquisition.CycleInterval,
	}
}

// MonitoringOpts converts the monitoring settings.
func (c *Config) MonitoringOpts() *monitoring.Opts {
	m := c.Monitoring
	return &monitoring.Opts{
		Endpoint: m.Endpoint,
		FolderID: m.FolderID,
		Location: m.Location,
		Room:     m.Room,
		Token:    m.Token,
		Timeout:  m.Timeout,
	}
}
