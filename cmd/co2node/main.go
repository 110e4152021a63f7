// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// co2node measures CO2 compensated for barometric pressure and reports it.
//
// Usage:
//
//	co2node -config /etc/co2node.yaml [-v]
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	logger "github.com/d2r2/go-logger"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/co2node/acquire"
	"github.com/GermanBionicSystems/co2node/bmp580"
	"github.com/GermanBionicSystems/co2node/bus"
	"github.com/GermanBionicSystems/co2node/config"
	"github.com/GermanBionicSystems/co2node/debugpin"
	"github.com/GermanBionicSystems/co2node/levelbar"
	"github.com/GermanBionicSystems/co2node/live"
	"github.com/GermanBionicSystems/co2node/monitoring"
	"github.com/GermanBionicSystems/co2node/panel"
	"github.com/GermanBionicSystems/co2node/scd4x"
)

var lg = logger.NewPackageLogger("main", logger.InfoLevel)

// Loggers whose level follows log.level.
var packages = []string{"main", "bmp580", "scd4x", "acquire", "monitoring", "debugpin", "live"}

func main() {
	configPath := flag.String("config", "co2node.yaml", "path to the YAML configuration")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()
	defer logger.FinalizeLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		lg.Fatalf("%v", err)
	}
	if err := setLogLevels(cfg, *verbose); err != nil {
		lg.Fatalf("%v", err)
	}
	if _, err := host.Init(); err != nil {
		lg.Fatalf("host init: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		lg.Errorf("%v", err)
		logger.FinalizeLogger()
		os.Exit(1)
	}
	lg.Info("stopped")
}

func setLogLevels(cfg *config.Config, verbose bool) error {
	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	if verbose {
		level = logger.DebugLevel
	}
	for _, p := range packages {
		if err := logger.ChangePackageLogLevel(p, level); err != nil {
			return errors.Wrapf(err, "log level of %s", p)
		}
	}
	// go-i2c dumps every transfer at debug level.
	_ = logger.ChangePackageLogLevel("i2c", logger.InfoLevel)
	return nil
}

func run(ctx context.Context, cfg *config.Config) error {
	b, pb, closer, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	popts, err := cfg.PressureOpts()
	if err != nil {
		return err
	}
	bmp := bmp580.New(b, cfg.Pressure.Address, popts)
	id, err := bmp.ChipID()
	if err != nil {
		lg.Fatalf("attach %s: %v", bmp, err)
	}
	lg.Infof("%s chip id %#02x", bmp, id)

	co2 := scd4x.New(b, cfg.CO2.Address)
	if err := co2.Init(); err != nil {
		lg.Fatalf("attach %s: %v", co2, err)
	}
	if v, err := co2.Variant(); err == nil {
		lg.Infof("%s variant %s", co2, v)
	}
	if sn, err := co2.SerialNumber(); err == nil {
		lg.Infof("%s serial %d", co2, sn)
	}

	if err := enablePressure(bmp, cfg.Acquisition.EnableRetries, cfg.Acquisition.EnableRetryDelay, time.Sleep); err != nil {
		lg.Errorf("%v", err)
	}
	if cfg.Pressure.Continuous {
		if err := bmp.SetContinuous1Hz(); err != nil {
			lg.Warningf("continuous mode: %v", err)
		}
	}
	defer func() {
		_ = co2.Halt()
		_ = bmp.Halt()
	}()

	debug := func() bool { return false }
	if cfg.DebugPin.Enabled {
		p, err := openDebugPin(cfg.DebugPin)
		if err != nil {
			return err
		}
		debug = p.Enabled
		go func() {
			_ = p.Run(ctx)
		}()
	}

	var reporters acquire.Reporters
	if cfg.Monitoring.Enabled {
		c, err := monitoring.New(cfg.MonitoringOpts(), debug)
		if err != nil {
			return err
		}
		reporters = append(reporters, c)
	}
	if cfg.Console.Enabled {
		bar := levelbar.New(&levelbar.Opts{Width: cfg.Console.Width, MaxPPM: cfg.Console.MaxPPM})
		defer bar.Halt()
		reporters = append(reporters, bar)
	}
	if cfg.Display.Enabled {
		p, err := openPanel(cfg, pb, debug)
		if err != nil {
			return err
		}
		defer p.Clear()
		reporters = append(reporters, p)
	}
	if cfg.Live.Enabled {
		hub := live.NewHub()
		go func() {
			_ = hub.Run(ctx)
		}()
		go func() {
			if err := live.Serve(ctx, cfg.Live.Addr, hub.Handler()); !errors.Is(err, context.Canceled) {
				lg.Errorf("%v", err)
			}
		}()
		reporters = append(reporters, hub)
	}

	lg.Infof("starting with %d reporters", len(reporters))
	return acquire.New(bmp, co2, reporters, cfg.AcquireOpts()).Run(ctx)
}

// openBus returns the sensor bus and, for the periph backend, the
// underlying periph bus.
func openBus(cfg *config.Config) (bus.Bus, i2c.Bus, io.Closer, error) {
	switch cfg.Bus.Backend {
	case config.BackendI2CDev:
		d := bus.OpenI2CDev(cfg.Bus.Number, cfg.Bus.Timeout)
		lg.Infof("using %s", d)
		return d, nil, d, nil
	default:
		pb, err := i2creg.Open(cfg.Bus.Name)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "open i2c bus")
		}
		lg.Infof("using %s", pb)
		return bus.NewPeriph(pb, cfg.Bus.Timeout), pb, pb, nil
	}
}

type pressureEnabler interface {
	EnablePressure() error
}

// enablePressure tries retries+1 times, sleeping delay before each try.
func enablePressure(p pressureEnabler, retries int, delay time.Duration, sleep func(time.Duration)) error {
	var err error
	for left := retries; left >= 0; left-- {
		sleep(delay)
		lg.Infof("enable pressure measurement, retries left %d", left)
		if err = p.EnablePressure(); err == nil {
			return nil
		}
	}
	return errors.Wrapf(err, "pressure measurement not enabled after %d tries", retries+1)
}

func openDebugPin(c config.DebugPinConfig) (*debugpin.Poller, error) {
	in := gpioreg.ByName(c.Input)
	if in == nil {
		return nil, errors.Errorf("debug pin %q not found", c.Input)
	}
	var led gpio.PinOut
	if c.LED != "" {
		l := gpioreg.ByName(c.LED)
		if l == nil {
			return nil, errors.Errorf("led pin %q not found", c.LED)
		}
		led = l
	}
	return debugpin.New(in, led, c.Interval)
}

// openPanel attaches the OLED. It needs a periph bus, opened here when the
// sensors use another backend.
func openPanel(cfg *config.Config, pb i2c.Bus, debug func() bool) (*panel.Panel, error) {
	if pb == nil {
		var err error
		if pb, err = i2creg.Open(cfg.Bus.Name); err != nil {
			return nil, errors.Wrap(err, "open i2c bus for the display")
		}
	}
	opts := ssd1306.DefaultOpts
	opts.W = cfg.Display.Width
	opts.H = cfg.Display.Height
	oled, err := ssd1306.NewI2C(pb, &opts)
	if err != nil {
		return nil, errors.Wrap(err, "attach display")
	}
	return panel.New(oled, &panel.Opts{MaxPPM: cfg.Console.MaxPPM, Debug: debug})
}
