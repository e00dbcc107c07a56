// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"log"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/dsfamily/at24c"
	"github.com/GermanBionicSystems/dsfamily/ds248x"
	"github.com/GermanBionicSystems/dsfamily/dsfamily"
	"github.com/GermanBionicSystems/dsfamily/eeprom"
	"github.com/GermanBionicSystems/dsfamily/internal/config"
	"github.com/GermanBionicSystems/dsfamily/onewiregpio"
)

// session holds the hardware opened for one command.
type session struct {
	cfg     *config.Config
	verbose bool
	bus     onewire.Bus
	dev     *dsfamily.Dev
	closers []func() error
}

// loadConfig reads the configuration file, if any, and applies the flags on
// top of it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := &config.Config{}
	if p := c.String("config"); p != "" {
		var err error
		if cfg, err = config.Load(p); err != nil {
			return nil, errors.Wrapf(err, "loading %s", p)
		}
	}
	if v := c.String("driver"); v != "" {
		cfg.Bus.Driver = v
	}
	if v := c.String("pin"); v != "" {
		cfg.Bus.Pin = v
	}
	if v := c.String("i2c"); v != "" {
		cfg.Bus.I2C = v
	}
	if v := c.String("store"); v != "" {
		cfg.Store.Driver, cfg.Store.Path = "file", v
	}
	if v := c.Duration("interval"); v != 0 {
		cfg.Sensors.Interval = v
	}
	if v := c.String("server"); v != "" {
		cfg.MQTT.Server = v
	}
	if err := config.Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	config.Normalize(cfg)
	return cfg, nil
}

func open(c *cli.Context) (*session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "host init")
	}
	s := &session{cfg: cfg, verbose: c.Bool("verbose")}
	if err := s.openBus(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) openBus() error {
	var b i2c.BusCloser
	if s.cfg.Bus.Driver == "ds248x" || s.cfg.Store.Driver == "at24c" {
		var err error
		if b, err = i2creg.Open(s.cfg.Bus.I2C); err != nil {
			return errors.Wrapf(err, "opening I²C bus %q", s.cfg.Bus.I2C)
		}
		s.closers = append(s.closers, b.Close)
	}

	switch s.cfg.Bus.Driver {
	case "gpio":
		p := gpioreg.ByName(s.cfg.Bus.Pin)
		if p == nil {
			return errors.Errorf("no pin %q", s.cfg.Bus.Pin)
		}
		ow, err := onewiregpio.New(p, &onewiregpio.DefaultOpts)
		if err != nil {
			return errors.WithStack(err)
		}
		s.bus = ow
		s.closers = append(s.closers, ow.Halt)
	case "ds248x":
		ow, err := ds248x.New(b, s.cfg.Bus.Address, &ds248x.DefaultOpts)
		if err != nil {
			return errors.WithStack(err)
		}
		if err := ow.SelectChannel(s.cfg.Bus.Channel); err != nil {
			return errors.WithStack(err)
		}
		s.bus = ow
	}

	var store eeprom.Store
	switch s.cfg.Store.Driver {
	case "file":
		f, err := eeprom.OpenFile(s.cfg.Store.Path, s.cfg.Store.Size)
		if err != nil {
			return errors.WithStack(err)
		}
		s.closers = append(s.closers, f.Close)
		store = f
	case "mem":
		store = eeprom.NewMem(s.cfg.Store.Size)
	case "at24c":
		e, err := at24c.New(b, s.cfg.Store.Address, &at24c.Opts{Size: s.cfg.Store.Size, PageSize: 32})
		if err != nil {
			return errors.WithStack(err)
		}
		store = e
	}

	d, err := dsfamily.New(s.bus, store, &dsfamily.Opts{Reserved: s.cfg.Store.Reserved})
	if err != nil {
		return errors.WithStack(err)
	}
	s.dev = d
	return nil
}

// load restores the device table, scanning the bus when it is empty.
func (s *session) load() error {
	n, err := s.dev.Load()
	if err != nil {
		return errors.WithStack(err)
	}
	if n != 0 {
		return nil
	}
	log.Printf("Device table is empty, scanning %s", s.bus)
	_, err = s.scan()
	return err
}

// scan enumerates the bus and applies the configured resolution.
func (s *session) scan() (int, error) {
	n, err := s.dev.Scan()
	if err != nil {
		var ce *dsfamily.CapacityError
		if !errors.As(err, &ce) {
			return n, errors.WithStack(err)
		}
		log.Println(err)
	}
	if s.cfg.Sensors.Resolution != 12 {
		for i := 0; i < n; i++ {
			if err := s.dev.SetResolution(i, s.cfg.Sensors.Resolution); err != nil {
				return n, errors.Wrapf(err, "device %d", i)
			}
		}
	}
	return n, nil
}

// Close releases everything open, in reverse order.
func (s *session) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}
