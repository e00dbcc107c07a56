// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads the YAML configuration of the dsfamily tool.
//
// The expected flow is Load, then Validate, then Normalize. Validate never
// mutates the configuration, Normalize fills the defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of the configuration file.
type Config struct {
	Bus     BusConfig     `yaml:"bus"`
	Store   StoreConfig   `yaml:"store"`
	Sensors SensorsConfig `yaml:"sensors"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
}

// ---- BUS ----

// BusConfig selects the 1-wire master.
type BusConfig struct {
	// Driver is "gpio" for a bit banged pin or "ds248x" for an I²C bridge.
	Driver string `yaml:"driver"`
	// Pin is the gpioreg name of the data line, gpio driver only.
	Pin string `yaml:"pin"`
	// I2C is the i2creg name of the bus, "" for the first one.
	I2C string `yaml:"i2c"`
	// Address is the I²C address of the bridge.
	Address uint16 `yaml:"address"`
	// Channel is the DS2482-800 channel.
	Channel int `yaml:"channel"`
}

// ---- STORE ----

// StoreConfig selects where the device table persists.
type StoreConfig struct {
	// Driver is "file", "at24c" or "mem".
	Driver string `yaml:"driver"`
	// Path is the backing file, file driver only.
	Path string `yaml:"path"`
	// Address is the I²C address of the EEPROM, at24c driver only. It
	// shares the bus named by BusConfig.I2C.
	Address uint16 `yaml:"address"`
	// Size is the capacity in bytes.
	Size int `yaml:"size"`
	// Reserved bytes at the beginning of the store are left untouched.
	Reserved int `yaml:"reserved"`
}

// ---- SENSORS ----

// SensorsConfig controls how the thermometers are used.
type SensorsConfig struct {
	Resolution int           `yaml:"resolution"`
	Interval   time.Duration `yaml:"interval"`
	// Exclude lists directory indexes left out of the statistics.
	Exclude []int `yaml:"exclude"`
}

// ---- MQTT ----

// MQTTConfig enables publishing when Server is set.
type MQTTConfig struct {
	Server   string `yaml:"server"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Retain   bool   `yaml:"retain"`
}

// Load reads the configuration at path. Unknown keys are errors. An empty
// file yields a zero Config.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a configuration from r.
func Decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
