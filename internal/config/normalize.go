// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"strings"
	"time"
)

// Defaults applied by Normalize.
const (
	DefaultPin        = "GPIO4"
	DefaultBridge     = 0x18
	DefaultEEPROM     = 0x57
	DefaultPath       = "dsfamily.eeprom"
	DefaultSize       = 1024
	DefaultResolution = 12
	DefaultInterval   = 10 * time.Second
	DefaultClientID   = "dsfamily"
	DefaultTopic      = "dsfamily"
)

// Normalize fills the defaults. It must only be called after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Bus.Driver == "" {
		cfg.Bus.Driver = "gpio"
	}
	if cfg.Bus.Driver == "gpio" && cfg.Bus.Pin == "" {
		cfg.Bus.Pin = DefaultPin
	}
	if cfg.Bus.Driver == "ds248x" && cfg.Bus.Address == 0 {
		cfg.Bus.Address = DefaultBridge
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "file"
	}
	if cfg.Store.Driver == "file" && cfg.Store.Path == "" {
		cfg.Store.Path = DefaultPath
	}
	if cfg.Store.Driver == "at24c" && cfg.Store.Address == 0 {
		cfg.Store.Address = DefaultEEPROM
	}
	if cfg.Store.Size == 0 {
		cfg.Store.Size = DefaultSize
	}

	if cfg.Sensors.Resolution == 0 {
		cfg.Sensors.Resolution = DefaultResolution
	}
	if cfg.Sensors.Interval == 0 {
		cfg.Sensors.Interval = DefaultInterval
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = DefaultClientID
	}
	cfg.MQTT.Topic = strings.Trim(cfg.MQTT.Topic, "/")
	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = DefaultTopic
	}
}
