// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration. Zero values are accepted, Normalize
// replaces them with defaults.
func Validate(cfg *Config) error {
	switch cfg.Bus.Driver {
	case "", "gpio":
	case "ds248x":
		switch cfg.Bus.Address {
		case 0, 0x18, 0x19, 0x20, 0x21:
		default:
			return fmt.Errorf("bus: invalid ds248x address %#x", cfg.Bus.Address)
		}
		if cfg.Bus.Channel < 0 || cfg.Bus.Channel > 7 {
			return fmt.Errorf("bus: invalid channel %d", cfg.Bus.Channel)
		}
	default:
		return fmt.Errorf("bus: unknown driver %q", cfg.Bus.Driver)
	}

	switch cfg.Store.Driver {
	case "", "file", "mem":
	case "at24c":
		if a := cfg.Store.Address; a != 0 && (a < 0x50 || a > 0x57) {
			return fmt.Errorf("store: invalid at24c address %#x", a)
		}
	default:
		return fmt.Errorf("store: unknown driver %q", cfg.Store.Driver)
	}
	if cfg.Store.Size < 0 {
		return fmt.Errorf("store: invalid size %d", cfg.Store.Size)
	}
	if cfg.Store.Reserved < 0 {
		return fmt.Errorf("store: invalid reserved %d", cfg.Store.Reserved)
	}
	if cfg.Store.Size != 0 && cfg.Store.Reserved+8 > cfg.Store.Size {
		return fmt.Errorf("store: reserved %d leaves no room in %d bytes", cfg.Store.Reserved, cfg.Store.Size)
	}

	if r := cfg.Sensors.Resolution; r != 0 && (r < 9 || r > 12) {
		return fmt.Errorf("sensors: invalid resolution %d", r)
	}
	if cfg.Sensors.Interval < 0 {
		return fmt.Errorf("sensors: invalid interval %s", cfg.Sensors.Interval)
	}
	for _, i := range cfg.Sensors.Exclude {
		if i < 0 {
			return fmt.Errorf("sensors: invalid excluded index %d", i)
		}
	}

	if cfg.MQTT.Server != "" {
		u, err := url.Parse(cfg.MQTT.Server)
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		switch u.Scheme {
		case "tcp", "mqtt", "ssl", "tls", "mqtts", "ws", "wss":
		default:
			return fmt.Errorf("mqtt: unsupported scheme %q", u.Scheme)
		}
	}
	if strings.ContainsAny(cfg.MQTT.Topic, "+#") {
		return fmt.Errorf("mqtt: topic %q must not contain wildcards", cfg.MQTT.Topic)
	}
	return nil
}
