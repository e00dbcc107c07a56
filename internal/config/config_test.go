// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const sample = `
bus:
  driver: ds248x
  i2c: "1"
  address: 0x19
store:
  driver: at24c
  size: 4096
  reserved: 16
sensors:
  resolution: 11
  interval: 30s
  exclude: [2]
mqtt:
  server: tcp://broker:1883
  topic: /house/temp/
`

func TestLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "dsfamily.yaml")
	if err := os.WriteFile(p, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatal(err)
	}
	Normalize(cfg)
	expected := &Config{
		Bus:     BusConfig{Driver: "ds248x", I2C: "1", Address: 0x19},
		Store:   StoreConfig{Driver: "at24c", Address: DefaultEEPROM, Size: 4096, Reserved: 16},
		Sensors: SensorsConfig{Resolution: 11, Interval: 30 * time.Second, Exclude: []int{2}},
		MQTT:    MQTTConfig{Server: "tcp://broker:1883", ClientID: DefaultClientID, Topic: "house/temp"},
	}
	if !reflect.DeepEqual(cfg, expected) {
		t.Fatalf("%#v != %#v", cfg, expected)
	}
}

func TestLoad_missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Fatal(err)
	}
}

func TestDecode(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg, &Config{}) {
		t.Fatalf("%#v", cfg)
	}
	if _, err := Decode(strings.NewReader("bus:\n  speed: 10\n")); err == nil {
		t.Fatal("unknown keys must be rejected")
	}
	if _, err := Decode(strings.NewReader("sensors:\n  interval: soon\n")); err == nil {
		t.Fatal("invalid durations must be rejected")
	}
}

func TestNormalize_defaults(t *testing.T) {
	cfg := &Config{}
	if err := Validate(cfg); err != nil {
		t.Fatal(err)
	}
	Normalize(cfg)
	expected := &Config{
		Bus:     BusConfig{Driver: "gpio", Pin: DefaultPin},
		Store:   StoreConfig{Driver: "file", Path: DefaultPath, Size: DefaultSize},
		Sensors: SensorsConfig{Resolution: DefaultResolution, Interval: DefaultInterval},
		MQTT:    MQTTConfig{ClientID: DefaultClientID, Topic: DefaultTopic},
	}
	if !reflect.DeepEqual(cfg, expected) {
		t.Fatalf("%#v != %#v", cfg, expected)
	}
	Normalize(nil)
}

func TestValidate(t *testing.T) {
	data := []struct {
		name string
		cfg  Config
	}{
		{"driver", Config{Bus: BusConfig{Driver: "uart"}}},
		{"bridge address", Config{Bus: BusConfig{Driver: "ds248x", Address: 0x50}}},
		{"channel", Config{Bus: BusConfig{Driver: "ds248x", Channel: 8}}},
		{"store driver", Config{Store: StoreConfig{Driver: "flash"}}},
		{"eeprom address", Config{Store: StoreConfig{Driver: "at24c", Address: 0x18}}},
		{"size", Config{Store: StoreConfig{Size: -1}}},
		{"reserved", Config{Store: StoreConfig{Reserved: -1}}},
		{"no room", Config{Store: StoreConfig{Size: 16, Reserved: 9}}},
		{"resolution", Config{Sensors: SensorsConfig{Resolution: 8}}},
		{"interval", Config{Sensors: SensorsConfig{Interval: -time.Second}}},
		{"exclude", Config{Sensors: SensorsConfig{Exclude: []int{-1}}}},
		{"scheme", Config{MQTT: MQTTConfig{Server: "http://broker"}}},
		{"url", Config{MQTT: MQTTConfig{Server: "tcp://%zz"}}},
		{"wildcard", Config{MQTT: MQTTConfig{Topic: "house/+"}}},
	}
	for _, line := range data {
		t.Run(line.name, func(t *testing.T) {
			if err := Validate(&line.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	ok := Config{Store: StoreConfig{Size: 16, Reserved: 8}}
	if err := Validate(&ok); err != nil {
		t.Fatal(err)
	}
}
