// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// dsfamily drives the DS-family thermometers of a 1-wire bus: enumerate
// them, read temperatures, calibrate, publish to MQTT and render a panel.
package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

const configEnvVar = "DSFAMILY_CONFIG"

func main() {
	log.SetFlags(log.LstdFlags)
	app := &cli.App{
		Name:  "dsfamily",
		Usage: "DS18x20 family thermometers on a 1-wire bus",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				EnvVars: []string{configEnvVar},
				Usage:   "YAML configuration file",
			},
			&cli.StringFlag{
				Name:  "driver",
				Usage: "1-wire master: gpio or ds248x",
			},
			&cli.StringFlag{
				Name:  "pin",
				Usage: "data line of the gpio driver",
			},
			&cli.StringFlag{
				Name:  "i2c",
				Usage: "I²C bus of the ds248x driver",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "file backing the device table",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log every reading",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "search",
				Usage:  "list the addresses answering a ROM search, without touching the table",
				Flags:  []cli.Flag{&cli.BoolFlag{Name: "alarm", Usage: "alarm search"}},
				Action: search,
			},
			{
				Name:   "scan",
				Usage:  "enumerate the bus, rewrite the device table and set the resolution",
				Action: scan,
			},
			{
				Name:   "list",
				Usage:  "show the device table as stored",
				Action: list,
			},
			{
				Name:  "read",
				Usage: "convert and read every device",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "raw", Usage: "ignore the calibration"},
				},
				Action: read,
			},
			{
				Name:      "resolution",
				Usage:     "set the resolution of a device",
				ArgsUsage: "<index> <bits>",
				Action:    resolution,
			},
			{
				Name:  "calibrate",
				Usage: "compute and store calibration offsets, all devices at the same temperature",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "iterations", Value: 10, Usage: "conversions to average"},
					&cli.Float64Flag{Name: "target", Usage: "reference temperature in °C, default the mean"},
				},
				Action: calibrate,
			},
			{
				Name:  "stats",
				Usage: "aggregate temperatures",
				Flags: []cli.Flag{
					&cli.IntSliceFlag{Name: "exclude", Usage: "index left out"},
				},
				Action: stats,
			},
			{
				Name:  "render",
				Usage: "read every device and draw a PNG panel",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "dsfamily.png"},
					&cli.StringFlag{Name: "title"},
				},
				Action: renderPanel,
			},
			{
				Name:  "watch",
				Usage: "read periodically, show on the terminal and publish to MQTT",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "interval", Usage: "time between conversions"},
					&cli.StringFlag{Name: "server", Usage: "MQTT server, tcp://host:port"},
					&cli.StringFlag{Name: "discovery", Usage: "Home Assistant discovery prefix"},
				},
				Action: watch,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("%+v", err)
	}
}
