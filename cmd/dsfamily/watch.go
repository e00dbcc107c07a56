// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/dsfamily/dsfamily"
	"github.com/GermanBionicSystems/dsfamily/internal/publish"
	"github.com/GermanBionicSystems/dsfamily/render"
	"github.com/GermanBionicSystems/dsfamily/screen1d"
)

type reading struct {
	index int
	addr  onewire.Address
	temp  dsfamily.Raw
	err   error
}

type aggregate struct {
	min, max, avg dsfamily.Raw
	stddev        float64
}

// round is the outcome of one conversion of the whole bus.
type round struct {
	readings []reading
	stats    aggregate
	statsErr error
}

// sample converts all the devices and reads them back.
func (s *session) sample(raw bool) []reading {
	if err := s.dev.StartAll(false); err != nil {
		log.Printf("Starting conversion: %v", err)
	}
	out := make([]reading, s.dev.Count())
	for i := range out {
		out[i].index = i
		out[i].addr, _ = s.dev.Address(i)
		out[i].temp, out[i].err = s.dev.ReadTemperature(i, raw)
		if s.verbose {
			log.Printf("%d %#016x %s %v", i, uint64(out[i].addr), out[i].temp, out[i].err)
		}
	}
	return out
}

// stats reads the aggregate values of the last conversion.
func (s *session) stats(exclude []int) (aggregate, error) {
	var a aggregate
	var err error
	if a.min, err = s.dev.Min(exclude...); err != nil {
		return a, errors.Wrap(err, "min")
	}
	if a.max, err = s.dev.Max(exclude...); err != nil {
		return a, errors.Wrap(err, "max")
	}
	if a.avg, err = s.dev.Average(exclude...); err != nil {
		return a, errors.Wrap(err, "average")
	}
	if a.stddev, err = s.dev.StdDev(exclude...); err != nil {
		return a, errors.Wrap(err, "stddev")
	}
	return a, nil
}

func watch(c *cli.Context) error {
	s, err := open(c)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.load(); err != nil {
		return err
	}

	var pub *publish.Publisher
	if s.cfg.MQTT.Server != "" {
		if pub, err = publish.Connect(&s.cfg.MQTT); err != nil {
			return errors.WithStack(err)
		}
		defer pub.Close()
		if prefix := c.String("discovery"); prefix != "" {
			addrs := make([]onewire.Address, s.dev.Count())
			for i := range addrs {
				addrs[i], _ = s.dev.Address(i)
			}
			if err := pub.Discovery(prefix, addrs); err != nil {
				return err
			}
		}
	}

	var screen *screen1d.Dev
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		screen = screen1d.New(nil, &screen1d.Opts{X: s.dev.Count()})
		defer screen.Halt()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	rounds := make(chan round)

	interval := s.cfg.Sensors.Interval
	if ct := s.dev.ConversionTime(); interval < ct {
		interval = ct
	}
	g.Go(func() error {
		defer close(rounds)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			r := round{readings: s.sample(false)}
			r.stats, r.statsErr = s.stats(s.cfg.Sensors.Exclude)
			select {
			case rounds <- r:
			case <-ctx.Done():
				return nil
			}
			select {
			case <-t.C:
			case <-ctx.Done():
				return nil
			}
		}
	})
	g.Go(func() error {
		for r := range rounds {
			if screen != nil {
				show(screen, &r)
			} else if !s.verbose {
				logRound(&r)
			}
			if pub == nil {
				continue
			}
			for _, v := range r.readings {
				if v.err != nil {
					pub.Error(v.addr, v.err)
				} else {
					pub.Reading(v.addr, v.temp)
				}
			}
			if r.statsErr == nil {
				pub.Stats(r.stats.min, r.stats.max, r.stats.avg, r.stats.stddev)
			}
		}
		return nil
	})
	return g.Wait()
}

func show(screen *screen1d.Dev, r *round) {
	temps := make([]physic.Temperature, len(r.readings))
	for i, v := range r.readings {
		temps[i] = v.temp.Temperature()
	}
	caption := "stats unavailable"
	if r.statsErr == nil {
		caption = fmt.Sprintf("min %s max %s avg %s", r.stats.min, r.stats.max, r.stats.avg)
	}
	screen.SetCaption(caption)
	img := render.Strip(temps, render.DefaultOpts.Low, render.DefaultOpts.High)
	if err := screen.Draw(screen.Bounds(), img, img.Bounds().Min); err != nil {
		log.Println(err)
	}
}

func logRound(r *round) {
	for _, v := range r.readings {
		if v.err != nil {
			log.Printf("%d %#016x error: %v", v.index, uint64(v.addr), v.err)
		} else {
			log.Printf("%d %#016x %s", v.index, uint64(v.addr), v.temp)
		}
	}
	if r.statsErr != nil {
		log.Printf("stats: %v", r.statsErr)
	}
}
