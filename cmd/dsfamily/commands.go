// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/dsfamily/dsfamily"
	"github.com/GermanBionicSystems/dsfamily/render"
)

func search(c *cli.Context) error {
	s, err := open(c)
	if err != nil {
		return err
	}
	defer s.Close()
	addrs, err := s.bus.Search(c.Bool("alarm"))
	for _, a := range addrs {
		fmt.Printf("%#016x %s\n", uint64(a), dsfamily.FamilyOf(a))
	}
	return errors.WithStack(err)
}

func scan(c *cli.Context) error {
	s, err := open(c)
	if err != nil {
		return err
	}
	defer s.Close()
	if _, err := s.scan(); err != nil {
		return err
	}
	return s.printTable()
}

func list(c *cli.Context) error {
	s, err := open(c)
	if err != nil {
		return err
	}
	defer s.Close()
	if _, err := s.dev.Load(); err != nil {
		return errors.WithStack(err)
	}
	return s.printTable()
}

func read(c *cli.Context) error {
	s, err := open(c)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.load(); err != nil {
		return err
	}
	for _, r := range s.sample(c.Bool("raw")) {
		if r.err != nil {
			fmt.Printf("%2d %#016x error: %v\n", r.index, uint64(r.addr), r.err)
			continue
		}
		fmt.Printf("%2d %#016x %8.4f°C\n", r.index, uint64(r.addr), r.temp.Celsius())
	}
	return nil
}

func resolution(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("usage: resolution <index> <bits>")
	}
	i, err := strconv.Atoi(c.Args().Get(0))
	if err != nil {
		return errors.Wrap(err, "index")
	}
	bits, err := strconv.Atoi(c.Args().Get(1))
	if err != nil {
		return errors.Wrap(err, "bits")
	}
	s, err := open(c)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.load(); err != nil {
		return err
	}
	return errors.WithStack(s.dev.SetResolution(i, bits))
}

func calibrate(c *cli.Context) error {
	s, err := open(c)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.load(); err != nil {
		return err
	}
	var target *dsfamily.Raw
	if c.IsSet("target") {
		r := dsfamily.RawFromTemperature(physic.ZeroCelsius + physic.Temperature(c.Float64("target")*float64(physic.Celsius)))
		target = &r
	}
	offsets, err := s.dev.Calibrate(c.Int("iterations"), target)
	for i, o := range offsets {
		fmt.Printf("%2d %+d/16°C\n", i, o)
	}
	return errors.WithStack(err)
}

func stats(c *cli.Context) error {
	s, err := open(c)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.load(); err != nil {
		return err
	}
	exclude := c.IntSlice("exclude")
	if len(exclude) == 0 {
		exclude = s.cfg.Sensors.Exclude
	}
	if err := s.dev.StartAll(false); err != nil {
		return errors.WithStack(err)
	}
	st, err := s.stats(exclude)
	if err != nil {
		return err
	}
	fmt.Printf("min     %s\nmax     %s\naverage %s\nstddev  %.4f°C\n", st.min, st.max, st.avg, st.stddev/16)
	return nil
}

func renderPanel(c *cli.Context) error {
	s, err := open(c)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.load(); err != nil {
		return err
	}
	var readings []render.Reading
	for _, r := range s.sample(false) {
		readings = append(readings, render.Reading{
			Label: fmt.Sprintf("%d %s", r.index, dsfamily.FamilyOf(r.addr)),
			Temp:  r.temp.Temperature(),
			Err:   r.err,
		})
	}
	opts := render.DefaultOpts
	opts.Title = c.String("title")
	img, err := render.Panel(readings, &opts)
	if err != nil {
		return errors.WithStack(err)
	}
	f, err := os.Create(c.String("out"))
	if err != nil {
		return errors.WithStack(err)
	}
	if err := render.EncodePNG(f, img); err != nil {
		f.Close()
		return errors.WithStack(err)
	}
	return errors.WithStack(f.Close())
}

//

func (s *session) printTable() error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tADDRESS\tFAMILY\tBITS\tCALIBRATION")
	for i := 0; i < s.dev.Count(); i++ {
		a, err := s.dev.Address(i)
		if err != nil {
			return errors.WithStack(err)
		}
		bits, cal := "?", "?"
		if b, err := s.dev.Resolution(i); err == nil {
			bits = strconv.Itoa(b)
		}
		if o, ok, err := s.dev.Calibration(i); err == nil {
			cal = "-"
			if ok {
				cal = fmt.Sprintf("%+d/16°C", o)
			}
		}
		fmt.Fprintf(w, "%d\t%#016x\t%s\t%s\t%s\n", i, uint64(a), dsfamily.FamilyOf(a), bits, cal)
	}
	return w.Flush()
}
