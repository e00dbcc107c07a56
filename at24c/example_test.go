// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package at24c_test

import (
	"fmt"
	"log"

	"github.com/GermanBionicSystems/dsfamily/at24c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

func Example() {
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}
	b, err := i2creg.Open("")
	if err != nil {
		log.Fatal(err)
	}
	defer b.Close()

	d, err := at24c.New(b, 0x57, &at24c.DefaultOpts)
	if err != nil {
		log.Fatal(err)
	}
	var buf [8]byte
	if _, err := d.ReadAt(buf[:], 0); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s: % x\n", d, buf)
}
