// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Kestrel - quadcopter flight core for the pigpio daemon

package main

import (
	"os"

	"github.com/Thermoquad/kestrel/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
