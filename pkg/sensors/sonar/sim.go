// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sonar

import (
	"time"

	"github.com/Thermoquad/kestrel/pkg/pigpio"
)

// Simulate answers every trigger pulse on the simulator with an echo as
// long as the round trip to distance() centimeters. A negative distance
// gives no echo.
func Simulate(sim *pigpio.Sim, cfg GPIOConfig, distance func() float64) {
	sim.OnWrite(func(gpio, level uint32) {
		if gpio != cfg.Trigger || level != pigpio.High {
			return
		}
		cm := distance()
		if cm < 0 {
			return
		}
		sim.SetLevel(cfg.Echo, pigpio.High)
		time.AfterFunc(time.Duration(cm*usPerCm)*time.Microsecond, func() {
			sim.SetLevel(cfg.Echo, pigpio.Low)
		})
	})
}
