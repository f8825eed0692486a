// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package quad

import (
	"math"

	"github.com/Thermoquad/kestrel/pkg/sensors/imu"
)

// Motor positions in an X frame. Front-left and back-right spin clockwise.
const (
	FrontLeft = iota
	FrontRight
	BackLeft
	BackRight
)

// PositionName returns a short label for a motor position
func PositionName(i int) string {
	switch i {
	case FrontLeft:
		return "FL"
	case FrontRight:
		return "FR"
	case BackLeft:
		return "BL"
	case BackRight:
		return "BR"
	default:
		return "??"
	}
}

// Mix computes per-motor thrust from a base thrust and three corrections.
// With zero corrections all four motors get the base thrust and the yaw
// torques of the two spin directions cancel.
func Mix(base, roll, pitch, yaw float64) [4]float64 {
	return [4]float64{
		FrontLeft:  base + roll + pitch + yaw,
		FrontRight: base - roll + pitch - yaw,
		BackLeft:   base + roll - pitch - yaw,
		BackRight:  base - roll - pitch + yaw,
	}
}

// Angles are Euler angles in degrees
type Angles struct {
	Roll  float64
	Pitch float64
	Yaw   float64
}

// Sub returns a minus b with yaw wrapped to (-180, 180]
func (a Angles) Sub(b Angles) Angles {
	return Angles{
		Roll:  a.Roll - b.Roll,
		Pitch: a.Pitch - b.Pitch,
		Yaw:   wrapDegrees(a.Yaw - b.Yaw),
	}
}

// EulerFromQuaternion converts an orientation to roll/pitch/yaw in degrees
func EulerFromQuaternion(q imu.Quaternion) Angles {
	sinrCosp := 2 * (q.W*q.X + q.Y*q.Z)
	cosrCosp := 1 - 2*(q.X*q.X+q.Y*q.Y)
	roll := math.Atan2(sinrCosp, cosrCosp)

	sinp := 2 * (q.W*q.Y - q.Z*q.X)
	var pitch float64
	if math.Abs(sinp) >= 1 {
		// Gimbal lock
		pitch = math.Copysign(math.Pi/2, sinp)
	} else {
		pitch = math.Asin(sinp)
	}

	sinyCosp := 2 * (q.W*q.Z + q.X*q.Y)
	cosyCosp := 1 - 2*(q.Y*q.Y+q.Z*q.Z)
	yaw := math.Atan2(sinyCosp, cosyCosp)

	return Angles{
		Roll:  degrees(roll),
		Pitch: degrees(pitch),
		Yaw:   degrees(yaw),
	}
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

func wrapDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}
