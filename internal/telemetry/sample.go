// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

// Sample represents a single decoded telemetry frame from the sensor device.
type Sample struct {
	Roll  float64 `json:"r"` // degrees, unbounded as received
	Pitch float64 `json:"p"`
	Yaw   float64 `json:"y"`

	Ax float64 `json:"ax"` // linear acceleration, g
	Ay float64 `json:"ay"`
	Az float64 `json:"az"`

	G float64 `json:"g"` // reported total magnitude, g
}

// Accel is the unfiltered acceleration part of a sample.
type Accel struct {
	Ax float64 `json:"ax"`
	Ay float64 `json:"ay"`
	Az float64 `json:"az"`
	G  float64 `json:"g"`
}

// Accel returns the acceleration and magnitude fields verbatim.
func (s Sample) Accel() Accel {
	return Accel{Ax: s.Ax, Ay: s.Ay, Az: s.Az, G: s.G}
}
