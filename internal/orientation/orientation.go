// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
)

// Pose is the canonical representation of orientation for the monitor.
// All angles are in degrees.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Sub returns p minus o, axis by axis.
func (p Pose) Sub(o Pose) Pose {
	return Pose{Roll: p.Roll - o.Roll, Pitch: p.Pitch - o.Pitch, Yaw: p.Yaw - o.Yaw}
}

// Add returns p plus o, axis by axis.
func (p Pose) Add(o Pose) Pose {
	return Pose{Roll: p.Roll + o.Roll, Pitch: p.Pitch + o.Pitch, Yaw: p.Yaw + o.Yaw}
}

// Source is anything that can provide poses over time.
type Source interface {
	Next() (Pose, error)
}

// ComputePoseFromAccel computes roll and pitch from accelerometer data only.
// Yaw is left at 0; the sensor reports its own integrated yaw.
//
// Uses simple tilt formulas:
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func ComputePoseFromAccel(ax, ay, az float64) Pose {
	rollRad := math.Atan2(ay, az)
	pitchRad := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	return Pose{
		Roll:  rollRad * 180.0 / math.Pi,
		Pitch: pitchRad * 180.0 / math.Pi,
	}
}
