// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

// Calibration holds the per-axis zero offsets, in degrees. Offsets are
// free-running and cumulative: each recalibration adds the current smoothed
// attitude to what is already stored. The zero value means "uncalibrated".
type Calibration struct {
	ZeroRoll  float64 `json:"zero_roll"`
	ZeroPitch float64 `json:"zero_pitch"`
	ZeroYaw   float64 `json:"zero_yaw"`
}

// Apply subtracts the stored offsets from a raw attitude.
func (c *Calibration) Apply(raw Pose) Pose {
	return raw.Sub(c.Offsets())
}

// Offsets returns the stored offsets as a pose.
func (c *Calibration) Offsets() Pose {
	return Pose{Roll: c.ZeroRoll, Pitch: c.ZeroPitch, Yaw: c.ZeroYaw}
}

// Recalibrate makes the filter's current attitude the new zero: the smoothed
// state is added to the offsets and the filter is reset. Calling it twice with
// no samples in between leaves the offsets where the first call put them.
func (c *Calibration) Recalibrate(f *Filter) {
	cur := f.State()
	c.ZeroRoll += cur.Roll
	c.ZeroPitch += cur.Pitch
	c.ZeroYaw += cur.Yaw
	f.Reset()
}
