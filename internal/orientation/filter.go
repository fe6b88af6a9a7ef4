// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import "fmt"

// DefaultSmoothingFactor is the share of the previous state kept on each update.
const DefaultSmoothingFactor = 0.18

// Filter is a per-axis exponential moving average over attitude angles.
// Each update moves the state toward the target by (1 - factor) of the gap:
//
//	state = state + (target - state) * (1 - factor)
//
// The zero state is the filter's starting point; only Reset returns to it.
type Filter struct {
	factor float64
	state  Pose
}

// NewFilter returns a filter with the given smoothing factor, which must lie in [0, 1).
func NewFilter(factor float64) (*Filter, error) {
	if !(factor >= 0 && factor < 1) {
		return nil, fmt.Errorf("smoothing factor must be in [0,1), got %v", factor)
	}
	return &Filter{factor: factor}, nil
}

// Update folds one calibrated target into the state and returns the new state.
func (f *Filter) Update(target Pose) Pose {
	gain := 1 - f.factor
	f.state.Roll = lerp(f.state.Roll, target.Roll, gain)
	f.state.Pitch = lerp(f.state.Pitch, target.Pitch, gain)
	f.state.Yaw = lerp(f.state.Yaw, target.Yaw, gain)
	return f.state
}

// State returns the current smoothed attitude.
func (f *Filter) State() Pose {
	return f.state
}

// Factor returns the configured smoothing factor.
func (f *Filter) Factor() float64 {
	return f.factor
}

// Reset zeroes all three axes.
func (f *Filter) Reset() {
	f.state = Pose{}
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
