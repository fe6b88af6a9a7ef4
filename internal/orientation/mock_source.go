// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"time"

	"github.com/relabs-tech/attitude_monitor/internal/timeutil"
)

// Synthetic returns the demo attitude shown while no live data is arriving.
// It depends on elapsed time alone, so it never carries state between calls.
func Synthetic(elapsed time.Duration) Pose {
	t := elapsed.Seconds()
	return Pose{
		Roll:  math.Sin(t*0.8) * 12,
		Pitch: math.Sin(t*0.6) * 8,
		Yaw:   math.Sin(t*0.35) * 18,
	}
}

type mockSource struct {
	clock timeutil.Clock
	start time.Time
}

// NewMockSource creates a mock orientation source that
// generates smooth changing values, with a slowly drifting yaw.
func NewMockSource(clock timeutil.Clock) Source {
	return &mockSource{clock: clock, start: clock.Now()}
}

func (m *mockSource) Next() (Pose, error) {
	elapsed := m.clock.Now().Sub(m.start).Seconds()

	return Pose{
		Roll:  25 * math.Sin(elapsed*0.5),
		Pitch: 15 * math.Cos(elapsed*0.3),
		Yaw:   math.Mod(elapsed*3, 360),
	}, nil
}
