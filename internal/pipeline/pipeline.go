// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package pipeline owns the per-process attitude state: calibration offsets,
// the smoothing filter, the last accepted acceleration reading and the
// liveness window used to choose between live and demo data on each tick.
//
// A Pipeline is not safe for concurrent use. It is meant to be owned by a
// single event loop that serializes frames, ticks and user commands.
package pipeline

import (
	"time"

	"github.com/relabs-tech/attitude_monitor/internal/orientation"
	"github.com/relabs-tech/attitude_monitor/internal/telemetry"
)

// DefaultStaleThreshold is how long the pipeline trusts the last sample.
const DefaultStaleThreshold = 1200 * time.Millisecond

// Kind tells consumers where a selected pose came from.
type Kind int

const (
	Synthetic Kind = iota
	Real
)

func (k Kind) String() string {
	if k == Real {
		return "live"
	}
	return "demo"
}

// Selection is the pose chosen for one render tick.
type Selection struct {
	Kind Kind
	Pose orientation.Pose
}

// Options configures a Pipeline.
type Options struct {
	SmoothingFactor float64
	StaleThreshold  time.Duration
	// Epoch is the reference for the synthetic demo motion.
	Epoch time.Time
}

// Pipeline is the explicit context object carrying smoothing and calibration
// state between steps.
type Pipeline struct {
	filter      *orientation.Filter
	calibration orientation.Calibration
	staleAfter  time.Duration
	epoch       time.Time

	accel      telemetry.Accel
	lastSample time.Time
	haveSample bool
}

// New returns a pipeline with zeroed filter and calibration state.
func New(opts Options) (*Pipeline, error) {
	f, err := orientation.NewFilter(opts.SmoothingFactor)
	if err != nil {
		return nil, err
	}
	stale := opts.StaleThreshold
	if stale <= 0 {
		stale = DefaultStaleThreshold
	}
	return &Pipeline{
		filter:     f,
		staleAfter: stale,
		epoch:      opts.Epoch,
	}, nil
}

// SmoothingFactor returns the filter's smoothing factor.
func (p *Pipeline) SmoothingFactor() float64 { return p.filter.Factor() }

// StaleThreshold returns how long a sample stays live.
func (p *Pipeline) StaleThreshold() time.Duration { return p.staleAfter }

// Ingest decodes one text frame received at now and, if it is valid, runs it
// through calibration and smoothing. A malformed frame returns an error
// wrapping telemetry.ErrDecode and leaves every piece of state untouched.
func (p *Pipeline) Ingest(text string, now time.Time) (orientation.Pose, error) {
	s, err := telemetry.Decode(text)
	if err != nil {
		return p.filter.State(), err
	}
	return p.Accept(s, now), nil
}

// Accept runs an already decoded sample through the pipeline.
func (p *Pipeline) Accept(s telemetry.Sample, now time.Time) orientation.Pose {
	p.lastSample = now
	p.haveSample = true
	p.accel = s.Accel()

	raw := orientation.Pose{Roll: s.Roll, Pitch: s.Pitch, Yaw: s.Yaw}
	return p.filter.Update(p.calibration.Apply(raw))
}

// Recalibrate makes the current smoothed attitude the new zero.
func (p *Pipeline) Recalibrate() {
	p.calibration.Recalibrate(p.filter)
}

// Smoothed returns the filter state.
func (p *Pipeline) Smoothed() orientation.Pose {
	return p.filter.State()
}

// Calibration returns a copy of the stored offsets.
func (p *Pipeline) Calibration() orientation.Calibration {
	return p.calibration
}

// Accel returns the last accepted acceleration reading, unfiltered.
func (p *Pipeline) Accel() telemetry.Accel {
	return p.accel
}

// LastSample returns when the last valid sample was accepted.
func (p *Pipeline) LastSample() (time.Time, bool) {
	return p.lastSample, p.haveSample
}

// Fresh reports whether the last accepted sample is within the stale threshold.
func (p *Pipeline) Fresh(now time.Time) bool {
	return p.haveSample && now.Sub(p.lastSample) <= p.staleAfter
}

// Select picks the pose to hand to consumers at now: the smoothed attitude
// while data is fresh, otherwise the synthetic demo motion. The demo motion
// is never fed back into the filter or the calibration.
func (p *Pipeline) Select(now time.Time) Selection {
	if p.Fresh(now) {
		return Selection{Kind: Real, Pose: p.filter.State()}
	}
	return Selection{Kind: Synthetic, Pose: orientation.Synthetic(now.Sub(p.epoch))}
}
