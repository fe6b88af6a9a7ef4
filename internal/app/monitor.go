// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/relabs-tech/attitude_monitor/internal/config"
	"github.com/relabs-tech/attitude_monitor/internal/link"
	"github.com/relabs-tech/attitude_monitor/internal/orientation"
	"github.com/relabs-tech/attitude_monitor/internal/pipeline"
	"github.com/relabs-tech/attitude_monitor/internal/timeutil"
)

// ErrStopped is returned by monitor commands once Run has returned.
var ErrStopped = errors.New("monitor stopped")

// Sink receives one snapshot per render tick. Publish is called from the
// monitor loop and must not block.
type Sink interface {
	Publish(pipeline.Snapshot)
}

// MonitorOptions configures a Monitor.
type MonitorOptions struct {
	Address         string
	AutoConnect     bool
	Live            bool
	Backoff         time.Duration
	RenderInterval  time.Duration
	StaleThreshold  time.Duration
	SmoothingFactor float64

	Clock  timeutil.Clock
	Dialer link.Dialer
}

// MonitorOptionsFromConfig maps the file configuration onto MonitorOptions.
func MonitorOptionsFromConfig(cfg *config.Config) MonitorOptions {
	return MonitorOptions{
		Address:         cfg.DeviceAddress,
		AutoConnect:     cfg.AutoConnect,
		Live:            cfg.LiveReconnect,
		Backoff:         time.Duration(cfg.ReconnectBackoffMS) * time.Millisecond,
		RenderInterval:  time.Duration(cfg.RenderIntervalMS) * time.Millisecond,
		StaleThreshold:  time.Duration(cfg.StaleThresholdMS) * time.Millisecond,
		SmoothingFactor: cfg.SmoothingFactor,
		Dialer: &link.WebSocketDialer{
			HandshakeTimeout: time.Duration(cfg.DialTimeoutMS) * time.Millisecond,
		},
	}
}

// Status is a point-in-time view of the monitor for status displays.
type Status struct {
	State        string                  `json:"state"`
	Address      string                  `json:"address"`
	Attempts     int                     `json:"attempts"`
	RetryPending bool                    `json:"retry_pending"`
	Frames       int                     `json:"frames"`
	DecodeErrors int                     `json:"decode_errors"`
	Calibration  orientation.Calibration `json:"calibration"`
	Smoothed     orientation.Pose        `json:"smoothed"`
	LastSample   time.Time               `json:"last_sample,omitzero"`
	Fresh        bool                    `json:"fresh"`
}

type commandKind int

const (
	cmdConnect commandKind = iota
	cmdDisconnect
	cmdRecalibrate
	cmdStatus
)

type command struct {
	kind    commandKind
	address string
	reply   chan commandResult
}

type commandResult struct {
	err    error
	status Status
}

// Monitor is the single event loop that owns the link manager and the
// pipeline. Channel events, user commands and render ticks are all handled
// on the goroutine running Run, one at a time, so neither the filter nor
// the calibration needs locking.
type Monitor struct {
	opts  MonitorOptions
	clock timeutil.Clock
	pipe  *pipeline.Pipeline
	link  *link.Manager
	sinks []Sink

	events   chan link.Event
	commands chan command
	done     chan struct{}

	frames       int
	decodeErrors int
}

// NewMonitor builds a monitor. Nothing is dialed until Run.
func NewMonitor(opts MonitorOptions, sinks ...Sink) (*Monitor, error) {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Dialer == nil {
		opts.Dialer = &link.WebSocketDialer{}
	}
	if opts.RenderInterval <= 0 {
		opts.RenderInterval = 33 * time.Millisecond
	}

	pipe, err := pipeline.New(pipeline.Options{
		SmoothingFactor: opts.SmoothingFactor,
		StaleThreshold:  opts.StaleThreshold,
		Epoch:           opts.Clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		opts:     opts,
		clock:    opts.Clock,
		pipe:     pipe,
		sinks:    sinks,
		events:   make(chan link.Event, 256),
		commands: make(chan command),
		done:     make(chan struct{}),
	}
	m.link = link.NewManager(link.Options{
		Dialer:  opts.Dialer,
		Clock:   opts.Clock,
		Post:    m.post,
		Live:    opts.Live,
		Backoff: opts.Backoff,
		OnFrame: m.handleFrame,
		OnState: func(s link.State) { log.Printf("monitor: link %s", s) },
	})
	return m, nil
}

// post hands an event to the loop. Once the loop is gone events are dropped.
func (m *Monitor) post(ev link.Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

// Run processes events until ctx is cancelled. It must be called once.
func (m *Monitor) Run(ctx context.Context) error {
	defer close(m.done)
	defer m.link.Disconnect()

	ticker := m.clock.NewTicker(m.opts.RenderInterval)
	defer ticker.Stop()

	log.Printf("monitor: smoothing %.2f, stale after %v, tick %v",
		m.pipe.SmoothingFactor(), m.pipe.StaleThreshold(), m.opts.RenderInterval)

	if m.opts.AutoConnect {
		if err := m.link.Connect(m.opts.Address); err != nil {
			log.Printf("monitor: auto-connect: %v", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			log.Println("monitor: shutting down")
			return nil
		case ev := <-m.events:
			m.link.Handle(ev)
		case cmd := <-m.commands:
			cmd.reply <- m.handleCommand(cmd)
		case now := <-ticker.C():
			m.tick(now)
		}
	}
}

func (m *Monitor) handleFrame(text string) {
	if _, err := m.pipe.Ingest(text, m.clock.Now()); err != nil {
		m.decodeErrors++
		// Log the first few, then sample, so a chatty bad device can't flood the log.
		if m.decodeErrors <= 5 || m.decodeErrors%100 == 0 {
			log.Printf("monitor: dropping frame (%d so far): %v", m.decodeErrors, err)
		}
		return
	}
	m.frames++
}

func (m *Monitor) tick(now time.Time) {
	snap := m.pipe.Snapshot(now, m.link.State().String())
	for _, s := range m.sinks {
		s.Publish(snap)
	}
}

func (m *Monitor) handleCommand(cmd command) commandResult {
	switch cmd.kind {
	case cmdConnect:
		addr := cmd.address
		if addr == "" {
			addr = m.link.Address()
		}
		if addr == "" {
			addr = m.opts.Address
		}
		if err := m.link.Connect(addr); err != nil {
			return commandResult{err: err}
		}
		log.Printf("monitor: connecting to %s", addr)
	case cmdDisconnect:
		m.link.Disconnect()
		log.Println("monitor: disconnected by user")
	case cmdRecalibrate:
		m.pipe.Recalibrate()
		c := m.pipe.Calibration()
		log.Printf("monitor: recalibrated, zero R=%.2f P=%.2f Y=%.2f", c.ZeroRoll, c.ZeroPitch, c.ZeroYaw)
	}
	return commandResult{status: m.status()}
}

func (m *Monitor) status() Status {
	now := m.clock.Now()
	last, _ := m.pipe.LastSample()
	return Status{
		State:        m.link.State().String(),
		Address:      m.link.Address(),
		Attempts:     m.link.Attempts(),
		RetryPending: m.link.RetryPending(),
		Frames:       m.frames,
		DecodeErrors: m.decodeErrors,
		Calibration:  m.pipe.Calibration(),
		Smoothed:     m.pipe.Smoothed(),
		LastSample:   last,
		Fresh:        m.pipe.Fresh(now),
	}
}

func (m *Monitor) do(ctx context.Context, cmd command) (Status, error) {
	cmd.reply = make(chan commandResult, 1)
	select {
	case m.commands <- cmd:
	case <-m.done:
		return Status{}, ErrStopped
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	// The loop always answers a command it accepted.
	res := <-cmd.reply
	return res.status, res.err
}

// Connect asks the loop to connect to address. An empty address reuses the
// last one (or the configured default). Invalid addresses are reported
// synchronously with link.ErrInvalidAddress.
func (m *Monitor) Connect(ctx context.Context, address string) error {
	_, err := m.do(ctx, command{kind: cmdConnect, address: address})
	return err
}

// Disconnect asks the loop to drop the link and stop retrying.
func (m *Monitor) Disconnect(ctx context.Context) error {
	_, err := m.do(ctx, command{kind: cmdDisconnect})
	return err
}

// Recalibrate makes the current smoothed attitude the new zero.
func (m *Monitor) Recalibrate(ctx context.Context) (Status, error) {
	return m.do(ctx, command{kind: cmdRecalibrate})
}

// Status returns the monitor status.
func (m *Monitor) Status(ctx context.Context) (Status, error) {
	return m.do(ctx, command{kind: cmdStatus})
}
