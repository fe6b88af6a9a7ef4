// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package link supervises the telemetry channel to the sensor device:
// connect, detect loss, retry, and report status.
//
// Manager is a plain state machine. It is not safe for concurrent use; all
// calls, including Handle for every Event, must come from one goroutine.
// Channel I/O and the reconnect timer only ever talk back to it by posting
// Events.
package link

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/relabs-tech/attitude_monitor/internal/timeutil"
)

// Scheme is the only address prefix the manager will dial.
const Scheme = "ws://"

// DefaultBackoff is the delay before a live reconnect attempt.
const DefaultBackoff = 2 * time.Second

// ErrInvalidAddress is returned by Connect for addresses outside Scheme.
var ErrInvalidAddress = errors.New("link: invalid address")

// Logf is the package logger. Tests may replace it.
var Logf = log.Printf

// Channel is one open (or opening) connection to the device.
type Channel interface {
	Close() error
}

// Dialer opens channels. Open must not block: it starts the connection in
// the background and reports progress by calling post with events tagged
// with id. After Close, a channel may still post, and those events are
// discarded as stale.
type Dialer interface {
	Open(address string, id uint64, post func(Event)) Channel
}

// Options configures a Manager.
type Options struct {
	Dialer Dialer
	Clock  timeutil.Clock
	// Post delivers events back to the goroutine that calls Handle.
	Post func(Event)

	// Live enables automatic reconnects after a channel closes.
	Live    bool
	Backoff time.Duration

	OnFrame func(text string)
	OnState func(State)
}

// Manager owns the channel lifecycle.
type Manager struct {
	opts Options

	state   State
	address string
	wanted  bool // set by Connect, cleared by Disconnect

	channel   Channel
	channelID uint64
	nextID    uint64

	retry    timeutil.Timer
	retryID  uint64
	attempts int
}

// NewManager returns a manager in the Disconnected state.
func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	return &Manager{opts: opts, state: Disconnected}
}

// State returns the current connection state.
func (m *Manager) State() State { return m.state }

// Address returns the last accepted address.
func (m *Manager) Address() string { return m.address }

// Attempts returns how many channels have been opened so far.
func (m *Manager) Attempts() int { return m.attempts }

// RetryPending reports whether a reconnect is scheduled.
func (m *Manager) RetryPending() bool { return m.retry != nil }

// Connect validates address and opens a new channel to it, tearing down any
// channel that is still open and cancelling a pending retry first.
func (m *Manager) Connect(address string) error {
	if !strings.HasPrefix(address, Scheme) {
		return fmt.Errorf("%w: %q does not start with %s", ErrInvalidAddress, address, Scheme)
	}

	m.cancelRetry()
	m.closeChannel()
	m.address = address
	m.wanted = true
	m.open()
	return nil
}

// Disconnect closes the channel and cancels any pending retry. It is safe to
// call at any time, including when nothing is open.
func (m *Manager) Disconnect() {
	m.wanted = false
	m.cancelRetry()
	m.closeChannel()
	m.setState(Disconnected)
}

// Handle applies one event to the state machine.
func (m *Manager) Handle(ev Event) {
	if ev.Kind == Retry {
		m.handleRetry(ev.Channel)
		return
	}

	if m.channel == nil || ev.Channel != m.channelID {
		// Leftover from a channel we already tore down.
		return
	}

	switch ev.Kind {
	case Opened:
		Logf("link: connected to %s", m.address)
		m.setState(Connected)
	case Frame:
		if m.opts.OnFrame != nil {
			m.opts.OnFrame(ev.Text)
		}
	case Errored:
		Logf("link: channel error on %s: %v", m.address, ev.Err)
		m.setState(Error)
		m.lost()
	case Closed:
		Logf("link: channel to %s closed", m.address)
		m.lost()
	}
}

func (m *Manager) handleRetry(token uint64) {
	if token != m.retryID || m.retry == nil {
		return
	}
	m.retry = nil
	if !m.wanted || m.channel != nil || m.state != Disconnected {
		return
	}
	Logf("link: reconnecting to %s", m.address)
	m.open()
}

func (m *Manager) open() {
	m.nextID++
	m.channelID = m.nextID
	m.attempts++
	m.setState(Connecting)
	m.channel = m.opts.Dialer.Open(m.address, m.channelID, m.opts.Post)
}

// lost runs the shared close path for both errors and closes.
func (m *Manager) lost() {
	m.closeChannel()
	m.setState(Disconnected)
	if m.opts.Live && m.wanted {
		m.scheduleRetry()
	}
}

func (m *Manager) scheduleRetry() {
	m.cancelRetry()
	token := m.retryID
	post := m.opts.Post
	m.retry = m.opts.Clock.AfterFunc(m.opts.Backoff, func() {
		post(Event{Kind: Retry, Channel: token})
	})
	Logf("link: retrying %s in %v", m.address, m.opts.Backoff)
}

// cancelRetry stops the timer and bumps the token, so a Retry event that is
// already queued no longer matches.
func (m *Manager) cancelRetry() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	m.retryID++
}

func (m *Manager) closeChannel() {
	if m.channel == nil {
		return
	}
	if err := m.channel.Close(); err != nil {
		Logf("link: close %s: %v", m.address, err)
	}
	m.channel = nil
}

func (m *Manager) setState(s State) {
	if s == m.state {
		return
	}
	m.state = s
	if m.opts.OnState != nil {
		m.opts.OnState(s)
	}
}
