// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/attitude_monitor/internal/config"
	"github.com/relabs-tech/attitude_monitor/internal/orientation"
	"github.com/relabs-tech/attitude_monitor/internal/telemetry"
	"github.com/relabs-tech/attitude_monitor/internal/timeutil"
)

// Simulator stands in for the sensor device: it serves a WebSocket that
// pushes one JSON frame per interval, driven by the mock orientation source.
type Simulator struct {
	Interval time.Duration
	// GarbageEvery sends a malformed frame every N frames. 0 disables it.
	GarbageEvery int
	// Noise is the standard deviation of the accelerometer noise, in g.
	Noise float64
	Clock timeutil.Clock

	mu      sync.Mutex
	conns   map[*websocket.Conn]struct{}
	closing bool
}

// track registers conn. It returns false once CloseAll has run.
func (s *Simulator) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	if s.conns == nil {
		s.conns = make(map[*websocket.Conn]struct{})
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Simulator) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Active returns the number of connected clients.
func (s *Simulator) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// CloseAll drops every client and refuses new ones. http.Server.Shutdown
// does not touch hijacked connections, so RunSimulator calls this after it.
func (s *Simulator) CloseAll() {
	s.mu.Lock()
	s.closing = true
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "simulator stopping"),
			time.Now().Add(time.Second))
		c.Close()
	}
}

// NewSimulatorFromConfig maps the file configuration onto a Simulator.
func NewSimulatorFromConfig(cfg *config.Config) *Simulator {
	return &Simulator{
		Interval:     time.Duration(cfg.SimulatorIntervalMS) * time.Millisecond,
		GarbageEvery: cfg.SimulatorGarbageEvery,
		Noise:        0.01,
		Clock:        timeutil.RealClock{},
	}
}

// frameFromPose builds a device frame for pose. Roll and pitch are
// re-derived from the gravity vector so they carry the same sensor noise as
// the acceleration fields.
func frameFromPose(pose orientation.Pose, noise float64, rng *rand.Rand) telemetry.Sample {
	r := pose.Roll * math.Pi / 180
	p := pose.Pitch * math.Pi / 180

	ax := -math.Sin(p)
	ay := math.Sin(r) * math.Cos(p)
	az := math.Cos(r) * math.Cos(p)
	if noise > 0 && rng != nil {
		ax += rng.NormFloat64() * noise
		ay += rng.NormFloat64() * noise
		az += rng.NormFloat64() * noise
	}

	tilt := orientation.ComputePoseFromAccel(ax, ay, az)
	return telemetry.Sample{
		Roll:  tilt.Roll,
		Pitch: tilt.Pitch,
		Yaw:   pose.Yaw,
		Ax:    ax,
		Ay:    ay,
		Az:    az,
		G:     math.Sqrt(ax*ax + ay*ay + az*az),
	}
}

// ServeHTTP upgrades the request and streams frames until the client goes
// away.
func (s *Simulator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("simulator: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()
	if !s.track(conn) {
		return
	}
	defer s.untrack(conn)
	log.Printf("simulator: client connected from %s", r.RemoteAddr)

	clock := s.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}

	// Drain client messages so close frames are processed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	src := orientation.NewMockSource(clock)
	rng := rand.New(rand.NewPCG(uint64(clock.Now().UnixNano()), 0x5eed))
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	sent := 0
	for {
		select {
		case <-r.Context().Done():
			return
		case <-gone:
			log.Printf("simulator: client %s disconnected", r.RemoteAddr)
			return
		case <-ticker.C():
		}

		sent++
		var payload []byte
		if s.GarbageEvery > 0 && sent%s.GarbageEvery == 0 {
			payload = []byte(`{"r":`)
		} else {
			pose, err := src.Next()
			if err != nil {
				log.Printf("simulator: mock source: %v", err)
				continue
			}
			payload, err = json.Marshal(frameFromPose(pose, s.Noise, rng))
			if err != nil {
				log.Printf("simulator: json marshal error: %v", err)
				continue
			}
		}

		conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("simulator: write error: %v", err)
			return
		}
	}
}

// RunSimulator serves the simulated device on the configured port until ctx
// is cancelled.
func RunSimulator(ctx context.Context, cfg *config.Config) error {
	sim := NewSimulatorFromConfig(cfg)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.SimulatorPort),
		Handler: sim,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("simulator: listening on ws://localhost%s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	sim.CloseAll()
	return err
}
