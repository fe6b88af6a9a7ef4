// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/dustin/go-humanize"

	"github.com/relabs-tech/attitude_monitor/internal/config"
	"github.com/relabs-tech/attitude_monitor/internal/orientation"
	"github.com/relabs-tech/attitude_monitor/internal/pipeline"
)

// readlineWriter keeps log lines from tearing through the prompt.
type readlineWriter struct {
	rl *readline.Instance
}

func (w *readlineWriter) Write(p []byte) (n int, err error) {
	if w.rl != nil {
		w.rl.Clean()
	}
	n, err = os.Stderr.Write(p)
	if w.rl != nil {
		w.rl.Refresh()
	}
	return n, err
}

const consoleHelp = `commands:
  connect [address]   connect to the device (default: last or configured address)
  disconnect          close the link and stop retrying
  recalibrate         make the current attitude the new zero
  status              show link and pipeline status
  help                show this help`

// handleConsoleCommand runs one console line against the monitor and writes
// the result to out.
func handleConsoleCommand(ctx context.Context, line string, mon *Monitor, out io.Writer) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return
	}

	switch parts[0] {
	case "connect":
		addr := ""
		if len(parts) > 1 {
			addr = parts[1]
		}
		if err := mon.Connect(ctx, addr); err != nil {
			fmt.Fprintf(out, "connect failed: %v\n", err)
			return
		}
		fmt.Fprintln(out, "connecting")
	case "disconnect":
		if err := mon.Disconnect(ctx); err != nil {
			fmt.Fprintf(out, "disconnect failed: %v\n", err)
			return
		}
		fmt.Fprintln(out, "disconnected")
	case "recalibrate", "cal":
		st, err := mon.Recalibrate(ctx)
		if err != nil {
			fmt.Fprintf(out, "recalibrate failed: %v\n", err)
			return
		}
		c := st.Calibration
		fmt.Fprintf(out, "zero set: R=%.2f P=%.2f Y=%.2f\n", c.ZeroRoll, c.ZeroPitch, c.ZeroYaw)
	case "status":
		st, err := mon.Status(ctx)
		if err != nil {
			fmt.Fprintf(out, "status failed: %v\n", err)
			return
		}
		writeStatus(out, st)
	case "help", "?":
		fmt.Fprintln(out, consoleHelp)
	default:
		fmt.Fprintf(out, "unknown command: %s (try 'help')\n", parts[0])
	}
}

func writeStatus(out io.Writer, st Status) {
	addr := st.Address
	if addr == "" {
		addr = "-"
	}
	fmt.Fprintf(out, "link:        %s (%s)\n", st.State, addr)
	fmt.Fprintf(out, "attempts:    %d", st.Attempts)
	if st.RetryPending {
		fmt.Fprint(out, ", retry pending")
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "frames:      %s (%s bad)\n", humanize.Comma(int64(st.Frames)), humanize.Comma(int64(st.DecodeErrors)))
	if st.LastSample.IsZero() {
		fmt.Fprintln(out, "last sample: never")
	} else {
		fmt.Fprintf(out, "last sample: %s\n", humanize.Time(st.LastSample))
	}
	source := pipeline.Synthetic
	if st.Fresh {
		source = pipeline.Real
	}
	fmt.Fprintf(out, "source:      %s\n", source)
	c := st.Calibration
	fmt.Fprintf(out, "zero:        R=%.2f P=%.2f Y=%.2f\n", c.ZeroRoll, c.ZeroPitch, c.ZeroYaw)
	s := st.Smoothed
	fmt.Fprintf(out, "smoothed:    R=%.2f P=%.2f Y=%.2f\n", s.Roll, s.Pitch, s.Yaw)
}

// formatPoseLine renders one periodic console line.
func formatPoseLine(snap pipeline.Snapshot) string {
	flag := ""
	if snap.Exceeded {
		flag = fmt.Sprintf("  LIMIT >%.0f", orientation.AttitudeLimitDeg)
	}
	return fmt.Sprintf(
		"[POSE]  ROLL=%6.2f  PITCH=%6.2f  YAW=%6.2f  %-4s %s%s",
		snap.Roll, snap.Pitch, snap.Yaw, snap.Source, snap.Status, flag,
	)
}

func consoleHistoryPath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(cacheDir, "attitude_monitor")
	_ = os.MkdirAll(dir, 0750)
	return filepath.Join(dir, "console_history")
}

func readlineLoop(ctx context.Context, cancel context.CancelFunc, rl *readline.Instance, lines chan<- string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			cancel()
			return
		}
		if err != nil {
			cancel() // EOF
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		select {
		case lines <- line:
		case <-ctx.Done():
			return
		}
	}
}

// RunConsole runs the monitor with an interactive prompt. Ctrl+C or EOF ends
// the session.
func RunConsole(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "attitude> ",
		HistoryFile: consoleHistoryPath(),
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	rlWriter := &readlineWriter{rl: rl}
	log.SetOutput(rlWriter)
	defer func() {
		log.SetOutput(os.Stderr)
		_ = rl.Close()
	}()

	hub := NewBroadcaster()
	mon, err := NewMonitor(MonitorOptionsFromConfig(cfg), hub)
	if err != nil {
		return err
	}
	monDone := make(chan error, 1)
	go func() { monDone <- mon.Run(ctx) }()

	log.Println("console: type 'help' for commands")

	lines := make(chan string, 10)
	go readlineLoop(ctx, cancel, rl, lines)

	var poseC <-chan time.Time
	if cfg.ConsoleLogInterval > 0 {
		t := time.NewTicker(time.Duration(cfg.ConsoleLogInterval) * time.Millisecond)
		defer t.Stop()
		poseC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return <-monDone
		case line := <-lines:
			handleConsoleCommand(ctx, line, mon, rlWriter)
		case <-poseC:
			if snap, ok := hub.Last(); ok {
				fmt.Fprintln(rlWriter, formatPoseLine(snap))
			}
		}
	}
}
