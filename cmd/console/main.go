// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/attitude_monitor/internal/app"
	"github.com/relabs-tech/attitude_monitor/internal/config"
)

func main() {
	log.Println("starting attitude-monitor interactive console")

	// Load configuration
	if err := config.InitGlobal("attitude_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunConsole(ctx, config.Get()); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
