package app

import (
	"context"
	"log"
	"time"

	"github.com/relabs-tech/attitude_monitor/internal/config"
)

// RunHeadless runs the monitor with no UI. Snapshots go to MQTT when a
// broker is configured, and a pose line is logged every
// CONSOLE_LOG_INTERVAL milliseconds.
func RunHeadless(ctx context.Context, cfg *config.Config) error {
	hub := NewBroadcaster()
	sinks := []Sink{hub}

	if cfg.MQTTBroker != "" {
		client, err := ConnectMQTT(cfg)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		pub := NewMQTTPublisher(client, cfg.TopicAttitude, cfg.TopicStatus)
		go pub.Run(ctx)
		sinks = append(sinks, pub)
	} else {
		log.Println("headless: MQTT_BROKER not set, publishing disabled")
	}

	mon, err := NewMonitor(MonitorOptionsFromConfig(cfg), sinks...)
	if err != nil {
		return err
	}
	monDone := make(chan error, 1)
	go func() { monDone <- mon.Run(ctx) }()

	if cfg.ConsoleLogInterval <= 0 {
		return <-monDone
	}

	ticker := time.NewTicker(time.Duration(cfg.ConsoleLogInterval) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-monDone:
			return err
		case <-ticker.C:
			if snap, ok := hub.Last(); ok {
				log.Println(formatPoseLine(snap))
			}
		}
	}
}
