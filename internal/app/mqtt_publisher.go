package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/attitude_monitor/internal/config"
	"github.com/relabs-tech/attitude_monitor/internal/pipeline"
)

// Publisher is the part of mqtt.Client the publisher needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// ConnectMQTT connects to the configured broker. The client reconnects on
// its own after the first successful connect.
func ConnectMQTT(cfg *config.Config) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("mqtt: connection lost: %v", err)
	})
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Printf("mqtt: connected to broker at %s", cfg.MQTTBroker)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return client, nil
}

// MQTTPublisher publishes every snapshot to the attitude topic and the link
// status (retained) to the status topic whenever it changes. Publish never
// blocks the monitor loop; when the queue is full snapshots are dropped.
type MQTTPublisher struct {
	client        Publisher
	topicAttitude string
	topicStatus   string
	queue         chan pipeline.Snapshot

	dropped    int
	lastStatus string
}

func NewMQTTPublisher(client Publisher, topicAttitude, topicStatus string) *MQTTPublisher {
	return &MQTTPublisher{
		client:        client,
		topicAttitude: topicAttitude,
		topicStatus:   topicStatus,
		queue:         make(chan pipeline.Snapshot, 16),
	}
}

// Publish implements Sink.
func (p *MQTTPublisher) Publish(snap pipeline.Snapshot) {
	select {
	case p.queue <- snap:
	default:
		p.dropped++
		if p.dropped == 1 || p.dropped%500 == 0 {
			log.Printf("mqtt: publish queue full, dropped %d snapshots", p.dropped)
		}
	}
}

// Run drains the queue until ctx is cancelled.
func (p *MQTTPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-p.queue:
			p.send(snap)
		}
	}
}

func (p *MQTTPublisher) send(snap pipeline.Snapshot) {
	if snap.Status != p.lastStatus {
		p.lastStatus = snap.Status
		token := p.client.Publish(p.topicStatus, 1, true, snap.Status)
		go waitToken(token, p.topicStatus)
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		log.Printf("mqtt: marshal snapshot: %v", err)
		return
	}
	token := p.client.Publish(p.topicAttitude, 0, false, payload)
	go waitToken(token, p.topicAttitude)
}

func waitToken(token mqtt.Token, topic string) {
	if !token.WaitTimeout(2 * time.Second) {
		log.Printf("mqtt: publish to %s timed out", topic)
		return
	}
	if err := token.Error(); err != nil {
		log.Printf("mqtt: publish to %s: %v", topic, err)
	}
}
