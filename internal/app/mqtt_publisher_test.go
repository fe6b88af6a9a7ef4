package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/attitude_monitor/internal/pipeline"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  interface{}
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic, qos, retained, payload})
	return doneToken{}
}

func (f *fakePublisher) onTopic(topic string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, m := range f.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func TestMQTTPublisher_PublishesSnapshotsAndStatusChanges(t *testing.T) {
	fake := &fakePublisher{}
	pub := NewMQTTPublisher(fake, "attitude/snapshot", "attitude/status")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pub.Run(ctx)

	for _, status := range []string{"disconnected", "connecting", "connecting", "connected"} {
		s := snapWithRoll(5)
		s.Status = status
		pub.Publish(s)
	}

	require.Eventually(t, func() bool {
		return len(fake.onTopic("attitude/snapshot")) == 4
	}, time.Second, 5*time.Millisecond)

	statuses := fake.onTopic("attitude/status")
	require.Len(t, statuses, 3, "repeated status is not republished")
	for _, m := range statuses {
		assert.True(t, m.retained)
	}
	assert.Equal(t, "connected", statuses[2].payload)

	var got pipeline.Snapshot
	payload, ok := fake.onTopic("attitude/snapshot")[0].payload.([]byte)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, 5.0, got.Roll)
}

func TestMQTTPublisher_FullQueueDrops(t *testing.T) {
	pub := NewMQTTPublisher(&fakePublisher{}, "a", "s")

	// Run is not started, so nothing drains the queue.
	for range cap(pub.queue) + 5 {
		pub.Publish(snapWithRoll(0))
	}
	assert.Equal(t, 5, pub.dropped)
}
