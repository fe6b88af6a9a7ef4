package app

import (
	"sync"

	"github.com/relabs-tech/attitude_monitor/internal/pipeline"
)

// Broadcaster fans snapshots out to any number of listeners (web sockets,
// the console). It keeps the most recent value so late readers get an
// immediate answer. Slow listeners miss snapshots rather than stall the loop.
type Broadcaster struct {
	mu       sync.RWMutex
	subs     map[int]chan pipeline.Snapshot
	nextID   int
	last     pipeline.Snapshot
	haveLast bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan pipeline.Snapshot)}
}

// Publish implements Sink.
func (b *Broadcaster) Publish(snap pipeline.Snapshot) {
	b.mu.Lock()
	b.last = snap
	b.haveLast = true
	subs := make([]chan pipeline.Snapshot, 0, len(b.subs))
	for _, ch := range b.subs {
		subs = append(subs, ch)
	}
	// Sends happen under the lock so Unsubscribe can't close a channel mid-send.
	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
		}
	}
	b.mu.Unlock()
}

// Last returns the most recent snapshot, if any.
func (b *Broadcaster) Last() (pipeline.Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last, b.haveLast
}

// Subscribe registers a listener with the given channel buffer.
func (b *Broadcaster) Subscribe(buffer int) (int, <-chan pipeline.Snapshot) {
	if buffer <= 0 {
		buffer = 2
	}
	ch := make(chan pipeline.Snapshot, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	if b.haveLast {
		ch <- b.last
	}
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (b *Broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}
