package link

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/attitude_monitor/internal/timeutil"
)

func init() {
	Logf = func(string, ...any) {}
}

type fakeChannel struct {
	id      uint64
	address string
	closed  int
}

func (c *fakeChannel) Close() error {
	c.closed++
	return nil
}

type fakeDialer struct {
	channels []*fakeChannel
}

func (d *fakeDialer) Open(address string, id uint64, _ func(Event)) Channel {
	ch := &fakeChannel{id: id, address: address}
	d.channels = append(d.channels, ch)
	return ch
}

func (d *fakeDialer) open() []*fakeChannel {
	var open []*fakeChannel
	for _, ch := range d.channels {
		if ch.closed == 0 {
			open = append(open, ch)
		}
	}
	return open
}

func (d *fakeDialer) last() *fakeChannel {
	return d.channels[len(d.channels)-1]
}

type harness struct {
	m      *Manager
	dialer *fakeDialer
	clock  *timeutil.MockClock
	queue  []Event
	frames []string
	states []State
}

func newHarness(t *testing.T, live bool) *harness {
	t.Helper()
	h := &harness{
		dialer: &fakeDialer{},
		clock:  timeutil.NewMockClock(time.Unix(0, 0)),
	}
	h.m = NewManager(Options{
		Dialer:  h.dialer,
		Clock:   h.clock,
		Post:    func(ev Event) { h.queue = append(h.queue, ev) },
		Live:    live,
		Backoff: 2 * time.Second,
		OnFrame: func(text string) { h.frames = append(h.frames, text) },
		OnState: func(s State) { h.states = append(h.states, s) },
	})
	return h
}

// drain feeds queued events (e.g. fired retries) back into the manager.
func (h *harness) drain() {
	for len(h.queue) > 0 {
		ev := h.queue[0]
		h.queue = h.queue[1:]
		h.m.Handle(ev)
	}
}

func (h *harness) emit(kind EventKind) {
	h.m.Handle(Event{Kind: kind, Channel: h.dialer.last().id, Err: errors.New("boom")})
}

func TestConnect_RejectsBadScheme(t *testing.T) {
	h := newHarness(t, true)

	for _, addr := range []string{"http://bad", "", "wss://secure:81", " ws://space", "WS://upper"} {
		err := h.m.Connect(addr)
		assert.ErrorIs(t, err, ErrInvalidAddress, addr)
	}

	assert.Equal(t, Disconnected, h.m.State())
	assert.Empty(t, h.dialer.channels, "no dial attempt for invalid addresses")
	assert.Empty(t, h.states)
}

func TestConnect_InvalidAddressKeepsExistingChannel(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.m.Connect("ws://device:81"))
	h.emit(Opened)

	assert.ErrorIs(t, h.m.Connect("http://bad"), ErrInvalidAddress)
	assert.Equal(t, Connected, h.m.State())
	assert.Len(t, h.dialer.open(), 1)
}

func TestConnect_OpenThenFrames(t *testing.T) {
	h := newHarness(t, true)

	require.NoError(t, h.m.Connect("ws://device:81"))
	assert.Equal(t, Connecting, h.m.State())
	assert.Equal(t, "ws://device:81", h.dialer.last().address)

	h.emit(Opened)
	assert.Equal(t, Connected, h.m.State())

	ch := h.dialer.last().id
	h.m.Handle(Event{Kind: Frame, Channel: ch, Text: "a"})
	h.m.Handle(Event{Kind: Frame, Channel: ch, Text: "not json at all"})
	h.m.Handle(Event{Kind: Frame, Channel: ch, Text: "c"})

	assert.Equal(t, []string{"a", "not json at all", "c"}, h.frames)
	assert.Equal(t, Connected, h.m.State(), "frames never tear the channel down")
	assert.Equal(t, []State{Connecting, Connected}, h.states)
}

func TestConnect_SecondConnectClosesFirst(t *testing.T) {
	h := newHarness(t, true)

	require.NoError(t, h.m.Connect("ws://one:81"))
	h.emit(Opened)
	first := h.dialer.last()

	require.NoError(t, h.m.Connect("ws://two:81"))
	assert.Equal(t, 1, first.closed)
	assert.Len(t, h.dialer.open(), 1)
	assert.Equal(t, "ws://two:81", h.dialer.open()[0].address)

	// Late events from the first channel are ignored.
	h.m.Handle(Event{Kind: Frame, Channel: first.id, Text: "stale"})
	h.m.Handle(Event{Kind: Closed, Channel: first.id})
	assert.Empty(t, h.frames)
	assert.Equal(t, Connecting, h.m.State())
	assert.False(t, h.m.RetryPending())
}

func TestConnect_AtMostOneOpenChannelUnderChurn(t *testing.T) {
	h := newHarness(t, true)

	for i := range 20 {
		require.NoError(t, h.m.Connect("ws://device:81"))
		if i%3 == 0 {
			h.emit(Opened)
		}
		if i%4 == 0 {
			h.emit(Closed)
			h.clock.Advance(2 * time.Second)
			h.drain()
		}
		assert.LessOrEqual(t, len(h.dialer.open()), 1, "iteration %d", i)
	}
}

func TestClose_LiveRetriesAfterBackoff(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.m.Connect("ws://device:81"))
	h.emit(Opened)

	h.emit(Closed)
	assert.Equal(t, Disconnected, h.m.State())
	assert.True(t, h.m.RetryPending())
	assert.Len(t, h.dialer.channels, 1)

	h.clock.Advance(1999 * time.Millisecond)
	h.drain()
	assert.Len(t, h.dialer.channels, 1, "no retry before the backoff elapses")

	h.clock.Advance(time.Millisecond)
	h.drain()
	assert.Len(t, h.dialer.channels, 2)
	assert.Equal(t, Connecting, h.m.State())
	assert.Equal(t, "ws://device:81", h.dialer.last().address)
	assert.Equal(t, 2, h.m.Attempts())
}

func TestClose_RetriesIndefinitely(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.m.Connect("ws://device:81"))

	for range 50 {
		h.emit(Errored)
		h.clock.Advance(2 * time.Second)
		h.drain()
	}

	assert.Equal(t, 51, h.m.Attempts())
	assert.Equal(t, Connecting, h.m.State())
	assert.Len(t, h.dialer.open(), 1)
}

func TestClose_NotLiveStaysDisconnected(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.m.Connect("ws://device:81"))
	h.emit(Opened)

	h.emit(Closed)
	h.clock.Advance(time.Hour)
	h.drain()

	assert.Equal(t, Disconnected, h.m.State())
	assert.False(t, h.m.RetryPending())
	assert.Len(t, h.dialer.channels, 1)

	require.NoError(t, h.m.Connect("ws://device:81"))
	assert.Equal(t, Connecting, h.m.State())
}

func TestErrored_PassesThroughErrorToDisconnected(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.m.Connect("ws://device:81"))
	h.emit(Opened)
	ch := h.dialer.last()

	h.emit(Errored)

	assert.Equal(t, []State{Connecting, Connected, Error, Disconnected}, h.states)
	assert.Equal(t, 1, ch.closed)
	assert.True(t, h.m.RetryPending())

	// The close that usually follows an error is stale by now.
	h.m.Handle(Event{Kind: Closed, Channel: ch.id})
	assert.Equal(t, Disconnected, h.m.State())
}

func TestDisconnect_Idempotent(t *testing.T) {
	h := newHarness(t, true)

	h.m.Disconnect()
	h.m.Disconnect()
	assert.Equal(t, Disconnected, h.m.State())
	assert.Empty(t, h.states)

	require.NoError(t, h.m.Connect("ws://device:81"))
	h.emit(Opened)
	ch := h.dialer.last()

	h.m.Disconnect()
	h.m.Disconnect()
	assert.Equal(t, 1, ch.closed)
	assert.Equal(t, Disconnected, h.m.State())
	assert.False(t, h.m.RetryPending())
}

func TestDisconnect_CancelsPendingRetry(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.m.Connect("ws://device:81"))
	h.emit(Closed)
	require.True(t, h.m.RetryPending())

	h.m.Disconnect()
	assert.Equal(t, 0, h.clock.Pending())

	h.clock.Advance(time.Minute)
	h.drain()
	assert.Len(t, h.dialer.channels, 1)
	assert.Equal(t, Disconnected, h.m.State())
}

func TestDisconnect_LateRetryEventIsNoOp(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.m.Connect("ws://device:81"))
	h.emit(Closed)

	// The timer fires and its event is queued before Disconnect runs.
	h.clock.Advance(2 * time.Second)
	require.Len(t, h.queue, 1)

	h.m.Disconnect()
	h.drain()

	assert.Len(t, h.dialer.channels, 1)
	assert.Equal(t, Disconnected, h.m.State())
}

func TestConnect_SupersedesPendingRetry(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.m.Connect("ws://one:81"))
	h.emit(Closed)
	h.clock.Advance(2 * time.Second) // retry for ws://one queued

	require.NoError(t, h.m.Connect("ws://two:81"))
	h.drain()

	assert.Len(t, h.dialer.channels, 2)
	assert.Equal(t, "ws://two:81", h.dialer.last().address)
	assert.Len(t, h.dialer.open(), 1)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "error", Error.String())
	assert.Equal(t, "retry", Retry.String())
}
