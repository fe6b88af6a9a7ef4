package link

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(srv *httptest.Server) string {
	return "ws://" + strings.TrimPrefix(srv.URL, "http://")
}

func collect(t *testing.T, events <-chan Event, n int) []Event {
	t.Helper()
	var got []Event
	for len(got) < n {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d of %d events: %+v", len(got), n, got)
		}
	}
	return got
}

func kinds(evs []Event) []EventKind {
	out := make([]EventKind, len(evs))
	for i, ev := range evs {
		out[i] = ev.Kind
	}
	return out
}

func TestWebSocketDialer_FramesThenNormalClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"r":1}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	events := make(chan Event, 16)
	d := &WebSocketDialer{HandshakeTimeout: time.Second}
	ch := d.Open(wsURL(srv), 7, func(ev Event) { events <- ev })
	defer ch.Close()

	got := collect(t, events, 4)
	assert.Equal(t, []EventKind{Opened, Frame, Frame, Closed}, kinds(got))
	assert.Equal(t, `{"r":1}`, got[1].Text)
	assert.Equal(t, `garbage`, got[2].Text)
	for _, ev := range got {
		assert.Equal(t, uint64(7), ev.Channel)
	}
}

func TestWebSocketDialer_AbruptDropIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`x`))
		conn.Close() // no close frame
	}))
	defer srv.Close()

	events := make(chan Event, 16)
	d := &WebSocketDialer{HandshakeTimeout: time.Second}
	ch := d.Open(wsURL(srv), 1, func(ev Event) { events <- ev })
	defer ch.Close()

	got := collect(t, events, 4)
	assert.Equal(t, []EventKind{Opened, Frame, Errored, Closed}, kinds(got))
	assert.Error(t, got[2].Err)
}

func TestWebSocketDialer_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := wsURL(srv)
	srv.Close()

	events := make(chan Event, 4)
	d := &WebSocketDialer{HandshakeTimeout: time.Second}
	d.Open(addr, 3, func(ev Event) { events <- ev })

	got := collect(t, events, 2)
	assert.Equal(t, []EventKind{Errored, Closed}, kinds(got))
}

func TestWebSocketDialer_CloseStopsReader(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	events := make(chan Event, 16)
	d := &WebSocketDialer{HandshakeTimeout: time.Second}
	ch := d.Open(wsURL(srv), 9, func(ev Event) { events <- ev })

	require.Equal(t, Opened, collect(t, events, 1)[0].Kind)
	require.NoError(t, ch.Close())
	assert.NoError(t, ch.Close(), "second close is a no-op")

	// Closing our side ends the reader with a plain Closed, no error.
	got := collect(t, events, 1)
	assert.Equal(t, Closed, got[0].Kind)
}

func TestManager_WithWebSocketDialer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`hello`))
		conn.ReadMessage() // until the client goes away
	}))
	defer srv.Close()

	events := make(chan Event, 16)
	var frames []string
	m := NewManager(Options{
		Dialer:  &WebSocketDialer{HandshakeTimeout: time.Second},
		Post:    func(ev Event) { events <- ev },
		Live:    true,
		OnFrame: func(text string) { frames = append(frames, text) },
	})

	require.NoError(t, m.Connect(wsURL(srv)))
	for _, ev := range collect(t, events, 2) {
		m.Handle(ev)
	}
	assert.Equal(t, Connected, m.State())
	assert.Equal(t, []string{"hello"}, frames)

	m.Disconnect()
	assert.Equal(t, Disconnected, m.State())
	assert.False(t, m.RetryPending())
}
