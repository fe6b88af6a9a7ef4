// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package link

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketDialer opens channels with gorilla/websocket. Every text or
// binary message becomes one Frame event.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
}

// Open starts dialing in the background and returns immediately.
func (d *WebSocketDialer) Open(address string, id uint64, post func(Event)) Channel {
	ctx, cancel := context.WithCancel(context.Background())
	ch := &wsChannel{cancel: cancel}
	go ch.run(ctx, d.HandshakeTimeout, address, id, post)
	return ch
}

type wsChannel struct {
	cancel context.CancelFunc

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (c *wsChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	c.cancel()
	if conn == nil {
		return nil
	}
	// Best effort close frame; the device may already be gone.
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}

func (c *wsChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *wsChannel) run(ctx context.Context, timeout time.Duration, address string, id uint64, post func(Event)) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}

	conn, _, err := dialer.DialContext(ctx, address, nil)
	if err != nil {
		if !c.isClosed() {
			post(Event{Kind: Errored, Channel: id, Err: err})
		}
		post(Event{Kind: Closed, Channel: id})
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	post(Event{Kind: Opened, Channel: id})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			switch {
			case c.isClosed():
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
			default:
				post(Event{Kind: Errored, Channel: id, Err: err})
			}
			post(Event{Kind: Closed, Channel: id})
			return
		}
		post(Event{Kind: Frame, Channel: id, Text: string(data)})
	}
}
