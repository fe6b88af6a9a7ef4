// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/attitude_monitor/internal/config"
	"github.com/relabs-tech/attitude_monitor/internal/link"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is a command sent by a browser over /ws.
type WSMessage struct {
	Action  string `json:"action"` // connect, disconnect, recalibrate
	Address string `json:"address,omitempty"`
}

// WSResponse acknowledges a WSMessage.
type WSResponse struct {
	Type    string `json:"type"` // ack, error
	Action  string `json:"action,omitempty"`
	Message string `json:"message,omitempty"`
}

type connectRequest struct {
	Address string `json:"address"`
}

// NewWebHandler serves the consumer-facing API:
//
//	GET  /api/attitude    latest snapshot
//	GET  /api/status      monitor status
//	POST /api/connect     {"address": "ws://..."}
//	POST /api/disconnect
//	POST /api/recalibrate
//	GET  /ws              snapshot stream plus commands
//
// Everything else is served from staticDir.
func NewWebHandler(mon *Monitor, hub *Broadcaster, staticDir string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/attitude", func(w http.ResponseWriter, r *http.Request) {
		snap, ok := hub.Last()
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		st, err := mon.Status(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, st)
	})

	mux.HandleFunc("POST /api/connect", func(w http.ResponseWriter, r *http.Request) {
		var req connectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, fmt.Sprintf("bad request body: %v", err), http.StatusBadRequest)
			return
		}
		err := mon.Connect(r.Context(), req.Address)
		switch {
		case errors.Is(err, link.ErrInvalidAddress):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case err != nil:
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusAccepted)
		}
	})

	mux.HandleFunc("POST /api/disconnect", func(w http.ResponseWriter, r *http.Request) {
		if err := mon.Disconnect(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/recalibrate", func(w http.ResponseWriter, r *http.Request) {
		st, err := mon.Recalibrate(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, st.Calibration)
	})

	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		handleSnapshotWS(w, r, mon, hub)
	})

	mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// handleSnapshotWS streams snapshots to the browser and accepts commands on
// the same socket. gorilla allows one concurrent reader and one concurrent
// writer, so replies go through the writer goroutine.
func handleSnapshotWS(w http.ResponseWriter, r *http.Request, mon *Monitor, hub *Broadcaster) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	id, snaps := hub.Subscribe(4)
	defer hub.Unsubscribe(id)

	replies := make(chan WSResponse, 4)
	readDone := make(chan struct{})

	go func() {
		defer close(readDone)
		for {
			var msg WSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("web: websocket error: %v", err)
				}
				return
			}
			resp := runWSCommand(r.Context(), mon, msg)
			select {
			case replies <- resp:
			case <-r.Context().Done():
				return
			}
		}
	}()

	for {
		var out any
		select {
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			out = snap
		case resp := <-replies:
			out = resp
		case <-readDone:
			return
		}
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(out); err != nil {
			log.Printf("web: websocket write error: %v", err)
			return
		}
	}
}

func runWSCommand(ctx context.Context, mon *Monitor, msg WSMessage) WSResponse {
	var err error
	switch msg.Action {
	case "connect":
		err = mon.Connect(ctx, msg.Address)
	case "disconnect":
		err = mon.Disconnect(ctx)
	case "recalibrate":
		_, err = mon.Recalibrate(ctx)
	default:
		err = fmt.Errorf("unknown action %q", msg.Action)
	}
	if err != nil {
		return WSResponse{Type: "error", Action: msg.Action, Message: err.Error()}
	}
	return WSResponse{Type: "ack", Action: msg.Action}
}

// RunWeb runs the monitor with the HTTP/WebSocket API and, when a broker is
// configured, the MQTT publisher. It blocks until ctx is cancelled.
func RunWeb(ctx context.Context, cfg *config.Config) error {
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
	}

	mon, err := NewMonitor(MonitorOptionsFromConfig(cfg), sinks...)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler: NewWebHandler(mon, hub, "web"),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("web server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	monCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	monDone := make(chan error, 1)
	go func() { monDone <- mon.Run(monCtx) }()

	select {
	case err = <-errCh:
		cancel()
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("web: shutdown: %v", err)
	}
	<-monDone
	return err
}
