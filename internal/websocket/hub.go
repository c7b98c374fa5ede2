// Veilwatch - Overlay Monitoring Detection Service
// Copyright 2026 Veilwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/veilwatch/veilwatch

// Package websocket fans detection events out to connected clients. The hub
// receives broadcasts from the monitor callbacks and delivers them to every
// registered client; slow clients are dropped rather than allowed to block
// the broadcast path.
package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/veilwatch/veilwatch/internal/detect"
	"github.com/veilwatch/veilwatch/internal/logging"
	"github.com/veilwatch/veilwatch/internal/metrics"
	"github.com/veilwatch/veilwatch/internal/monitor"
)

// Message types for WebSocket communication.
const (
	MessageTypePing             = "ping"
	MessageTypePong             = "pong"
	MessageTypeDetectionChange  = "detection_change"
	MessageTypeDetectionAlert   = "detection_alert"
	MessageTypeDetectionRemoved = "detection_removed"
)

// Message represents a WebSocket message.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// RemovedData is the payload of a detection_removed message. The triggering
// cycle observed nothing, so only the event time is carried.
type RemovedData struct {
	Timestamp string `json:"timestamp"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext runs the hub until the context is canceled, then closes
// all clients and returns ctx.Err(). Designed for suture supervision.
//
// Shutdown and client lifecycle events are drained ahead of broadcasts so
// client state is consistent before any message is delivered.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Lifecycle events first, non-blocking.
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnectedClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnectedClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

// broadcastToClients delivers a message to all clients in stable ID order.
// Clients whose send buffer is full are disconnected.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
	}
	if len(toRemove) > 0 {
		metrics.WSConnectedClients.Set(float64(len(h.clients)))
		logging.Warn().Int("dropped", len(toRemove)).Msg("dropped slow websocket clients")
	}
}

// shutdown closes every client and logs the reason.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	count := len(h.clients)
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	metrics.WSConnectedClients.Set(0)
	logging.Info().
		Str("component", "websocket-hub").
		AnErr("reason", ctx.Err()).
		Int("clients_closed", count).
		Msg("websocket hub stopped")
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// enqueue offers a message to the broadcast channel without blocking.
func (h *Hub) enqueue(message Message) {
	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Str("message_type", message.Type).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastDetectionChange sends the latest snapshot to all clients.
func (h *Hub) BroadcastDetectionChange(snap detect.Snapshot) {
	h.enqueue(Message{Type: MessageTypeDetectionChange, Data: snap})
}

// BroadcastDetectionAlert announces a not-detected to detected transition.
func (h *Hub) BroadcastDetectionAlert(snap detect.Snapshot) {
	h.enqueue(Message{Type: MessageTypeDetectionAlert, Data: snap})
}

// BroadcastDetectionRemoved announces a detected to not-detected transition.
func (h *Hub) BroadcastDetectionRemoved() {
	h.enqueue(Message{
		Type: MessageTypeDetectionRemoved,
		Data: RemovedData{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

// Callbacks returns monitor callbacks that mirror detection events onto
// the hub.
func (h *Hub) Callbacks() monitor.Callbacks {
	return monitor.Callbacks{
		OnDetected: h.BroadcastDetectionAlert,
		OnRemoved:  h.BroadcastDetectionRemoved,
		OnChange:   h.BroadcastDetectionChange,
	}
}
