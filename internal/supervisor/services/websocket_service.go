// Veilwatch - Overlay Monitoring Detection Service
// Copyright 2026 Veilwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/veilwatch/veilwatch

package services

import (
	"context"

	"github.com/veilwatch/veilwatch/internal/websocket"
)

// WebSocketHubService runs the WebSocket hub under supervision.
type WebSocketHubService struct {
	hub *websocket.Hub
}

// NewWebSocketHubService creates a supervised wrapper around the hub.
func NewWebSocketHubService(hub *websocket.Hub) *WebSocketHubService {
	return &WebSocketHubService{hub: hub}
}

// Serve implements suture.Service.
func (w *WebSocketHubService) Serve(ctx context.Context) error {
	return w.hub.RunWithContext(ctx)
}

// String identifies the service in supervisor log messages.
func (w *WebSocketHubService) String() string {
	return "websocket-hub"
}
