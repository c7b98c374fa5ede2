// Veilwatch - Overlay Monitoring Detection Service
// Copyright 2026 Veilwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/veilwatch/veilwatch

// Package notify delivers detection transition events to external webhook
// endpoints. Deliveries run behind a circuit breaker so a dead endpoint
// cannot pile up blocked requests across poll cycles.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"github.com/veilwatch/veilwatch/internal/detect"
	"github.com/veilwatch/veilwatch/internal/logging"
	"github.com/veilwatch/veilwatch/internal/metrics"
	"github.com/veilwatch/veilwatch/internal/monitor"
)

// EventType identifies a webhook event.
type EventType string

const (
	// EventDetected is sent when monitoring software appears.
	EventDetected EventType = "detection_started"

	// EventRemoved is sent when monitoring software disappears.
	EventRemoved EventType = "detection_ended"

	// EventChange is sent on every successful poll cycle when change
	// notifications are enabled.
	EventChange EventType = "detection_change"
)

// Event is the JSON payload posted to the webhook endpoint.
type Event struct {
	ID        string           `json:"id"`
	Type      EventType        `json:"type"`
	Snapshot  *detect.Snapshot `json:"snapshot,omitempty"` // absent for detection_ended
	Timestamp time.Time        `json:"timestamp"`
	Source    string           `json:"source"`
}

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	Enabled bool              `koanf:"enabled" json:"enabled"`
	URL     string            `koanf:"url" json:"url" validate:"omitempty,url"`
	Headers map[string]string `koanf:"headers" json:"headers,omitempty"`

	// RateLimit is the minimum spacing between deliveries.
	RateLimit time.Duration `koanf:"rate_limit" json:"rate_limit"`

	// NotifyOnChange also posts an event for every successful poll cycle,
	// not just for edge transitions.
	NotifyOnChange bool `koanf:"notify_on_change" json:"notify_on_change"`

	// Timeout bounds one delivery attempt.
	Timeout time.Duration `koanf:"timeout" json:"timeout"`
}

// DefaultWebhookConfig returns sensible defaults.
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Enabled:   false,
		RateLimit: 500 * time.Millisecond,
		Timeout:   10 * time.Second,
	}
}

// WebhookNotifier posts detection events to a webhook endpoint.
type WebhookNotifier struct {
	cfg     WebhookConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]

	mu       sync.Mutex
	lastSent time.Time
}

// NewWebhookNotifier creates a webhook notifier from config.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "webhook-notifier",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("webhook circuit breaker state change")
		},
	})

	return &WebhookNotifier{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
	}
}

// Enabled reports whether deliveries will be attempted.
func (n *WebhookNotifier) Enabled() bool {
	return n.cfg.Enabled && n.cfg.URL != ""
}

// Send delivers one event, honoring the rate limit and circuit breaker.
func (n *WebhookNotifier) Send(ctx context.Context, event Event) error {
	if !n.Enabled() {
		return nil
	}

	n.mu.Lock()
	wait := n.cfg.RateLimit - time.Since(n.lastSent)
	n.mu.Unlock()

	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	_, err := n.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, n.post(ctx, event)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.NotifierDeliveries.WithLabelValues("breaker_open").Inc()
		} else {
			metrics.NotifierDeliveries.WithLabelValues("error").Inc()
		}
		return err
	}

	n.mu.Lock()
	n.lastSent = time.Now()
	n.mu.Unlock()

	metrics.NotifierDeliveries.WithLabelValues("ok").Inc()
	return nil
}

// post performs the HTTP delivery.
func (n *WebhookNotifier) post(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal webhook event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range n.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// newEvent builds an Event with a fresh ID and timestamp.
func newEvent(eventType EventType, snap *detect.Snapshot) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Snapshot:  snap,
		Timestamp: time.Now().UTC(),
		Source:    "veilwatch",
	}
}

// deliver sends an event off the caller's goroutine so a slow endpoint
// never delays the poll loop.
func (n *WebhookNotifier) deliver(eventType EventType, snap *detect.Snapshot) {
	event := newEvent(eventType, snap)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Timeout)
		defer cancel()
		if err := n.Send(ctx, event); err != nil {
			logging.Error().Err(err).Str("event_type", string(eventType)).Msg("webhook delivery failed")
		}
	}()
}

// Callbacks returns monitor callbacks that post transition events through
// this notifier. The change callback is only wired when NotifyOnChange is
// set, keeping steady-state cycles quiet by default.
func (n *WebhookNotifier) Callbacks() monitor.Callbacks {
	cb := monitor.Callbacks{
		OnDetected: func(snap detect.Snapshot) {
			n.deliver(EventDetected, &snap)
		},
		OnRemoved: func() {
			n.deliver(EventRemoved, nil)
		},
	}
	if n.cfg.NotifyOnChange {
		cb.OnChange = func(snap detect.Snapshot) {
			n.deliver(EventChange, &snap)
		}
	}
	return cb
}
