package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fluxorio/tasklist/pkg/core"
	"github.com/nats-io/nats.go"
)

// NATSConfig configures the NATS publisher
type NATSConfig struct {
	// URL is the NATS server URL, e.g. "nats://127.0.0.1:4222"
	URL string

	// Prefix is prepended to every subject. Default: "tasklist"
	Prefix string

	// Name is an optional NATS connection name
	Name string

	// FlushTimeout bounds the flush done by Close. Default: 2s
	FlushTimeout time.Duration
}

// NATSPublisher publishes events as JSON on <prefix>.<event type>
type NATSPublisher struct {
	nc           *nats.Conn
	prefix       string
	flushTimeout time.Duration
}

// NewNATSPublisher connects to the server in config
func NewNATSPublisher(config NATSConfig) (*NATSPublisher, error) {
	url := config.URL
	if url == "" {
		url = nats.DefaultURL
	}
	prefix := strings.TrimSuffix(config.Prefix, ".")
	if prefix == "" {
		prefix = "tasklist"
	}
	flushTimeout := config.FlushTimeout
	if flushTimeout <= 0 {
		flushTimeout = 2 * time.Second
	}

	opts := []nats.Option{nats.MaxReconnects(-1)}
	if config.Name != "" {
		opts = append(opts, nats.Name(config.Name))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}

	return &NATSPublisher{
		nc:           nc,
		prefix:       prefix,
		flushTimeout: flushTimeout,
	}, nil
}

// Subject returns the subject an event type is published on
func (p *NATSPublisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

// Publish sends event; the request ID travels in the X-Request-ID header
func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	if event.Type == "" {
		return &core.Error{Code: "INVALID_INPUT", Message: "event type cannot be empty"}
	}
	if event.RequestID == "" && ctx != nil {
		event.RequestID = core.GetRequestID(ctx)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := core.JSONEncode(event)
	if err != nil {
		return err
	}

	msg := &nats.Msg{
		Subject: p.Subject(event.Type),
		Data:    data,
		Header:  nats.Header{},
	}
	if event.RequestID != "" {
		msg.Header.Set(core.HeaderRequestID, event.RequestID)
	}

	return p.nc.PublishMsg(msg)
}

// Close flushes pending messages and closes the connection
func (p *NATSPublisher) Close() error {
	if p == nil || p.nc == nil || p.nc.IsClosed() {
		return nil
	}
	err := p.nc.FlushTimeout(p.flushTimeout)
	p.nc.Close()
	return err
}
