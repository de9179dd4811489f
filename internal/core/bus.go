package core

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// originHeader carries the publishing node's id on event messages. The
// engine's own consumer uses it to skip events this node already processed
// locally; without it every ingested event would come back off the stream
// and be scored a second time.
const originHeader = "Sentra-Origin"

// EventBus wraps NATS JetStream for publishing events, alerts, and audit
// entries, and for feeding externally published events into the pipeline.
type EventBus struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	ns     *server.Server
	nodeID string
	logger zerolog.Logger
	mu     sync.RWMutex
	subs   []*nats.Subscription

	metrics *BusMetrics
}

// BusMetrics tracks event bus counters.
type BusMetrics struct {
	mu               sync.Mutex
	EventsPublished  int64
	EventsFailed     int64
	AlertsPublished  int64
	AuditPublished   int64
	MessagesAcked    int64
	MessagesNaked    int64
	SelfSkipped      int64
}

// NewEventBus connects to NATS, starting an embedded server first when
// configured, and ensures the three streams exist.
func NewEventBus(cfg *BusConfig, logger zerolog.Logger) (*EventBus, error) {
	bus := &EventBus{
		nodeID:  uuid.New().String(),
		logger:  logger.With().Str("component", "event_bus").Logger(),
		subs:    make([]*nats.Subscription, 0),
		metrics: &BusMetrics{},
	}

	if cfg.Embedded {
		if err := os.MkdirAll(cfg.StoreDir, 0755); err != nil {
			return nil, fmt.Errorf("creating NATS store dir: %w", err)
		}

		opts := &server.Options{
			Host:      "127.0.0.1",
			Port:      cfg.Port,
			JetStream: true,
			StoreDir:  cfg.StoreDir,
			NoLog:     true,
			NoSigs:    true,
		}

		ns, err := server.NewServer(opts)
		if err != nil {
			return nil, fmt.Errorf("creating embedded NATS server: %w", err)
		}

		ns.Start()

		if !ns.ReadyForConnections(10 * time.Second) {
			return nil, fmt.Errorf("embedded NATS server failed to start within timeout")
		}

		bus.ns = ns
		bus.logger.Info().Int("port", cfg.Port).Msg("embedded NATS server started")
	}

	url := cfg.URL
	if cfg.Embedded {
		url = fmt.Sprintf("nats://127.0.0.1:%d", cfg.Port)
	}

	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				bus.logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			bus.logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	bus.nc = nc

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}
	bus.js = js

	// AddStream returns the existing stream if config matches; if a stream
	// exists with a different config from a previous version, update it.
	streams := []*nats.StreamConfig{
		{
			Name:      "INSIDER_EVENTS",
			Subjects:  []string{"itw.events.>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour * 7,
			MaxBytes:  1024 * 1024 * 1024,
			Storage:   nats.FileStorage,
			Discard:   nats.DiscardOld,
		},
		{
			Name:      "INSIDER_ALERTS",
			Subjects:  []string{"itw.alerts.>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour * 30,
			MaxBytes:  512 * 1024 * 1024,
			Storage:   nats.FileStorage,
			Discard:   nats.DiscardOld,
		},
		{
			Name:      "INSIDER_AUDIT",
			Subjects:  []string{"itw.audit.>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour * 90,
			MaxBytes:  512 * 1024 * 1024,
			Storage:   nats.FileStorage,
			Discard:   nats.DiscardOld,
		},
	}
	for _, sc := range streams {
		if _, err := js.AddStream(sc); err != nil {
			if _, updateErr := js.UpdateStream(sc); updateErr != nil {
				return nil, fmt.Errorf("creating/updating %s stream: %w (original: %v)", sc.Name, updateErr, err)
			}
		}
	}

	bus.logger.Info().Str("url", url).Msg("connected to NATS JetStream")
	return bus, nil
}

// PublishEvent publishes an activity event to the event stream, tagged with
// this node's origin id so SubscribeToEvents does not hand it back.
func (b *EventBus) PublishEvent(event *Event) error {
	data, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	subject := fmt.Sprintf("itw.events.%s", strings.ToLower(event.Type.String()))
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{originHeader: []string{b.nodeID}},
	}
	if _, err := b.js.PublishMsg(msg); err != nil {
		b.metrics.mu.Lock()
		b.metrics.EventsFailed++
		b.metrics.mu.Unlock()
		return fmt.Errorf("publishing event to %s: %w", subject, err)
	}

	b.metrics.mu.Lock()
	b.metrics.EventsPublished++
	b.metrics.mu.Unlock()

	b.logger.Debug().
		Str("event_id", event.ID).
		Str("subject", subject).
		Msg("event published")

	return nil
}

// PublishAlert publishes an alert to the alert stream, keyed by band.
func (b *EventBus) PublishAlert(alert Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshaling alert: %w", err)
	}

	subject := fmt.Sprintf("itw.alerts.%s", strings.ToLower(alert.Assessment.Band.String()))
	if _, err := b.js.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing alert to %s: %w", subject, err)
	}

	b.metrics.mu.Lock()
	b.metrics.AlertsPublished++
	b.metrics.mu.Unlock()

	return nil
}

// PublishAudit mirrors an audit entry onto the audit stream. Wired as an
// AuditLog sink; failures are logged, never propagated — the in-memory
// trail is the source of truth.
func (b *EventBus) PublishAudit(entry AuditEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to marshal audit entry")
		return
	}

	subject := fmt.Sprintf("itw.audit.%s", entry.TargetKind)
	if _, err := b.js.Publish(subject, data); err != nil {
		b.logger.Warn().Err(err).Int64("audit_id", entry.ID).Msg("failed to publish audit entry")
		return
	}

	b.metrics.mu.Lock()
	b.metrics.AuditPublished++
	b.metrics.mu.Unlock()
}

// Subscribe creates a durable subscription to a subject pattern.
func (b *EventBus) Subscribe(subject, durableName string, handler func(msg *nats.Msg)) error {
	opts := []nats.SubOpt{nats.DeliverNew(), nats.AckExplicit()}
	if durableName != "" {
		opts = append(opts, nats.Durable(durableName))
	}
	sub, err := b.js.Subscribe(subject, handler, opts...)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", subject, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	b.logger.Debug().Str("subject", subject).Str("durable", durableName).Msg("subscribed")
	return nil
}

// SubscribeToEvents feeds externally published activity events to handler
// with a durable consumer. This is how collectors on other hosts inject
// events into the pipeline. Events this node published itself are acked and
// skipped — they already went through the pipeline before publication.
func (b *EventBus) SubscribeToEvents(handler func(event *Event)) error {
	return b.Subscribe("itw.events.>", "sentra-engine-events", func(msg *nats.Msg) {
		if msg.Header.Get(originHeader) == b.nodeID {
			_ = msg.Ack()
			b.metrics.mu.Lock()
			b.metrics.SelfSkipped++
			b.metrics.mu.Unlock()
			return
		}
		event, err := UnmarshalEvent(msg.Data)
		if err != nil {
			b.logger.Error().Err(err).Msg("failed to unmarshal event")
			_ = msg.Nak()
			b.metrics.mu.Lock()
			b.metrics.MessagesNaked++
			b.metrics.mu.Unlock()
			return
		}
		handler(event)
		_ = msg.Ack()
		b.metrics.mu.Lock()
		b.metrics.MessagesAcked++
		b.metrics.mu.Unlock()
	})
}

// Close shuts down the event bus.
func (b *EventBus) Close() error {
	b.mu.Lock()
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
	b.mu.Unlock()

	if b.nc != nil {
		b.nc.Close()
	}

	if b.ns != nil {
		b.ns.Shutdown()
		b.ns.WaitForShutdown()
		b.logger.Info().Msg("embedded NATS server stopped")
	}

	return nil
}

// IsConnected returns true if the NATS connection is active.
func (b *EventBus) IsConnected() bool {
	return b.nc != nil && b.nc.IsConnected()
}

// GetMetrics returns a snapshot of bus metrics.
func (b *EventBus) GetMetrics() map[string]int64 {
	b.metrics.mu.Lock()
	defer b.metrics.mu.Unlock()
	return map[string]int64{
		"events_published": b.metrics.EventsPublished,
		"events_failed":    b.metrics.EventsFailed,
		"alerts_published": b.metrics.AlertsPublished,
		"audit_published":  b.metrics.AuditPublished,
		"messages_acked":   b.metrics.MessagesAcked,
		"messages_naked":   b.metrics.MessagesNaked,
		"self_skipped":     b.metrics.SelfSkipped,
	}
}
