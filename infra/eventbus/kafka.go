package eventbus

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/amirasaad/retailpay/pkg/domain/events"
	"github.com/amirasaad/retailpay/pkg/eventbus"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
)

const defaultTopicPrefix = "retailpay.events"

// KafkaConfig holds configuration for forwarding events to Kafka.
type KafkaConfig struct {
	Brokers      string
	TopicPrefix  string
	WriteTimeout time.Duration
	SASLUsername string
	SASLPassword string
	TLSEnabled   bool
	// Types limits forwarding to these event types. Empty forwards everything.
	Types []events.EventType
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaForwarder wraps a bus and publishes a copy of selected events to
// Kafka after local handlers have run. Local dispatch is authoritative;
// publish failures are logged and never returned to the emitter.
type KafkaForwarder struct {
	inner   eventbus.Bus
	writer  messageWriter
	prefix  string
	timeout time.Duration
	types   map[events.EventType]struct{}
	logger  *slog.Logger
}

// NewKafkaForwarder decorates inner with Kafka publishing.
func NewKafkaForwarder(inner eventbus.Bus, cfg KafkaConfig, logger *slog.Logger) (*KafkaForwarder, error) {
	brokers := parseBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka event bus: brokers are required")
	}
	mechanism, err := buildKafkaSASLMechanism(cfg)
	if err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		Balancer:               &kafka.Hash{},
	}
	if mechanism != nil || cfg.TLSEnabled {
		transport := &kafka.Transport{SASL: mechanism}
		if cfg.TLSEnabled {
			transport.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		writer.Transport = transport
	}

	f := newKafkaForwarder(inner, writer, cfg, logger)
	logger.Info("🚀 Kafka event forwarding enabled",
		"brokers", brokers,
		"topic_prefix", f.prefix,
		"sasl_enabled", mechanism != nil,
		"tls_enabled", cfg.TLSEnabled,
	)
	return f, nil
}

func newKafkaForwarder(inner eventbus.Bus, w messageWriter, cfg KafkaConfig, logger *slog.Logger) *KafkaForwarder {
	prefix := strings.TrimSpace(cfg.TopicPrefix)
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	var types map[events.EventType]struct{}
	if len(cfg.Types) > 0 {
		types = make(map[events.EventType]struct{}, len(cfg.Types))
		for _, t := range cfg.Types {
			types[t] = struct{}{}
		}
	}
	return &KafkaForwarder{
		inner:   inner,
		writer:  w,
		prefix:  prefix,
		timeout: timeout,
		types:   types,
		logger:  logger.With("bus", "kafka"),
	}
}

// Register registers a local handler.
func (f *KafkaForwarder) Register(eventType events.EventType, handler eventbus.HandlerFunc) {
	f.inner.Register(eventType, handler)
}

// Emit dispatches locally, then publishes to Kafka.
func (f *KafkaForwarder) Emit(ctx context.Context, event events.Event) error {
	err := f.inner.Emit(ctx, event)
	if f.forwards(events.EventType(event.Type())) {
		if perr := f.publish(ctx, event); perr != nil {
			f.logger.Error("kafka publish failed", "type", event.Type(), "error", perr)
		}
	}
	return err
}

func (f *KafkaForwarder) forwards(t events.EventType) bool {
	if f.types == nil {
		return true
	}
	_, ok := f.types[t]
	return ok
}

func (f *KafkaForwarder) publish(ctx context.Context, event events.Event) error {
	value, err := buildEnvelope(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()
	msg := kafka.Message{
		Topic: TopicName(f.prefix, events.EventType(event.Type())),
		Key:   []byte(event.Type()),
		Value: value,
		Time:  time.Now(),
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka event bus: publish failed: %w", err)
	}
	return nil
}

// Close flushes and closes the Kafka writer.
func (f *KafkaForwarder) Close() error {
	if f == nil || f.writer == nil {
		return nil
	}
	return f.writer.Close()
}

func buildEnvelope(event events.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("kafka event bus: marshal failed: %w", err)
	}
	env := Envelope{Type: event.Type(), OccurredAt: time.Now().UTC(), Payload: data}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("kafka event bus: envelope marshal failed: %w", err)
	}
	return b, nil
}

func buildKafkaSASLMechanism(cfg KafkaConfig) (sasl.Mechanism, error) {
	username := strings.TrimSpace(cfg.SASLUsername)
	password := strings.TrimSpace(cfg.SASLPassword)
	if username == "" && password == "" {
		return nil, nil
	}
	if username == "" || password == "" {
		return nil, fmt.Errorf("kafka event bus: sasl username and password are required")
	}
	return plain.Mechanism{Username: username, Password: password}, nil
}

func parseBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// TopicName maps "Order.StatusChanged" to "<prefix>.order.statuschanged".
func TopicName(prefix string, eventType events.EventType) string {
	return fmt.Sprintf("%s.%s", prefix, strings.ToLower(string(eventType)))
}

var _ eventbus.Bus = (*KafkaForwarder)(nil)
