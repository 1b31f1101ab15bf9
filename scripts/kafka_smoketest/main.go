package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	infraeventbus "github.com/amirasaad/retailpay/infra/eventbus"
	"github.com/amirasaad/retailpay/pkg/domain/events"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// RunSmokeTest emits order events through the Kafka forwarder and reads
// them back to verify a local cluster carries the topics the service
// publishes to.
func RunSmokeTest() error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	brokers := strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))
	if brokers == "" {
		brokers = "localhost:9093,localhost:9092"
	}
	prefix := strings.TrimSpace(os.Getenv("KAFKA_TOPIC_PREFIX"))
	if prefix == "" {
		prefix = "retailpay.events"
	}
	groupID := "retailpay-smoketest-" + uuid.NewString()[:8]

	types := []events.EventType{events.EventTypeOrderStatusChanged, events.EventTypeInventorySyncFailed}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Create topics if they don't exist
	{
		dialer := &kafka.Dialer{Timeout: 5 * time.Second}
		conn, err := dialer.DialContext(ctx, "tcp", strings.Split(brokers, ",")[0])
		if err != nil {
			logger.Error("dial failed", "error", err)
			return err
		}
		defer func() { _ = conn.Close() }()
		for _, t := range types {
			topic := infraeventbus.TopicName(prefix, t)
			err = conn.CreateTopics(kafka.TopicConfig{
				Topic:             topic,
				NumPartitions:     1,
				ReplicationFactor: 1,
			})
			if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
				logger.Error("create topic failed", "topic", topic, "error", err)
				return err
			}
			logger.Info("topic ready", "topic", topic)
		}
	}

	bus, err := infraeventbus.NewKafkaForwarder(infraeventbus.NewWithMemory(logger), infraeventbus.KafkaConfig{
		Brokers:      brokers,
		TopicPrefix:  prefix,
		WriteTimeout: 5 * time.Second,
		Types:        types,
	}, logger)
	if err != nil {
		return err
	}
	defer func() { _ = bus.Close() }()

	orderID := uuid.New()
	now := time.Now().UTC()
	sent := []events.Event{
		events.OrderStatusChanged{OrderID: orderID, OrderCode: "SMOKE-1", From: "pending", To: "approved", OccurredAt: now},
		events.InventorySyncFailed{OrderID: orderID, OrderCode: "SMOKE-1", Attempts: 1, Error: "smoke", OccurredAt: now},
	}
	for _, e := range sent {
		if err := bus.Emit(ctx, e); err != nil {
			logger.Error("emit failed", "type", e.Type(), "error", err)
			return err
		}
		logger.Info("produced", "type", e.Type())
	}

	// Consume messages
	for _, t := range types {
		topic := infraeventbus.TopicName(prefix, t)
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     strings.Split(brokers, ","),
			GroupID:     groupID,
			Topic:       topic,
			StartOffset: kafka.FirstOffset,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     500 * time.Millisecond,
		})
		defer func(rd *kafka.Reader) { _ = rd.Close() }(r)

		readCtx, cancelRead := context.WithTimeout(ctx, 10*time.Second)
		defer cancelRead()

		for {
			msg, err := r.FetchMessage(readCtx)
			if err != nil {
				logger.Error("fetch failed", "topic", topic, "error", err)
				return err
			}
			_ = r.CommitMessages(ctx, msg)

			var env infraeventbus.Envelope
			if err := json.Unmarshal(msg.Value, &env); err != nil {
				return fmt.Errorf("topic %s: bad envelope: %w", topic, err)
			}
			if env.Type != string(t) || !strings.Contains(string(env.Payload), orderID.String()) {
				continue
			}
			logger.Info("consumed", "topic", topic, "key", string(msg.Key))
			break
		}
	}

	logger.Info("kafka smoke test passed")
	return nil
}

// main runs the smoke test and exits non-zero on failure.
func main() {
	if err := RunSmokeTest(); err != nil {
		os.Exit(1)
	}
}
