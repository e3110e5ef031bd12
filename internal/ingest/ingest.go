// Package ingest consumes raw log entries from RabbitMQ and appends
// them to the durable log. Chat, mail and platform adapters publish
// JSON entries to one shared queue; this consumer is the only writer of
// log_entries.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rabbitmq/amqp091-go"

	"github.com/chronicler-ai/chronicler/pkg/common"
	"github.com/chronicler-ai/chronicler/pkg/logger"
)

// Store is the slice of the queue store the consumer needs.
type Store interface {
	AppendLogEntries(ctx context.Context, entries []common.LogEntry) error
}

// DialParams locate the broker.
type DialParams struct {
	User     string
	Password string
	Host     string
	Port     string
}

// Dial connects to RabbitMQ.
func Dial(params DialParams) (*amqp091.Connection, error) {
	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		params.User,
		params.Password,
		params.Host,
		params.Port,
	)
	conn, err := amqp091.Dial(connURL)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// inboundEntry is the wire format adapters publish. ID is optional;
// adapters that supply their own make redelivery idempotent end to end.
type inboundEntry struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"`
	Source    string    `json:"source"`
}

// Consumer reads entries off the ingest queue and appends them to the
// durable log.
type Consumer struct {
	ch    *amqp091.Channel
	queue string
	store Store
}

// NewConsumer opens a channel and declares the durable ingest queue.
func NewConsumer(conn *amqp091.Connection, queue string, store Store) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	if err := ch.Qos(10, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{ch: ch, queue: queue, store: store}, nil
}

// Close releases the consumer's channel.
func (c *Consumer) Close() error {
	return c.ch.Close()
}

// Run consumes until the context is canceled. Malformed messages are
// dropped with a nack; store failures requeue so entries survive a
// database outage.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.ch.Consume(
		c.queue,
		c.queue+"_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	logger.Info("[Ingest] Listening for log entries", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			logger.Info("[Ingest] Stopping consumer", "queue", c.queue)
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			if err := c.handle(ctx, msg); err != nil {
				logger.Error("[Ingest] Failed to store entries, requeueing", "err", err)
				if nerr := msg.Nack(false, true); nerr != nil {
					logger.Error("[Ingest] Failed to nack message", "err", nerr)
				}
				continue
			}
			if err := msg.Ack(false); err != nil {
				logger.Error("[Ingest] Failed to ack message", "err", err)
			}
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg amqp091.Delivery) error {
	entries, err := decodeEntries(msg.Body)
	if err != nil {
		// Malformed payloads never become processable; drop them.
		logger.Warn("[Ingest] Dropping malformed message", "err", err)
		if nerr := msg.Nack(false, false); nerr != nil {
			logger.Error("[Ingest] Failed to nack malformed message", "err", nerr)
		}
		return nil
	}
	if len(entries) == 0 {
		return nil
	}

	if err := c.store.AppendLogEntries(ctx, entries); err != nil {
		return err
	}
	logger.Debug("[Ingest] Entries appended", "count", len(entries))
	return nil
}

// decodeEntries accepts a single entry object or an array of entries.
func decodeEntries(body []byte) ([]common.LogEntry, error) {
	var inbound []inboundEntry
	if err := json.Unmarshal(body, &inbound); err != nil {
		var single inboundEntry
		if err := json.Unmarshal(body, &single); err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		inbound = []inboundEntry{single}
	}

	entries := make([]common.LogEntry, 0, len(inbound))
	for _, in := range inbound {
		if in.Text == "" {
			continue
		}
		role := common.Role(in.Role)
		if role != common.RoleUser && role != common.RoleAssistant && role != common.RoleSystem {
			return nil, fmt.Errorf("unknown role %q", in.Role)
		}

		id := in.ID
		if id == "" {
			var err error
			if id, err = gonanoid.New(); err != nil {
				return nil, err
			}
		}
		ts := in.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		entries = append(entries, common.LogEntry{
			ID:        id,
			Text:      in.Text,
			Timestamp: ts,
			Role:      role,
			Source:    in.Source,
		})
	}
	return entries, nil
}
