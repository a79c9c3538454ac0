package adaptation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ai-cycle-planner/internal/shared"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	log "github.com/sirupsen/logrus"
)

// ConsumerConfig names the JetStream stream and durable consumer for domain events.
// MaxDeliver bounds redelivery of events that keep failing.
type ConsumerConfig struct {
	Stream     string
	Subject    string
	Durable    string
	MaxDeliver int
	AckWait    time.Duration
}

// EventHandler handles one decoded event.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev Event, eventKey string) (Result, error)
}

// fetcher is the part of a jetstream.Consumer the fetch loop uses.
type fetcher interface {
	Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error)
}

// Consumer pulls domain events from JetStream and hands them to the adapter.
type Consumer struct {
	js      jetstream.JetStream
	cfg     ConsumerConfig
	handler EventHandler

	// retryDelay is the pause after a failed fetch.
	retryDelay time.Duration
}

// NewConsumer creates a Consumer on an existing NATS connection.
func NewConsumer(nc *nats.Conn, cfg ConsumerConfig, handler EventHandler) (*Consumer, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = 5
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 3 * time.Minute
	}
	return &Consumer{js: js, cfg: cfg, handler: handler, retryDelay: 2 * time.Second}, nil
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	stream, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     c.cfg.Stream,
		Subjects: []string{c.cfg.Subject},
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", c.cfg.Stream, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       c.cfg.Durable,
		FilterSubject: c.cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.cfg.AckWait,
		MaxDeliver:    c.cfg.MaxDeliver,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", c.cfg.Durable, err)
	}

	log.WithFields(log.Fields{
		"stream":   c.cfg.Stream,
		"subject":  c.cfg.Subject,
		"consumer": c.cfg.Durable,
	}).Info("Adaptation consumer started")

	c.consume(ctx, consumer)
	return nil
}

// consume fetches and handles messages one at a time until ctx is cancelled.
// A failed fetch pauses for retryDelay before the next attempt.
func (c *Consumer) consume(ctx context.Context, f fetcher) {
	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := f.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warnf("Fetch failed, retrying in %s: %v", c.retryDelay, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryDelay):
			}
			continue
		}

		for msg := range msgs.Messages() {
			c.handleMessage(ctx, msg)
		}

		if err := msgs.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, nats.ErrTimeout) {
			log.Warnf("Message fetch error: %v", err)
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg jetstream.Msg) {
	var ev Event
	if err := json.Unmarshal(msg.Data(), &ev); err != nil {
		log.WithField("subject", msg.Subject()).Errorf("Dropping undecodable event: %v", err)
		if err := msg.Term(); err != nil {
			log.Warnf("Failed to terminate message: %v", err)
		}
		return
	}

	key := eventKey(msg, ev)
	fields := log.Fields{
		"user_id":   ev.UserID,
		"table":     ev.Table,
		"event":     ev.EventType,
		"event_key": key,
	}

	result, err := c.handler.HandleEvent(ctx, ev, key)
	if err != nil {
		if shared.Is(err, shared.KindValidation) && ev.UserID == "" {
			log.WithFields(fields).Errorf("Dropping invalid event: %v", err)
			if err := msg.Term(); err != nil {
				log.WithFields(fields).Warnf("Failed to terminate message: %v", err)
			}
			return
		}
		log.WithFields(fields).Errorf("Adaptation failed, will retry: %v", err)
		if err := msg.NakWithDelay(30 * time.Second); err != nil {
			log.Warnf("Failed to nak message: %v", err)
		}
		return
	}

	switch {
	case result.Duplicate:
		log.WithFields(fields).Info("Duplicate event ignored")
	case result.Adapted:
		log.WithFields(fields).WithField("reason", result.Decision.Reason).Info("Event adapted plan")
	}

	if err := msg.Ack(); err != nil {
		log.WithFields(fields).Warnf("Failed to ack message: %v", err)
	}
}

// eventKey identifies an event across redeliveries: the publisher's
// Nats-Msg-Id header, the event id, or the stream sequence.
func eventKey(msg jetstream.Msg, ev Event) string {
	if h := msg.Headers(); h != nil {
		if id := h.Get(jetstream.MsgIDHeader); id != "" {
			return id
		}
	}
	if ev.ID != "" {
		return ev.ID
	}
	if md, err := msg.Metadata(); err == nil {
		return fmt.Sprintf("%s:%d", md.Stream, md.Sequence.Stream)
	}
	return ""
}
