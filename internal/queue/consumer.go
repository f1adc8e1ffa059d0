package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// MessageHandler processes one message. A nil return acks it; an error
// naks it for redelivery.
type MessageHandler func(ctx context.Context, msg jetstream.Msg) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeTagRequests starts workerCount goroutines applying tag requests
// from the TAGS work queue. A request is given up after five deliveries.
func (c *Consumer) ConsumeTagRequests(ctx context.Context, consumerName string, handler MessageHandler, workerCount int) error {
	return c.consume(ctx, TagsStreamName, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		FilterSubject: TagsSubjectBase + ".>",
	}, handler, workerCount)
}

// ConsumeMatches delivers match events published after the consumer was
// created, for fan-out to WebSocket clients.
func (c *Consumer) ConsumeMatches(ctx context.Context, consumerName string, handler MessageHandler) error {
	return c.consume(ctx, MatchesStreamName, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: MatchesSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	}, handler, 1)
}

// consume binds a durable consumer on streamName and feeds its messages to
// workers goroutines until ctx is cancelled.
func (c *Consumer) consume(ctx context.Context, streamName string, cfg jetstream.ConsumerConfig, handler MessageHandler, workers int) error {
	if workers < 1 {
		workers = 1
	}

	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", streamName, err)
	}
	cons, err := stream.CreateOrUpdateConsumer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", cfg.Name, err)
	}

	msgCh := make(chan jetstream.Msg, workers*2)
	go fetchLoop(ctx, cons, cfg.Name, workers, msgCh)

	for i := 0; i < workers; i++ {
		go func(worker int) {
			for msg := range msgCh {
				if err := handler(ctx, msg); err != nil {
					slog.Error("handle message", "consumer", cfg.Name, "worker", worker, "subject", msg.Subject(), "error", err)
					_ = msg.Nak()
					continue
				}
				_ = msg.Ack()
			}
		}(i)
	}

	slog.Info("consumer started", "stream", streamName, "consumer", cfg.Name, "workers", workers)
	return nil
}

// fetchLoop pulls batches into msgCh and closes it when ctx ends.
func fetchLoop(ctx context.Context, cons jetstream.Consumer, name string, batch int, msgCh chan<- jetstream.Msg) {
	defer close(msgCh)
	for ctx.Err() == nil {
		msgs, err := cons.Fetch(batch, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("fetch messages", "consumer", name, "error", err)
			time.Sleep(time.Second)
			continue
		}

		for msg := range msgs.Messages() {
			select {
			case msgCh <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Consumer) Close() {
	c.nc.Close()
}
