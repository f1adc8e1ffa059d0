package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/wlockwood/lits/internal/models"
)

const (
	TagsStreamName     = "TAGS"
	TagsSubjectBase    = "tags"
	MatchesStreamName  = "MATCHES"
	MatchesSubjectBase = "matches"
)

// streams lists every stream the services rely on.
var streams = []jetstream.StreamConfig{
	{
		Name:        TagsStreamName,
		Subjects:    []string{TagsSubjectBase + ".>"},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxMsgs:     1000000,
		Storage:     jetstream.FileStorage,
		Duplicates:  10 * time.Minute,
		Description: "Keyword tag requests for the metadata writer",
	},
	{
		Name:        MatchesStreamName,
		Subjects:    []string{MatchesSubjectBase + ".>"},
		Retention:   jetstream.InterestPolicy,
		MaxAge:      24 * time.Hour,
		MaxMsgs:     1000000,
		Storage:     jetstream.FileStorage,
		Description: "Person matches persisted by scans",
	},
}

// Producer publishes tag requests and match events.
type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates or updates the streams. NATS may still be starting,
// so each stream is retried once a second for up to 30 attempts.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	const maxAttempts = 30

	for _, cfg := range streams {
		for attempt := 1; ; attempt++ {
			err := p.createStream(ctx, cfg)
			if err == nil {
				slog.Info("ensured NATS stream", "name", cfg.Name)
				break
			}
			if attempt == maxAttempts {
				return fmt.Errorf("create stream %s after %d attempts: %w", cfg.Name, maxAttempts, err)
			}
			slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
	return nil
}

func (p *Producer) createStream(ctx context.Context, cfg jetstream.StreamConfig) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := p.js.CreateOrUpdateStream(ctx, cfg)
	return err
}

// PublishTagRequest queues a keyword update for one image. The message id
// lets JetStream drop a repeat of the same request within the dedup window.
func (p *Producer) PublishTagRequest(ctx context.Context, req models.TagRequest) error {
	return p.publish(ctx, TagSubject(req.ImageID), req, jetstream.WithMsgID(tagMsgID(req)))
}

// PublishMatch announces the persisted matches of one image.
func (p *Producer) PublishMatch(ctx context.Context, ev models.MatchEvent) error {
	return p.publish(ctx, MatchSubject(ev.ImageID), ev)
}

func (p *Producer) publish(ctx context.Context, subject string, v any, opts ...jetstream.PublishOpt) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if _, err := p.js.Publish(ctx, subject, payload, opts...); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// PendingTags returns the number of tag requests not yet applied.
func (p *Producer) PendingTags(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, TagsStreamName)
	if err != nil {
		return 0, fmt.Errorf("get stream %s: %w", TagsStreamName, err)
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("stream info %s: %w", TagsStreamName, err)
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
