package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wlockwood/lits/internal/config"
	"github.com/wlockwood/lits/internal/metadata"
	"github.com/wlockwood/lits/internal/models"
)

// SidecarTagger appends names to the image's XMP sidecar in place.
type SidecarTagger struct {
	writer *metadata.SidecarWriter
}

func NewSidecarTagger(writer *metadata.SidecarWriter) *SidecarTagger {
	return &SidecarTagger{writer: writer}
}

func (t *SidecarTagger) Tag(ctx context.Context, req models.TagRequest) error {
	added, err := t.writer.Append(ctx, req.Path, req.Names)
	if err != nil {
		return err
	}
	slog.Debug("keywords written", "path", req.Path, "added", added)
	return nil
}

// TagPublisher hands tag requests to the metadata writer service.
type TagPublisher interface {
	PublishTagRequest(ctx context.Context, req models.TagRequest) error
}

// QueueTagger defers keyword writes to cmd/tagger.
type QueueTagger struct {
	publisher TagPublisher
}

func NewQueueTagger(publisher TagPublisher) *QueueTagger {
	return &QueueTagger{publisher: publisher}
}

func (t *QueueTagger) Tag(ctx context.Context, req models.TagRequest) error {
	return t.publisher.PublishTagRequest(ctx, req)
}

// NewTagger returns the tagger for mode, or nil when tagging is off.
// publisher is only used in queue mode, writer only in sidecar mode.
func NewTagger(mode string, writer *metadata.SidecarWriter, publisher TagPublisher) (Tagger, error) {
	switch mode {
	case config.TaggingOff:
		return nil, nil
	case config.TaggingSidecar:
		if writer == nil {
			return nil, fmt.Errorf("tagging mode %q needs a sidecar writer", mode)
		}
		return NewSidecarTagger(writer), nil
	case config.TaggingQueue:
		if publisher == nil {
			return nil, fmt.Errorf("tagging mode %q needs a queue", mode)
		}
		return NewQueueTagger(publisher), nil
	default:
		return nil, fmt.Errorf("unknown tagging mode %q", mode)
	}
}
