package cms

import (
	"context"
	"log/slog"
)

type noopEvents struct{}

func (noopEvents) BlogSaved(context.Context, *Blog, bool) error         { return nil }
func (noopEvents) ResearchSaved(context.Context, *Research, bool) error { return nil }
func (noopEvents) ImageSaved(context.Context, *Image, bool) error       { return nil }
func (noopEvents) Deleted(context.Context, string, int64) error         { return nil }

// NewLoggingEventSink returns a sink that writes one Info record per
// content change.
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return loggingEvents{logger.With("component", "events")}
}

type loggingEvents struct {
	logger *slog.Logger
}

func (l loggingEvents) BlogSaved(ctx context.Context, b *Blog, created bool) error {
	l.logger.InfoContext(ctx, "blog saved", "id", b.ID, "slug", b.Slug, "status", b.Status, "created", created)
	return nil
}

func (l loggingEvents) ResearchSaved(ctx context.Context, r *Research, created bool) error {
	l.logger.InfoContext(ctx, "research saved", "id", r.ID, "slug", r.Slug, "status", r.Status, "created", created)
	return nil
}

func (l loggingEvents) ImageSaved(ctx context.Context, img *Image, created bool) error {
	l.logger.InfoContext(ctx, "image saved", "id", img.ID, "kind", img.Kind, "file", img.File, "created", created)
	return nil
}

func (l loggingEvents) Deleted(ctx context.Context, entity string, id int64) error {
	l.logger.InfoContext(ctx, "deleted", "entity", entity, "id", id)
	return nil
}
