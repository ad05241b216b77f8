package storage

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kelter-antunes/chromara/internal/debug"
	"github.com/kelter-antunes/chromara/internal/metrics"
)

var tracer = otel.Tracer("github.com/kelter-antunes/chromara/internal/storage")

// Entry is one row of the media index.
type Entry struct {
	DisplayName  string
	MIMEType     string
	RelativePath string
	Size         int64
	TakenAt      time.Time
}

// Indexer records persisted files in a media catalog and returns their
// content reference.
type Indexer interface {
	Index(ctx context.Context, e Entry) (uri string, err error)
}

// Gallery writes assets with a FileSink and registers them with an
// Indexer, like a gallery's media store.
type Gallery struct {
	files *FileSink
	index Indexer
}

// NewGallery combines files and index. A nil index keeps file:// references.
func NewGallery(files *FileSink, index Indexer) *Gallery {
	return &Gallery{files: files, index: index}
}

// Save implements Sink.
func (g *Gallery) Save(ctx context.Context, a Asset) (ref Reference, err error) {
	ctx, span := tracer.Start(ctx, "storage.Save")
	defer span.End()
	span.SetAttributes(attribute.String("kind", a.Kind.String()), attribute.Int("bytes", len(a.Data)))
	defer func() {
		metrics.Persisted.WithLabelValues(a.Kind.String(), metrics.Result(err)).Inc()
		if err != nil {
			span.RecordError(err)
		}
	}()

	ref, err = g.files.Save(ctx, a)
	if err != nil {
		return Reference{}, err
	}
	if g.index == nil {
		debug.Persisted(a.Kind.String(), ref.Name, ref.URI)
		return ref, nil
	}

	uri, err := g.index.Index(ctx, Entry{
		DisplayName:  ref.Name,
		MIMEType:     a.Kind.MIME(),
		RelativePath: ref.RelativePath,
		Size:         int64(len(a.Data)),
		TakenAt:      a.TakenAt,
	})
	if err != nil {
		return Reference{}, fmt.Errorf("%w: index %s: %v", ErrWriteFailed, ref.Name, err)
	}
	ref.URI = uri
	debug.Persisted(a.Kind.String(), ref.Name, ref.URI)
	return ref, nil
}
