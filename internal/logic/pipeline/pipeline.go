package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/image/draw"

	"github.com/kelter-antunes/chromara/internal/debug"
	"github.com/kelter-antunes/chromara/internal/metrics"
)

// ErrDecodeFailed marks input that is not a decodable JPEG. Process
// returns it together with the untouched input.
var ErrDecodeFailed = errors.New("decode failed")

// DefaultQuality is the JPEG quality of processed captures.
const DefaultQuality = 90

var tracer = otel.Tracer("github.com/kelter-antunes/chromara/internal/logic/pipeline")

// Pipeline turns a captured JPEG into the stylized JPEG:
// decode -> grade -> halation -> encode.
type Pipeline struct {
	Grade    Grade
	Halation Halation
	Quality  int
}

// New returns a pipeline with the default look.
func New() *Pipeline {
	return &Pipeline{
		Grade:    DefaultGrade,
		Halation: DefaultHalation,
		Quality:  DefaultQuality,
	}
}

// Process runs every stage on data and returns the encoded result.
//
// When data cannot be decoded, Process returns data itself together with
// an error wrapping ErrDecodeFailed; callers persist the original.
func (p *Pipeline) Process(ctx context.Context, data []byte) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Process")
	defer span.End()
	start := time.Now()

	img, err := Decode(data)
	if err != nil {
		metrics.DecodeFallbacks.Inc()
		span.RecordError(err)
		debug.Info("Pipeline: %v, keeping original (%d bytes)", err, len(data))
		return data, err
	}
	b := img.Bounds()
	span.SetAttributes(attribute.Int("width", b.Dx()), attribute.Int("height", b.Dy()))
	debug.Verbose("Pipeline: decoded %dx%d", b.Dx(), b.Dy())

	graded := p.Grade.Apply(img)
	debug.Verbose("Pipeline: graded (saturation=%.2f contrast=%.2f offset=%.0f)",
		p.Grade.Saturation, p.Grade.Contrast, p.Grade.Offset)

	composite, err := p.Halation.Apply(ctx, graded)
	if err != nil {
		return nil, fmt.Errorf("halation: %w", err)
	}
	debug.Verbose("Pipeline: halation radius=%d opacity=%d", p.Halation.Radius, p.Halation.Opacity)

	out, err := Encode(composite, p.Quality)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	elapsed := time.Since(start)
	metrics.PipelineSeconds.Observe(elapsed.Seconds())
	debug.Live("Pipeline: %d -> %d bytes in %v", len(data), len(out), elapsed.Round(time.Millisecond))
	return out, nil
}

// Decode parses a JPEG into a non-premultiplied RGBA buffer at origin.
func Decode(data []byte) (*image.NRGBA, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrDecodeFailed)
	}
	src, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst, nil
}

// Encode compresses img as JPEG at quality (1-100).
func Encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
