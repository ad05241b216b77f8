package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kelter-antunes/chromara/internal/debug"
	"github.com/kelter-antunes/chromara/internal/logic/session"
)

// Shooter takes one photo. plugin.Plugin implements it.
type Shooter interface {
	CapturePhoto(ctx context.Context) (session.Result, error)
}

// Sequence contains high-level logic for repeated captures
// (bursts, timelapse).
type Sequence struct {
	shooter Shooter
}

func NewSequence(s Shooter) *Sequence {
	return &Sequence{shooter: s}
}

// BurstParams defines a burst.
type BurstParams struct {
	Count    int           // number of photos
	Interval time.Duration // delay between the end of one capture and the next
	// ContinueOnError keeps shooting after a failed capture.
	ContinueOnError bool
}

// Shot is the outcome of one capture of a burst.
type Shot struct {
	Index  int
	Result session.Result
	Err    error
}

// RunBurst takes p.Count photos. It stops at the first failure unless
// p.ContinueOnError is set, and returns every attempted shot.
func (s *Sequence) RunBurst(ctx context.Context, p BurstParams) ([]Shot, error) {
	if p.Count < 1 {
		return nil, fmt.Errorf("burst count must be positive, got %d", p.Count)
	}
	debug.Section("Burst")
	debug.Value("count", p.Count)
	debug.Value("interval", p.Interval)

	var (
		shots []Shot
		errs  []error
	)
	for i := 0; i < p.Count; i++ {
		select {
		case <-ctx.Done():
			return shots, ctx.Err()
		default:
		}

		if i > 0 && p.Interval > 0 {
			select {
			case <-time.After(p.Interval):
			case <-ctx.Done():
				return shots, ctx.Err()
			}
		}

		debug.Step(i+1, "capture")
		res, err := s.shooter.CapturePhoto(ctx)
		shots = append(shots, Shot{Index: i, Result: res, Err: err})
		if err != nil {
			err = fmt.Errorf("shot %d/%d: %w", i+1, p.Count, err)
			if !p.ContinueOnError {
				return shots, err
			}
			debug.Error(err)
			errs = append(errs, err)
			continue
		}
		debug.Live("Shot %d/%d: %s", i+1, p.Count, res.JPEG.URI)
	}
	return shots, errors.Join(errs...)
}
