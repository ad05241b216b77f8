// Package storage persists captured assets under a Pictures/ tree and
// optionally indexes them in a media catalog.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStorageUnavailable is returned when the storage root cannot be
	// reached or created.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrWriteFailed is returned when an asset could not be written or indexed.
	ErrWriteFailed = errors.New("write failed")
)

// Kind is the mime category of an asset.
type Kind int

const (
	KindJPEG Kind = iota
	KindDNG
)

// Ext returns the file extension without the dot.
func (k Kind) Ext() string {
	if k == KindDNG {
		return "dng"
	}
	return "jpg"
}

// MIME returns the mime type stored in the media index.
func (k Kind) MIME() string {
	if k == KindDNG {
		return "image/x-adobe-dng"
	}
	return "image/jpeg"
}

func (k Kind) String() string {
	if k == KindDNG {
		return "dng"
	}
	return "jpeg"
}

// TimestampLayout formats the capture time in file names (yyyyMMdd_HHmmss).
const TimestampLayout = "20060102_150405"

// FileName returns "<prefix>_<yyyyMMdd_HHmmss>.<ext>".
func FileName(prefix string, k Kind, at time.Time) string {
	return prefix + "_" + at.Format(TimestampLayout) + "." + k.Ext()
}

// Asset is one encoded capture ready to persist.
type Asset struct {
	Data      []byte
	Kind      Kind
	Subfolder string // logical folder under Pictures/, e.g. "Chromara/RAW"
	TakenAt   time.Time
}

// Reference identifies a persisted asset.
type Reference struct {
	URI          string // stable reference (content:// or file://)
	Name         string // file name
	RelativePath string // e.g. "Pictures/Chromara/"
	Kind         Kind
}

// Sink accepts assets and returns a durable reference. Saving twice
// within the same second overwrites the earlier file.
type Sink interface {
	Save(ctx context.Context, a Asset) (Reference, error)
}
