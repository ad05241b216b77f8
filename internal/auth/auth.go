// Package auth models the runtime grants the capture core needs before
// touching the camera or writing to shared storage.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kelter-antunes/chromara/internal/debug"
)

// ErrPermissionDenied is returned when a required capability is missing.
var ErrPermissionDenied = errors.New("permission denied")

// Capability is one runtime grant.
type Capability string

const (
	CameraAccess Capability = "camera"
	StorageWrite Capability = "storage_write"
)

// Required lists the grants needed to open a session.
var Required = []Capability{CameraAccess, StorageWrite}

// ParseCapability maps a config name to a Capability.
func ParseCapability(name string) (Capability, error) {
	switch c := Capability(name); c {
	case CameraAccess, StorageWrite:
		return c, nil
	}
	return "", fmt.Errorf("unknown capability %q", name)
}

// Authorizer answers and requests grants.
type Authorizer interface {
	// Granted reports whether every capability is currently held.
	Granted(caps ...Capability) bool
	// Request asks the host for the missing capabilities and reports
	// whether all of them are held afterwards.
	Request(ctx context.Context, caps ...Capability) (bool, error)
}

// Require returns ErrPermissionDenied naming the first missing capability.
func Require(a Authorizer, caps ...Capability) error {
	for _, c := range caps {
		if !a.Granted(c) {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, c)
		}
	}
	return nil
}

// Static is an Authorizer backed by an in-memory grant set. Request grants
// everything asked for when autoGrant is set, which stands in for the user
// accepting a prompt.
type Static struct {
	mu        sync.Mutex
	granted   map[Capability]bool
	autoGrant bool
	requests  int
}

// NewStatic creates an authorizer holding granted.
func NewStatic(autoGrant bool, granted ...Capability) *Static {
	s := &Static{granted: make(map[Capability]bool), autoGrant: autoGrant}
	for _, c := range granted {
		s.granted[c] = true
	}
	return s
}

// Granted implements Authorizer.
func (s *Static) Granted(caps ...Capability) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range caps {
		if !s.granted[c] {
			return false
		}
	}
	return true
}

// Request implements Authorizer.
func (s *Static) Request(ctx context.Context, caps ...Capability) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	ok := true
	for _, c := range caps {
		if s.granted[c] {
			continue
		}
		if s.autoGrant {
			s.granted[c] = true
			debug.Verbose("Auth: granted %s", c)
			continue
		}
		debug.Verbose("Auth: %s refused", c)
		ok = false
	}
	return ok, nil
}

// Grant adds capabilities.
func (s *Static) Grant(caps ...Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range caps {
		s.granted[c] = true
	}
}

// Revoke removes capabilities.
func (s *Static) Revoke(caps ...Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range caps {
		delete(s.granted, c)
	}
}

// Requests returns how many times Request was called.
func (s *Static) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}
