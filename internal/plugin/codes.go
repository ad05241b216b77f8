package plugin

import (
	"context"
	"errors"

	"github.com/kelter-antunes/chromara/internal/auth"
	"github.com/kelter-antunes/chromara/internal/hw/camera"
	"github.com/kelter-antunes/chromara/internal/logic/session"
	"github.com/kelter-antunes/chromara/internal/storage"
)

// Result codes reported to the host.
const (
	CodeOK                  = "OK"
	CodePermissionDenied    = "PERMISSION_DENIED"
	CodeDeviceUnavailable   = "DEVICE_UNAVAILABLE"
	CodeDeviceLost          = "DEVICE_LOST"
	CodeConfigurationFailed = "CONFIGURATION_FAILED"
	CodeCaptureNotReady     = "CAPTURE_NOT_READY"
	CodeCaptureInProgress   = "CAPTURE_IN_PROGRESS"
	CodeCaptureFailed       = "CAPTURE_FAILED"
	CodeHardwareTimeout     = "HARDWARE_TIMEOUT"
	CodeSessionClosed       = "SESSION_CLOSED"
	CodeStorageUnavailable  = "STORAGE_UNAVAILABLE"
	CodeWriteFailed         = "WRITE_FAILED"
	CodeBusy                = "BUSY"
	CodeInvalidAction       = "INVALID_ACTION"
	CodeCancelled           = "CANCELLED"
	CodeInternal            = "INTERNAL"
)

var codes = []struct {
	err  error
	code string
}{
	{auth.ErrPermissionDenied, CodePermissionDenied},
	{camera.ErrDeviceUnavailable, CodeDeviceUnavailable},
	{session.ErrDeviceLost, CodeDeviceLost},
	{session.ErrConfigurationFailed, CodeConfigurationFailed},
	{session.ErrCaptureNotReady, CodeCaptureNotReady},
	{session.ErrCaptureInProgress, CodeCaptureInProgress},
	{session.ErrCaptureFailed, CodeCaptureFailed},
	{session.ErrHardwareTimeout, CodeHardwareTimeout},
	{session.ErrSessionClosed, CodeSessionClosed},
	{session.ErrSessionActive, CodeBusy},
	{storage.ErrStorageUnavailable, CodeStorageUnavailable},
	{storage.ErrWriteFailed, CodeWriteFailed},
	{ErrBusy, CodeBusy},
	{ErrDestroyed, CodeSessionClosed},
	{context.Canceled, CodeCancelled},
	{context.DeadlineExceeded, CodeCancelled},
}

// Code maps err to a stable result code.
func Code(err error) string {
	if err == nil {
		return CodeOK
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
