package unlock

import (
	"context"
	"errors"
	"fmt"
)

// Failure kinds. Match them with errors.Is on a returned *Error.
var (
	ErrDeviceID        = errors.New("device identity could not be acquired")
	ErrSNResolution    = errors.New("video serial number could not be resolved")
	ErrAccessGrant     = errors.New("access grant was refused")
	ErrManifestTimeout = errors.New("manifest did not become available")
	ErrLockConflict    = errors.New("video is locked to another device")
)

// lockConflictCode is the manifest error code for a stale device grant.
const lockConflictCode = 1007

// LockConflictError is the recoverable signal that triggers device rotation.
// It only reaches callers when rotation itself fails.
type LockConflictError struct {
	Code int
}

func (e *LockConflictError) Error() string {
	return fmt.Sprintf("lock conflict (code %d)", e.Code)
}

// Error is a failed negotiation. It records the last state reached.
type Error struct {
	Ref   string
	SN    string
	State State
	Kind  error // one of the Err* sentinels, nil for cancellation
	Cause error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("negotiate %q", e.Ref)
	if e.SN != "" {
		msg += fmt.Sprintf(" (sn %s)", e.SN)
	}
	msg += fmt.Sprintf(" failed at %s", e.State)
	if e.Kind != nil {
		msg += ": " + e.Kind.Error()
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Reason is a short message safe to return to API callers.
func (e *Error) Reason() string {
	switch {
	case errors.Is(e, ErrManifestTimeout):
		return "unable to resolve stream"
	case errors.Is(e, ErrSNResolution):
		return "could not find the video serial number"
	case errors.Is(e, ErrDeviceID):
		return "origin did not issue a device identity"
	case errors.Is(e, ErrAccessGrant):
		return "origin refused access to the video"
	case errors.Is(e, ErrLockConflict):
		return "video is locked by another device"
	case errors.Is(e, context.DeadlineExceeded):
		return "stream negotiation timed out"
	case errors.Is(e, context.Canceled):
		return "stream negotiation cancelled"
	default:
		return "stream negotiation failed"
	}
}
