package uploader

import (
	"errors"
	"fmt"
)

// Reason classifies a failed upload.
type Reason string

const (
	ReasonTimeout     Reason = "timeout"
	ReasonTransport   Reason = "transport"
	ReasonStatus      Reason = "status"
	ReasonCircuitOpen Reason = "circuit_open"
	ReasonIdentity    Reason = "identity"
)

// Error is the failure result of Send.
type Error struct {
	Reason Reason
	// StatusCode is set when Reason == ReasonStatus.
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload %s (%d): %v", e.Reason, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upload %s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ReasonOf returns the failure reason carried by err, "" for nil and
// ReasonTransport for errors not produced by this package.
func ReasonOf(err error) Reason {
	if err == nil {
		return ""
	}
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Reason
	}
	return ReasonTransport
}
