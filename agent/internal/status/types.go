package status

import (
	"time"

	"github.com/fieldtrack/fieldtrack/agent/internal/identity"
	"github.com/fieldtrack/fieldtrack/agent/internal/shipper"
)

// StatusResponse is the payload for GET /api/v1/status.
type StatusResponse struct {
	Buffered     int                  `json:"buffered_records"`
	SpoolEntries int                  `json:"spool_entries"`
	SpoolError   string               `json:"spool_error,omitempty"`
	Shipper      shipper.Status       `json:"shipper"`
	LastSweep    *SweepResponse       `json:"last_sweep,omitempty"`
	Identity     *identity.CertStatus `json:"identity,omitempty"`
	GeneratedAt  time.Time            `json:"generated_at"`
}

// SweepResponse describes the most recent replay sweep.
type SweepResponse struct {
	Sent      int       `json:"sent"`
	Remaining int       `json:"remaining"`
	Stopped   string    `json:"stopped,omitempty"`
	At        time.Time `json:"at"`
}

type errorResponse struct {
	Error string `json:"error"`
}
