package station

import (
	"errors"

	"stationscience.dev/internal/sim/events"
)

var (
	ErrBusy          = errors.New("event queue full")
	errUnknownVessel = errors.New("unknown vessel")
	errUnknownPart   = errors.New("unknown experiment part")
)

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// TickLogEntry records the events applied on one tick and the state digest
// after the tick. Ticks without events are not logged.
type TickLogEntry struct {
	Tick   uint64         `json:"tick"`
	Time   float64        `json:"time"`
	Events []events.Event `json:"events,omitempty"`
	Digest string         `json:"digest"`
}

type AuditEntry struct {
	Tick    uint64         `json:"tick"`
	Time    float64        `json:"time"`
	Actor   string         `json:"actor"`
	Action  string         `json:"action"` // e.g. "CONTRACT_ACCEPT"
	Subject string         `json:"subject,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}
