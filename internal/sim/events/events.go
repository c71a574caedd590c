// Package events carries host notifications into the station loop.
package events

import (
	"encoding/json"
	"fmt"

	"stationscience.dev/internal/sim/vessel"
)

type Kind string

const (
	// Vehicle lifecycle.
	Launch          Kind = "LAUNCH"
	SituationChange Kind = "SITUATION_CHANGE"
	Recovered       Kind = "RECOVERED"
	VesselState     Kind = "VESSEL_STATE"

	// Experiment operation.
	Produce          Kind = "PRODUCE"
	StartExperiment  Kind = "START_EXPERIMENT"
	DeployExperiment Kind = "DEPLOY_EXPERIMENT"

	// Progression.
	Unlock Kind = "UNLOCK"
	Reach  Kind = "REACH"

	// Contract commands.
	Accept  Kind = "ACCEPT"
	Decline Kind = "DECLINE"
	Cancel  Kind = "CANCEL"
)

var knownKinds = map[Kind]struct{}{
	Launch: {}, SituationChange: {}, Recovered: {}, VesselState: {},
	Produce: {}, StartExperiment: {}, DeployExperiment: {},
	Unlock: {}, Reach: {},
	Accept: {}, Decline: {}, Cancel: {},
}

func IsKnownKind(k Kind) bool {
	_, ok := knownKinds[k]
	return ok
}

// Event is a single host notification. Which fields are set depends on Kind.
type Event struct {
	Kind Kind    `json:"kind"`
	Time float64 `json:"time"`

	VesselID string           `json:"vessel_id,omitempty"`
	From     vessel.Situation `json:"from,omitempty"`
	To       vessel.Situation `json:"to,omitempty"`
	Body     string           `json:"body,omitempty"`

	Vessel   *vessel.Vessel   `json:"vessel,omitempty"`
	Snapshot *vessel.Snapshot `json:"snapshot,omitempty"`

	PartID   string          `json:"part_id,omitempty"`
	Resource vessel.Resource `json:"resource,omitempty"`
	Amount   float64         `json:"amount,omitempty"`

	// Name is the unlocked part, or the body reached. Reaching the home body
	// with Orbit set marks the home orbit milestone.
	Name  string `json:"name,omitempty"`
	Orbit bool   `json:"orbit,omitempty"`

	ContractID string `json:"contract_id,omitempty"`
}

// Decode parses and validates one event.
func Decode(b []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return ev, err
	}
	return ev, ev.Validate()
}

func (ev Event) Validate() error {
	if !IsKnownKind(ev.Kind) {
		return fmt.Errorf("unknown event kind: %q", ev.Kind)
	}
	if ev.Time < 0 {
		return fmt.Errorf("%s: negative time", ev.Kind)
	}
	switch ev.Kind {
	case Launch, SituationChange:
		if ev.VesselID == "" {
			return fmt.Errorf("%s: missing vessel_id", ev.Kind)
		}
	case Recovered:
		if ev.Snapshot == nil {
			return fmt.Errorf("%s: missing snapshot", ev.Kind)
		}
	case VesselState:
		if ev.Vessel == nil || ev.Vessel.ID == "" {
			return fmt.Errorf("%s: missing vessel", ev.Kind)
		}
	case Produce, StartExperiment, DeployExperiment:
		if ev.VesselID == "" || ev.PartID == "" {
			return fmt.Errorf("%s: missing vessel_id/part_id", ev.Kind)
		}
	case Unlock, Reach:
		if ev.Name == "" {
			return fmt.Errorf("%s: missing name", ev.Kind)
		}
	case Accept, Decline, Cancel:
		if ev.ContractID == "" {
			return fmt.Errorf("%s: missing contract_id", ev.Kind)
		}
	}
	return nil
}

// Bus is a bounded queue of events. Producers never block; the station
// drains it between steps in arrival order.
type Bus struct {
	ch chan Event
}

func NewBus(size int) *Bus {
	if size <= 0 {
		size = 1024
	}
	return &Bus{ch: make(chan Event, size)}
}

// Publish enqueues ev and reports false when the bus is full.
func (b *Bus) Publish(ev Event) bool {
	select {
	case b.ch <- ev:
		return true
	default:
		return false
	}
}

// C exposes the receive side for select loops.
func (b *Bus) C() <-chan Event { return b.ch }

// Drain returns up to max queued events without blocking. max <= 0 drains everything queued.
func (b *Bus) Drain(max int) []Event {
	var out []Event
	for max <= 0 || len(out) < max {
		select {
		case ev := <-b.ch:
			out = append(out, ev)
		default:
			return out
		}
	}
	return out
}

func (b *Bus) Len() int { return len(b.ch) }
