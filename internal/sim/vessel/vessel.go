package vessel

import (
	"sort"
	"strconv"
	"strings"
)

type Situation string

const (
	Prelaunch  Situation = "PRELAUNCH"
	Landed     Situation = "LANDED"
	Splashed   Situation = "SPLASHED"
	Flying     Situation = "FLYING"
	SubOrbital Situation = "SUB_ORBITAL"
	Orbiting   Situation = "ORBITING"
	Escaping   Situation = "ESCAPING"
	Docked     Situation = "DOCKED"
)

// Grounded reports whether the vessel is sitting on a surface.
func (s Situation) Grounded() bool {
	return s == Prelaunch || s == Landed || s == Splashed
}

// Ascending is the pair of situations that follow lift-off.
func (s Situation) Ascending() bool {
	return s == Flying || s == SubOrbital
}

type Vessel struct {
	ID        string             `json:"id"`
	Name      string             `json:"name,omitempty"`
	Body      string             `json:"body"`
	Situation Situation          `json:"situation"`
	Altitude  float64            `json:"altitude"`
	Parts     []string           `json:"parts,omitempty"`
	Payloads  []*PayloadInstance `json:"payloads,omitempty"`
}

// HasPart reports whether a part with the given name is aboard.
func (v *Vessel) HasPart(name string) bool {
	if v == nil {
		return false
	}
	for _, p := range v.Parts {
		if p == name {
			return true
		}
	}
	return false
}

// PayloadsOf returns the payload instances of a given experiment type in part order.
func (v *Vessel) PayloadsOf(typeID string) []*PayloadInstance {
	if v == nil {
		return nil
	}
	var out []*PayloadInstance
	for _, p := range v.Payloads {
		if p != nil && p.TypeID == typeID {
			out = append(out, p)
		}
	}
	return out
}

func (v *Vessel) Payload(partID string) *PayloadInstance {
	if v == nil {
		return nil
	}
	for _, p := range v.Payloads {
		if p != nil && p.PartID == partID {
			return p
		}
	}
	return nil
}

// Merge copies host-owned fields from next while keeping payload state the
// service tracks (timestamps, pools, data) for parts that are still aboard.
func (v *Vessel) Merge(next Vessel) {
	v.Name = next.Name
	v.Body = next.Body
	v.Situation = next.Situation
	v.Altitude = next.Altitude
	v.Parts = append(v.Parts[:0], next.Parts...)

	kept := make([]*PayloadInstance, 0, len(next.Payloads))
	for _, np := range next.Payloads {
		if np == nil || np.PartID == "" {
			continue
		}
		if cur := v.Payload(np.PartID); cur != nil && cur.TypeID == np.TypeID {
			cur.Inoperable = np.Inoperable
			kept = append(kept, cur)
			continue
		}
		kept = append(kept, np.clone())
	}
	v.Payloads = kept
}

// Snapshot captures payload state the way a recovery report carries it:
// timestamps are serialized as strings.
func (v *Vessel) Snapshot() Snapshot {
	s := Snapshot{VesselID: v.ID}
	for _, p := range v.Payloads {
		if p == nil {
			continue
		}
		s.Payloads = append(s.Payloads, RecoveredPayload{
			PartID:    p.PartID,
			TypeID:    p.TypeID,
			Launched:  strconv.FormatFloat(p.LaunchedAt, 'f', -1, 64),
			Completed: strconv.FormatFloat(p.CompletedAt, 'f', -1, 64),
			Data:      append([]string(nil), p.Data...),
		})
	}
	return s
}

// Snapshot is the persisted form of a vessel's payloads as delivered on recovery.
type Snapshot struct {
	VesselID string             `json:"vessel_id"`
	Payloads []RecoveredPayload `json:"payloads"`
}

type RecoveredPayload struct {
	PartID    string   `json:"part_id,omitempty"`
	TypeID    string   `json:"type_id"`
	Launched  string   `json:"launched"`
	Completed string   `json:"completed"`
	Data      []string `json:"data,omitempty"`
}

// Times parses the stored timestamps. Either value failing to parse is an error.
func (r RecoveredPayload) Times() (launched, completed float64, err error) {
	launched, err = strconv.ParseFloat(strings.TrimSpace(r.Launched), 64)
	if err != nil {
		return 0, 0, err
	}
	completed, err = strconv.ParseFloat(strings.TrimSpace(r.Completed), 64)
	if err != nil {
		return 0, 0, err
	}
	return launched, completed, nil
}

// Fleet is the set of vessels known to the service, keyed by id.
type Fleet struct {
	byID map[string]*Vessel
}

func NewFleet() *Fleet { return &Fleet{byID: map[string]*Vessel{}} }

func (f *Fleet) Get(id string) *Vessel { return f.byID[id] }

// Upsert inserts v or merges it into the existing vessel with the same id.
// Payloads are copied; the fleet never mutates the caller's values.
func (f *Fleet) Upsert(v Vessel) *Vessel {
	if cur, ok := f.byID[v.ID]; ok {
		cur.Merge(v)
		return cur
	}
	nv := v
	nv.Parts = append([]string(nil), v.Parts...)
	nv.Payloads = nil
	for _, p := range v.Payloads {
		if p != nil && p.PartID != "" {
			nv.Payloads = append(nv.Payloads, p.clone())
		}
	}
	f.byID[v.ID] = &nv
	return &nv
}

func (f *Fleet) Remove(id string) { delete(f.byID, id) }

func (f *Fleet) Len() int { return len(f.byID) }

// All returns vessels sorted by id.
func (f *Fleet) All() []*Vessel {
	ids := make([]string, 0, len(f.byID))
	for id := range f.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*Vessel, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.byID[id])
	}
	return out
}
