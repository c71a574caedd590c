// Package objective tracks the three ordered stages of a station science
// contract: launch a new pod, complete the experiment at the target, and
// recover it at home.
package objective

import (
	"stationscience.dev/internal/sim/science"
	"stationscience.dev/internal/sim/vessel"
)

type Stage int

const (
	Launched Stage = iota + 1
	InPlace
	Recovered
)

func (s Stage) String() string {
	switch s {
	case Launched:
		return "LAUNCHED"
	case InPlace:
		return "IN_PLACE"
	case Recovered:
		return "RECOVERED"
	}
	return "UNKNOWN"
}

type Transition struct {
	Stage Stage
	At    float64
	// Terminal is set on the single transition that completes the objective.
	Terminal bool
}

// Machine is the objective state of one accepted contract. Stage flags only
// move from false to true, and stamps keep
// AcceptedAt <= LaunchedAt <= CompletedAt <= RecoveredAt.
type Machine struct {
	PayloadType string
	Location    string
	Home        string

	AcceptedAt  float64
	LaunchedAt  float64
	CompletedAt float64
	RecoveredAt float64

	IsLaunched  bool
	IsInPlace   bool
	IsRecovered bool
}

func New(payloadType, location, home string, acceptedAt float64) *Machine {
	return &Machine{PayloadType: payloadType, Location: location, Home: home, AcceptedAt: acceptedAt}
}

func (m *Machine) Done() bool { return m.IsRecovered }

// Stages returns the completion flags in order.
func (m *Machine) Stages() [3]bool { return [3]bool{m.IsLaunched, m.IsInPlace, m.IsRecovered} }

func (m *Machine) stampPayloads(at float64, v *vessel.Vessel) {
	for _, p := range v.PayloadsOf(m.PayloadType) {
		if p.LaunchedAt == 0 {
			p.LaunchedAt = at
		}
	}
}

// HandleSituationChange stamps new pods on a home-world lift-off and checks
// the launch stage.
func (m *Machine) HandleSituationChange(at float64, v *vessel.Vessel, from, to vessel.Situation) []Transition {
	if v == nil || m.IsRecovered {
		return nil
	}
	if !(from == vessel.Landed || from == vessel.Prelaunch) || !to.Ascending() {
		return nil
	}
	if v.Body != m.Home {
		return nil
	}
	m.stampPayloads(at, v)
	if at < m.AcceptedAt {
		return nil
	}
	return m.checkLaunched([]*vessel.Vessel{v})
}

// HandleLaunch stamps pods on the launched vessel.
func (m *Machine) HandleLaunch(at float64, v *vessel.Vessel) []Transition {
	if v == nil || m.IsRecovered || v.Body != m.Home {
		return nil
	}
	m.stampPayloads(at, v)
	return m.checkLaunched([]*vessel.Vessel{v})
}

func (m *Machine) checkLaunched(vs []*vessel.Vessel) []Transition {
	if m.IsLaunched {
		return nil
	}
	for _, v := range vs {
		for _, p := range v.PayloadsOf(m.PayloadType) {
			if p.LaunchedAt > 0 && p.LaunchedAt >= m.AcceptedAt {
				m.IsLaunched = true
				m.LaunchedAt = p.LaunchedAt
				return []Transition{{Stage: Launched, At: m.LaunchedAt}}
			}
		}
	}
	return nil
}

// Reconcile re-evaluates the launch and in-place stages against current
// payload state. The in-place stage is never set before the launch stage.
func (m *Machine) Reconcile(vs []*vessel.Vessel) []Transition {
	if m.IsRecovered {
		return nil
	}
	out := m.checkLaunched(vs)
	if !m.IsLaunched || m.IsInPlace {
		return out
	}
	for _, v := range vs {
		for _, p := range v.PayloadsOf(m.PayloadType) {
			if p.CompletedAt == 0 || p.CompletedAt < m.AcceptedAt || p.CompletedAt <= p.LaunchedAt || p.CompletedAt < m.LaunchedAt {
				continue
			}
			if !science.AnyMatches(p.Data, m.Location) {
				continue
			}
			m.IsInPlace = true
			m.CompletedAt = p.CompletedAt
			return append(out, Transition{Stage: InPlace, At: m.CompletedAt})
		}
	}
	return out
}

// HandleRecovery checks a recovered vessel's payload report. A qualifying
// payload fills any earlier stage from its own timestamps and completes the
// objective. Payloads whose timestamps do not parse are skipped.
func (m *Machine) HandleRecovery(at float64, snap vessel.Snapshot) []Transition {
	if m.IsRecovered {
		return nil
	}
	for _, rp := range snap.Payloads {
		if rp.TypeID != m.PayloadType {
			continue
		}
		launched, completed, err := rp.Times()
		if err != nil {
			continue
		}
		if launched < m.AcceptedAt || completed < launched {
			continue
		}
		if !science.AnyMatches(rp.Data, m.Location) {
			continue
		}

		var out []Transition
		if !m.IsLaunched {
			m.IsLaunched = true
			m.LaunchedAt = launched
			out = append(out, Transition{Stage: Launched, At: m.LaunchedAt})
		}
		if !m.IsInPlace {
			m.IsInPlace = true
			m.CompletedAt = max(completed, m.LaunchedAt)
			out = append(out, Transition{Stage: InPlace, At: m.CompletedAt})
		}
		m.IsRecovered = true
		m.RecoveredAt = max(at, m.CompletedAt)
		return append(out, Transition{Stage: Recovered, At: m.RecoveredAt, Terminal: true})
	}
	return nil
}

func LaunchTitle(payloadTitle string) string {
	if payloadTitle == "" {
		return "Launch new experiment pod"
	}
	return "Launch new " + payloadTitle
}

func InPlaceTitle(body string) string {
	if body == "" {
		return "Complete in orbit"
	}
	return "Complete in orbit around " + body
}

func RecoverTitle(home string) string { return "Recover at " + home }

func Title(payloadTitle, body string) string {
	return "Complete " + payloadTitle + " in orbit around " + body
}

func Notes(payloadTitle, body, home string) string {
	return "Launch a new experiment part (" + payloadTitle + "), bring it into orbit around " + body +
		", complete the experiment, return it (with results inside) to " + home + " and recover it"
}
