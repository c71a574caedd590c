package experiment

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"stationscience.dev/internal/sim/catalogs"
	"stationscience.dev/internal/sim/science"
	"stationscience.dev/internal/sim/vessel"
)

var (
	ErrTooBoring        = errors.New("too boring here")
	ErrAlreadyFinalized = errors.New("experiment already finalized")
	ErrNotFinished      = errors.New("experiment not finished")
	ErrUnknownPayload   = errors.New("unknown payload type")
	ErrNoSubject        = errors.New("no science subject at this location")
)

// Message returns the display string for an engine error.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrTooBoring):
		return "Too boring here. Go to space!"
	case errors.Is(err, ErrAlreadyFinalized):
		return "Experiment already finalized."
	case errors.Is(err, ErrNotFinished):
		return "Experiment not finished yet!"
	case err == nil:
		return ""
	}
	return err.Error()
}

type NoticeKind string

const (
	NoticeStarted    NoticeKind = "STARTED"
	NoticeDeployed   NoticeKind = "DEPLOYED"
	NoticeRelocation NoticeKind = "MID_RUN_RELOCATION"
	NoticeDetached   NoticeKind = "DETACHED"
)

type Notice struct {
	Kind     NoticeKind
	VesselID string
	PartID   string
	Text     string
}

// Status reports what one UpdateStatus pass changed.
type Status struct {
	Notices []Notice
	// Ruined is set when a relocation emptied the pools.
	Ruined bool
	// Completed is set when CompletedAt was stamped during this pass.
	Completed bool
	// Reset is set when stored results were discarded.
	Reset bool
}

// Engine runs experiment parts: start, deploy, decay and periodic status.
type Engine struct {
	Payloads  catalogs.PayloadCatalog
	Locations catalogs.LocationCatalog
	// StationParts are the station modules that keep eurekas in a stable state.
	StationParts []string
}

func NewEngine(c *catalogs.Catalogs) *Engine {
	return &Engine{
		Payloads:     c.Payloads,
		Locations:    c.Locations,
		StationParts: []string{"StnSciLab", "StnSciCyclo", "StnSciZoo"},
	}
}

func (e *Engine) payloadType(p *vessel.PayloadInstance) (catalogs.PayloadType, error) {
	pt, ok := e.Payloads.ByID[p.TypeID]
	if !ok {
		return pt, fmt.Errorf("%w: %s", ErrUnknownPayload, p.TypeID)
	}
	return pt, nil
}

func (e *Engine) boring(v *vessel.Vessel) bool {
	loc, ok := e.Locations.Lookup(v.Body)
	if !ok {
		return false
	}
	return science.Boring(loc, v.Situation, v.Altitude)
}

// Start opens the pools at their required sizes and starts producers.
func (e *Engine) Start(v *vessel.Vessel, p *vessel.PayloadInstance) (Notice, error) {
	pt, err := e.payloadType(p)
	if err != nil {
		return Notice{}, err
	}
	if p.HasData() {
		return Notice{}, ErrAlreadyFinalized
	}
	if e.boring(v) {
		return Notice{}, ErrTooBoring
	}
	req := pt.Requirements
	p.SetCapacity(vessel.Eurekas, req.Eurekas)
	p.SetCapacity(vessel.Kuarqs, req.Kuarqs)
	p.SetCapacity(vessel.Bioproducts, req.Bioproducts)
	if p.Amount(vessel.Eurekas) == 0 {
		p.SetAmount(vessel.Bioproducts, 0)
	}
	p.SetRunning(vessel.Eurekas, req.Eurekas > 0)
	p.SetRunning(vessel.Kuarqs, req.Kuarqs > 0)
	p.SetRunning(vessel.Bioproducts, req.Bioproducts > 0)
	return Notice{Kind: NoticeStarted, VesselID: v.ID, PartID: p.PartID, Text: "Started experiment!"}, nil
}

// Deploy finalizes a finished experiment, storing a result tagged with the
// current subject.
func (e *Engine) Deploy(v *vessel.Vessel, p *vessel.PayloadInstance, now float64) (Notice, error) {
	pt, err := e.payloadType(p)
	if err != nil {
		return Notice{}, err
	}
	if p.HasData() {
		return Notice{}, ErrAlreadyFinalized
	}
	if e.boring(v) {
		return Notice{}, ErrTooBoring
	}
	if !Finished(p, pt.Requirements) {
		return Notice{}, ErrNotFinished
	}
	subject := science.CurrentSubject(pt.ID, e.Locations, v)
	if subject == "" {
		return Notice{}, ErrNoSubject
	}
	p.Data = append(p.Data, subject)
	if p.CompletedAt == 0 {
		p.CompletedAt = now
	}
	return Notice{Kind: NoticeDeployed, VesselID: v.ID, PartID: p.PartID, Text: pt.Title + " results stored: " + subject}, nil
}

// Reset discards stored results and stops bioproduct production.
func (e *Engine) Reset(p *vessel.PayloadInstance) {
	p.Data = nil
	p.SetCapacity(vessel.Bioproducts, 0)
}

// FixedUpdate applies kuarq decay for one physics step and returns the decay rate.
func (e *Engine) FixedUpdate(p *vessel.PayloadInstance, dt float64) float64 {
	pt, err := e.payloadType(p)
	if err != nil {
		return 0
	}
	req := pt.Requirements
	if req.KuarqHalflife <= 0 || req.Kuarqs <= 0 {
		return 0
	}
	amount := p.Amount(vessel.Kuarqs)
	if p.Capacity(vessel.Kuarqs) == 0 || amount >= 0.99*req.Kuarqs {
		return 0
	}
	next, rate := Decay(amount, req.KuarqHalflife, dt)
	p.SetAmount(vessel.Kuarqs, next)
	return rate
}

func stopResearch(p *vessel.PayloadInstance, rs ...vessel.Resource) {
	for _, r := range rs {
		p.SetCapacity(r, 0)
	}
}

// UpdateStatus is the slow-cadence check: relocation, finalization and
// station attachment.
func (e *Engine) UpdateStatus(v *vessel.Vessel, p *vessel.PayloadInstance, now float64) Status {
	var st Status
	pt, err := e.payloadType(p)
	if err != nil {
		return st
	}
	eurekas := p.Amount(vessel.Eurekas)
	kuarqs := p.Amount(vessel.Kuarqs)
	bio := p.Amount(vessel.Bioproducts)

	subject := science.CurrentSubject(pt.ID, e.Locations, v)
	if subject != "" && p.LastSubjectID != "" && p.LastSubjectID != subject &&
		(eurekas > 0 || kuarqs > 0 || (bio > 0 && !p.HasData())) {
		stopResearch(p, vessel.Eurekas, vessel.Kuarqs, vessel.Bioproducts)
		st.Ruined = true
		st.Notices = append(st.Notices, Notice{
			Kind: NoticeRelocation, VesselID: v.ID, PartID: p.PartID,
			Text: "Location changed mid-experiment! " + pt.Title + " ruined.",
		})
	}
	p.LastSubjectID = subject

	if p.HasData() {
		stopResearch(p, vessel.Eurekas, vessel.Kuarqs)
		if p.CompletedAt == 0 {
			p.CompletedAt = now
			st.Completed = true
		}
	}
	if p.Amount(vessel.Eurekas) > 0 && !e.attached(v) {
		st.Notices = append(st.Notices, Notice{
			Kind: NoticeDetached, VesselID: v.ID, PartID: p.PartID,
			Text: "Warning: " + pt.Title + " has detached from the station without being finalized.",
		})
	}
	if p.Amount(vessel.Bioproducts) > 0 && p.Inoperable {
		stopResearch(p, vessel.Bioproducts)
	}
	if pt.Requirements.Bioproducts > 0 && p.HasData() && p.Amount(vessel.Bioproducts) < pt.Requirements.Bioproducts {
		e.Reset(p)
		st.Reset = true
	}
	return st
}

func (e *Engine) attached(v *vessel.Vessel) bool {
	for _, name := range e.StationParts {
		if v.HasPart(name) {
			return true
		}
	}
	return false
}

// Info renders the requirement summary for a payload type.
func Info(req catalogs.Requirements) string {
	var lines, needs []string
	if req.Eurekas > 0 {
		lines = append(lines, "Eurekas required: "+num(req.Eurekas))
		needs = append(needs, "Requires a TH-NKR Research Lab")
	}
	if req.Kuarqs > 0 {
		lines = append(lines, "Kuarqs required: "+num(req.Kuarqs))
		prod := ProductionRequired(req)
		if req.KuarqHalflife > 0 {
			lines = append(lines,
				"Kuarq decay halflife: "+num(req.KuarqHalflife)+" seconds",
				fmt.Sprintf("Production required: %.2f kuarq/s", prod))
		}
		if prod > 1 {
			needs = append(needs, fmt.Sprintf("Requires %d D-ZZY Cyclotrons", int(math.Ceil(prod))))
		} else {
			needs = append(needs, "Requires a D-ZZY Cyclotron")
		}
	}
	if req.Bioproducts > 0 {
		lines = append(lines, "Bioproducts required: "+num(req.Bioproducts))
		needs = append(needs, "Requires a F-RRY Zoology Bay")
	}
	return strings.Join(append(lines, needs...), "\n")
}

func num(x float64) string { return strconv.FormatFloat(x, 'f', -1, 64) }
