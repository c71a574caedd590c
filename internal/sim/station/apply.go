package station

import (
	"errors"
	"fmt"

	"stationscience.dev/internal/protocol"
	"stationscience.dev/internal/sim/contracts/audit"
	"stationscience.dev/internal/sim/contracts/candidates"
	"stationscience.dev/internal/sim/contracts/lifecycle"
	"stationscience.dev/internal/sim/events"
	"stationscience.dev/internal/sim/experiment"
	"stationscience.dev/internal/sim/vessel"
)

// Notice kinds beyond the experiment engine's own.
const (
	noticeOffered   = "CONTRACT_OFFERED"
	noticeStage     = "CONTRACT_STAGE"
	noticeCompleted = "CONTRACT_COMPLETED"
	noticeFailed    = "CONTRACT_FAILED"
	noticeWithdrawn = "CONTRACT_WITHDRAWN"
	noticeRejected  = "REJECTED"
)

func (s *Station) apply(nowTick uint64, ev events.Event) {
	switch ev.Kind {
	case events.VesselState:
		s.fleet.Upsert(*ev.Vessel)
		s.slow.Request()

	case events.Launch:
		if s.fleet.Get(ev.VesselID) == nil {
			s.reject(nowTick, ev, fmt.Errorf("%w: %s", errUnknownVessel, ev.VesselID))
			return
		}
		s.applyOutcomes(nowTick, s.book.Handle(ev, s.fleet))

	case events.SituationChange:
		v := s.fleet.Get(ev.VesselID)
		if v == nil {
			s.reject(nowTick, ev, fmt.Errorf("%w: %s", errUnknownVessel, ev.VesselID))
			return
		}
		v.Situation = ev.To
		if ev.Body != "" {
			v.Body = ev.Body
		}
		s.applyOutcomes(nowTick, s.book.Handle(ev, s.fleet))
		s.slow.Request()

	case events.Recovered:
		s.applyOutcomes(nowTick, s.book.Handle(ev, s.fleet))
		s.fleet.Remove(ev.Snapshot.VesselID)

	case events.Produce:
		_, p, err := s.part(ev)
		if err != nil {
			s.reject(nowTick, ev, err)
			return
		}
		p.Produce(ev.Resource, ev.Amount)

	case events.StartExperiment:
		v, p, err := s.part(ev)
		if err == nil {
			var n experiment.Notice
			if n, err = s.engine.Start(v, p); err == nil {
				s.notify(nowTick, engineNotice(n))
			}
		}
		if err != nil {
			s.reject(nowTick, ev, err)
		}

	case events.DeployExperiment:
		v, p, err := s.part(ev)
		if err == nil {
			var n experiment.Notice
			if n, err = s.engine.Deploy(v, p, ev.Time); err == nil {
				s.notify(nowTick, engineNotice(n))
				s.slow.Request()
			}
		}
		if err != nil {
			s.reject(nowTick, ev, err)
		}

	case events.Unlock:
		s.prog.Unlock(ev.Name)

	case events.Reach:
		s.prog.Reach(ev.Name)
		if ev.Orbit && ev.Name == s.cfg.Tuning.HomeBody {
			s.prog.OrbitedHome = true
		}

	case events.Accept, events.Decline, events.Cancel:
		var (
			o   lifecycle.Outcome
			err error
		)
		switch ev.Kind {
		case events.Accept:
			o, err = s.book.Accept(ev.ContractID, ev.Time)
		case events.Decline:
			o, err = s.book.Decline(ev.ContractID, ev.Time)
		default:
			o, err = s.book.Cancel(ev.ContractID, ev.Time)
		}
		if err != nil {
			s.reject(nowTick, ev, err)
			return
		}
		s.applyOutcomes(nowTick, []lifecycle.Outcome{o})
	}
}

func (s *Station) part(ev events.Event) (*vessel.Vessel, *vessel.PayloadInstance, error) {
	v := s.fleet.Get(ev.VesselID)
	if v == nil {
		return nil, nil, fmt.Errorf("%w: %s", errUnknownVessel, ev.VesselID)
	}
	p := v.Payload(ev.PartID)
	if p == nil {
		return nil, nil, fmt.Errorf("%w: %s/%s", errUnknownPart, ev.VesselID, ev.PartID)
	}
	return v, p, nil
}

// applyOutcomes pays out, audits and announces contract changes.
func (s *Station) applyOutcomes(nowTick uint64, outs []lifecycle.Outcome) {
	for _, o := range outs {
		c := o.Contract
		if !o.Payout.IsZero() {
			s.prog.Apply(o.Payout)
		}
		if e, ok := audit.BuildOutcome(o); ok {
			s.writeAudit(nowTick, AuditEntry{
				Actor:   e.Actor,
				Action:  e.EventType,
				Subject: c.ID,
				Reason:  e.Reason,
				Details: e.Fields,
			})
		}
		s.dirty = true

		switch {
		case o.To == lifecycle.StateCompleted:
			s.notify(nowTick, protocol.NoticeMsg{Kind: noticeCompleted, ContractID: c.ID, Text: c.CompletedMessage()})
		case o.To == lifecycle.StateFailed:
			s.notify(nowTick, protocol.NoticeMsg{Kind: noticeFailed, ContractID: c.ID, Text: "Contract failed: " + c.Title()})
		case o.To == lifecycle.StateWithdrawn:
			s.notify(nowTick, protocol.NoticeMsg{Kind: noticeWithdrawn, ContractID: c.ID, Text: "Contract offer withdrawn: " + c.Title()})
		case o.From == o.To:
			titles := c.StageTitles(s.cfg.Tuning.HomeBody)
			for _, t := range o.Transitions {
				if i := int(t.Stage) - 1; i >= 0 && i < len(titles) {
					s.notify(nowTick, protocol.NoticeMsg{Kind: noticeStage, ContractID: c.ID, Text: "Objective complete: " + titles[i].Title})
				}
			}
		}
	}
}

func (s *Station) updateExperiments(nowTick uint64) {
	for _, v := range s.fleet.All() {
		for _, p := range v.Payloads {
			last := p.LastSubjectID
			st := s.engine.UpdateStatus(v, p, s.clock)
			for _, n := range st.Notices {
				s.notify(nowTick, engineNotice(n))
			}
			if st.Ruined {
				s.writeAudit(nowTick, AuditEntry{
					Actor:   "STATION",
					Action:  audit.EventRuined,
					Subject: v.ID + "/" + p.PartID,
					Reason:  string(experiment.NoticeRelocation),
					Details: audit.BuildRuinedFields(v.ID, p.PartID, p.TypeID, last, p.LastSubjectID),
				})
			}
		}
	}
}

func engineNotice(n experiment.Notice) protocol.NoticeMsg {
	return protocol.NoticeMsg{Kind: string(n.Kind), VesselID: n.VesselID, PartID: n.PartID, Text: n.Text}
}

func offerAudit(c *lifecycle.Contract) AuditEntry {
	return AuditEntry{
		Actor:   "STATION",
		Action:  audit.EventOffer,
		Subject: c.ID,
		Details: audit.BuildOfferFields(c),
	}
}

func (s *Station) writeAudit(nowTick uint64, e AuditEntry) {
	if s.auditLogger == nil {
		return
	}
	e.Tick = nowTick
	e.Time = s.clock
	if err := s.auditLogger.WriteAudit(e); err != nil {
		s.logger.Printf("audit: %v", err)
	}
}

func (s *Station) reject(nowTick uint64, ev events.Event, err error) {
	s.notify(nowTick, protocol.NoticeMsg{
		Kind:       noticeRejected,
		Code:       errorCode(err),
		VesselID:   ev.VesselID,
		PartID:     ev.PartID,
		ContractID: ev.ContractID,
		Text:       experiment.Message(err),
	})
}

// errorCode maps domain errors to protocol codes.
func errorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, lifecycle.ErrUnknownContract):
		return protocol.ErrUnknownContract
	case errors.Is(err, lifecycle.ErrBadState):
		return protocol.ErrConflict
	case errors.Is(err, lifecycle.ErrRequirementsUnmet):
		return protocol.ErrRequirements
	case errors.Is(err, candidates.ErrNoEligibleCandidates):
		return protocol.ErrNoCandidates
	case errors.Is(err, experiment.ErrTooBoring):
		return protocol.ErrTooBoring
	case errors.Is(err, experiment.ErrNotFinished):
		return protocol.ErrNotFinished
	case errors.Is(err, experiment.ErrAlreadyFinalized):
		return protocol.ErrFinalized
	case errors.Is(err, errUnknownVessel), errors.Is(err, errUnknownPart):
		return protocol.ErrUnknownVessel
	case errors.Is(err, ErrBusy):
		return protocol.ErrStationBusy
	}
	return protocol.ErrBadRequest
}
