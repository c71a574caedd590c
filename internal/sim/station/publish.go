package station

import (
	"encoding/json"

	"stationscience.dev/internal/protocol"
	"stationscience.dev/internal/sim/catalogs"
	"stationscience.dev/internal/sim/contracts/lifecycle"
	"stationscience.dev/internal/sim/contracts/objective"
	"stationscience.dev/internal/sim/experiment"
	"stationscience.dev/internal/sim/science"
	"stationscience.dev/internal/sim/vessel"
)

// notify pushes a display string to every client. Slow clients lose notices
// rather than stalling the loop.
func (s *Station) notify(nowTick uint64, n protocol.NoticeMsg) {
	if len(s.clients) == 0 {
		return
	}
	n.Type = protocol.TypeNotice
	n.ProtocolVersion = protocol.Version
	n.Tick = nowTick
	n.Time = s.clock
	b, err := json.Marshal(n)
	if err != nil {
		return
	}
	for _, cl := range s.clients {
		trySend(cl.Out, b)
	}
}

func (s *Station) publishStatus(nowTick uint64) {
	if len(s.clients) == 0 {
		return
	}
	b, err := json.Marshal(s.Status(nowTick))
	if err != nil {
		return
	}
	for _, cl := range s.clients {
		sendLatest(cl.Out, b)
	}
}

// Status builds the display view of the station.
func (s *Station) Status(nowTick uint64) protocol.StatusMsg {
	home := s.cfg.Tuning.HomeBody
	msg := protocol.StatusMsg{
		Type:            protocol.TypeStatus,
		ProtocolVersion: protocol.Version,
		StationID:       s.cfg.ID,
		Tick:            nowTick,
		Time:            s.clock,
		Progression: protocol.ProgressionSummary{
			Funds:       s.prog.Funds,
			Science:     s.prog.Science,
			Reputation:  s.prog.Reputation,
			XP:          s.prog.XP,
			OrbitedHome: s.prog.OrbitedHome,
		},
	}
	for _, c := range s.book.Contracts() {
		if !c.State.Open() {
			continue
		}
		msg.Contracts = append(msg.Contracts, contractSummary(c, home))
	}
	for _, v := range s.fleet.All() {
		for _, p := range v.Payloads {
			pt, ok := s.cat.Payloads.ByID[p.TypeID]
			if !ok {
				continue
			}
			es := experimentSummary(v, p, pt, s.cat.Locations)
			es.KuarqDecay = s.decay[payloadKey(v.ID, p.PartID)]
			msg.Experiments = append(msg.Experiments, es)
		}
	}
	return msg
}

func contractSummary(c *lifecycle.Contract, home string) protocol.ContractSummary {
	cs := protocol.ContractSummary{
		ID:         c.ID,
		State:      string(c.State),
		Title:      c.Title(),
		Synopsis:   c.Synopsis(home),
		Notes:      objective.Notes(c.Payload.Title, c.Location.DisplayName(), home),
		Prestige:   c.Prestige,
		Value:      c.Value,
		FirstTime:  c.FirstTime,
		AcceptedAt: c.AcceptedAt,
		DeadlineAt: c.DeadlineAt,
		ExpiresAt:  c.ExpiresAt,
		Rewards: protocol.RewardSummary{
			Science:           c.Rewards.Science,
			FundsAdvance:      c.Rewards.FundsAdvance,
			FundsReward:       c.Rewards.FundsReward,
			FundsFailure:      c.Rewards.FundsFailure,
			Reputation:        c.Rewards.Reputation,
			ReputationFailure: c.Rewards.ReputationFailure,
			DeadlineYears:     c.Rewards.DeadlineYears,
		},
	}
	if c.State == lifecycle.StateActive {
		for _, st := range c.StageTitles(home) {
			cs.Stages = append(cs.Stages, protocol.StageSummary{Title: st.Title, Done: st.Done})
		}
	}
	return cs
}

func experimentSummary(v *vessel.Vessel, p *vessel.PayloadInstance, pt catalogs.PayloadType, locs catalogs.LocationCatalog) protocol.ExperimentSummary {
	req := pt.Requirements
	return protocol.ExperimentSummary{
		VesselID:    v.ID,
		PartID:      p.PartID,
		TypeID:      p.TypeID,
		Subject:     science.CurrentSubject(pt.ID, locs, v),
		Eurekas:     protocol.PoolSummary{Amount: p.Amount(vessel.Eurekas), Required: req.Eurekas},
		Kuarqs:      protocol.PoolSummary{Amount: p.Amount(vessel.Kuarqs), Required: req.Kuarqs},
		Bioproducts: protocol.PoolSummary{Amount: p.Amount(vessel.Bioproducts), Required: req.Bioproducts},
		Finished:    experiment.Finished(p, req),
		Finalized:   p.HasData(),
	}
}

func payloadKey(vesselID, partID string) string { return vesselID + "/" + partID }

func trySend(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
		return false
	}
}

// sendLatest drops the oldest queued message when the client is full.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
