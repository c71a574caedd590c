package station

import (
	"errors"
	"fmt"

	"stationscience.dev/internal/persistence/snapshot"
	"stationscience.dev/internal/sim/contracts/lifecycle"
	"stationscience.dev/internal/sim/progression"
	"stationscience.dev/internal/sim/scheduler"
	"stationscience.dev/internal/sim/vessel"
)

// ExportSnapshot must be called from the loop goroutine or while the loop is stopped.
func (s *Station) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:   1,
			StationID: s.cfg.ID,
			Tick:      nowTick,
		},
		Seed:              s.cfg.Seed,
		TickRate:          s.cfg.Tuning.TickRateHz,
		Clock:             s.clock,
		ExperimentsDigest: s.cat.Payloads.Digest,
		BodiesDigest:      s.cat.Locations.Digest,
		Progression: snapshot.ProgressionV1{
			XP:          s.prog.XP,
			Reputation:  s.prog.Reputation,
			Funds:       s.prog.Funds,
			Science:     s.prog.Science,
			Unlocked:    s.prog.UnlockedList(),
			Reached:     s.prog.ReachedList(),
			OrbitedHome: s.prog.OrbitedHome,
		},
		Counters: snapshot.CountersV1{
			NextContract: s.book.NextID(),
			OfferCycle:   s.offerCycle,
		},
		SlowCadence:  cadenceV1(s.slow.State()),
		OfferCadence: cadenceV1(s.offers.State()),
	}
	for _, rec := range s.book.Records() {
		snap.Contracts = append(snap.Contracts, snapshot.ContractV1(rec))
	}
	for _, v := range s.fleet.All() {
		snap.Vessels = append(snap.Vessels, exportVessel(v))
	}
	return snap
}

// ImportSnapshot replaces the station state. Contracts whose records no
// longer resolve against the catalogs are discarded and logged; the rest
// load normally.
func (s *Station) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != 1 {
		return fmt.Errorf("unsupported snapshot version: %d", snap.Header.Version)
	}
	if snap.ExperimentsDigest != "" && snap.ExperimentsDigest != s.cat.Payloads.Digest {
		s.logger.Printf("snapshot experiments digest differs from loaded catalog")
	}
	if snap.BodiesDigest != "" && snap.BodiesDigest != s.cat.Locations.Digest {
		s.logger.Printf("snapshot bodies digest differs from loaded catalog")
	}

	recs := make([]lifecycle.Record, 0, len(snap.Contracts))
	for _, c := range snap.Contracts {
		recs = append(recs, lifecycle.Record(c))
	}
	if errs := s.book.Restore(recs); len(errs) > 0 {
		s.logger.Printf("snapshot: discarded %d contract(s): %v", len(errs), errors.Join(errs...))
	}
	s.book.SetNextID(snap.Counters.NextContract)

	fleet := vessel.NewFleet()
	for _, v := range snap.Vessels {
		fleet.Upsert(importVessel(v))
	}
	s.fleet = fleet

	prog := progression.New()
	prog.XP = snap.Progression.XP
	prog.Reputation = snap.Progression.Reputation
	prog.Funds = snap.Progression.Funds
	prog.Science = snap.Progression.Science
	prog.OrbitedHome = snap.Progression.OrbitedHome
	for _, name := range snap.Progression.Unlocked {
		prog.Unlock(name)
	}
	for _, body := range snap.Progression.Reached {
		prog.Reach(body)
	}
	s.prog = prog

	s.clock = snap.Clock
	s.offerCycle = snap.Counters.OfferCycle
	s.slow.Restore(cadenceState(snap.SlowCadence))
	s.offers.Restore(cadenceState(snap.OfferCadence))
	s.tick = snap.Header.Tick + 1
	s.published.Store(s.tick)
	s.dirty = true
	return nil
}

func cadenceV1(st scheduler.State) snapshot.CadenceV1 {
	return snapshot.CadenceV1{Last: st.Last, Ran: st.Ran, Requested: st.Requested}
}

func cadenceState(c snapshot.CadenceV1) scheduler.State {
	return scheduler.State{Last: c.Last, Ran: c.Ran, Requested: c.Requested}
}

func exportVessel(v *vessel.Vessel) snapshot.VesselV1 {
	out := snapshot.VesselV1{
		ID:        v.ID,
		Name:      v.Name,
		Body:      v.Body,
		Situation: string(v.Situation),
		Altitude:  v.Altitude,
		Parts:     append([]string(nil), v.Parts...),
	}
	for _, p := range v.Payloads {
		out.Payloads = append(out.Payloads, snapshot.PayloadV1{
			PartID:        p.PartID,
			TypeID:        p.TypeID,
			LaunchedAt:    p.LaunchedAt,
			CompletedAt:   p.CompletedAt,
			LastSubjectID: p.LastSubjectID,
			Eurekas:       snapshot.PoolV1(p.Eurekas),
			Kuarqs:        snapshot.PoolV1(p.Kuarqs),
			Bioproducts:   snapshot.PoolV1(p.Bioproducts),
			Data:          append([]string(nil), p.Data...),
			Inoperable:    p.Inoperable,
		})
	}
	return out
}

func importVessel(v snapshot.VesselV1) vessel.Vessel {
	out := vessel.Vessel{
		ID:        v.ID,
		Name:      v.Name,
		Body:      v.Body,
		Situation: vessel.Situation(v.Situation),
		Altitude:  v.Altitude,
		Parts:     append([]string(nil), v.Parts...),
	}
	for _, p := range v.Payloads {
		out.Payloads = append(out.Payloads, &vessel.PayloadInstance{
			PartID:        p.PartID,
			TypeID:        p.TypeID,
			LaunchedAt:    p.LaunchedAt,
			CompletedAt:   p.CompletedAt,
			LastSubjectID: p.LastSubjectID,
			Eurekas:       vessel.Pool(p.Eurekas),
			Kuarqs:        vessel.Pool(p.Kuarqs),
			Bioproducts:   vessel.Pool(p.Bioproducts),
			Data:          append([]string(nil), p.Data...),
			Inoperable:    p.Inoperable,
		})
	}
	return out
}
