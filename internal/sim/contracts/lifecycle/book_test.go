package lifecycle

import (
	"errors"
	"io"
	"log"
	"testing"

	"stationscience.dev/internal/sim/catalogs"
	"stationscience.dev/internal/sim/contracts/candidates"
	"stationscience.dev/internal/sim/events"
	"stationscience.dev/internal/sim/progression"
	"stationscience.dev/internal/sim/tuning"
	"stationscience.dev/internal/sim/vessel"
)

const exp1 = "StnSciExperiment1"

type countingRoll struct {
	v     float64
	calls int
}

func (r *countingRoll) Float64() float64 {
	r.calls++
	return r.v
}

func newTestBook(t *testing.T) (*Book, *countingRoll) {
	t.Helper()
	cat, err := catalogs.Default()
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	roll := &countingRoll{}
	b := NewBook(ConfigFrom(tuning.Defaults()), cat, roll, log.New(io.Discard, "", 0))
	return b, roll
}

func readyProgress(bodies ...string) *progression.State {
	p := progression.New()
	p.OrbitedHome = true
	for _, n := range []string{exp1, "StnSciLab", "dockingPort1"} {
		p.Unlock(n)
	}
	for _, b := range bodies {
		p.Reach(b)
	}
	return p
}

func TestGenerateRequiresProgress(t *testing.T) {
	b, roll := newTestBook(t)
	p := readyProgress("Mun")
	p.OrbitedHome = false
	if _, err := b.Generate(p, PrestigeSignificant, 0); !errors.Is(err, ErrRequirementsUnmet) {
		t.Fatalf("expected requirements error, got %v", err)
	}
	p.OrbitedHome = true
	delete(p.Unlocked, "dockingPort1")
	if _, err := b.Generate(p, PrestigeSignificant, 0); !errors.Is(err, ErrRequirementsUnmet) {
		t.Fatalf("expected requirements error without docking port, got %v", err)
	}
	if roll.calls != 0 {
		t.Fatalf("roller used: %d", roll.calls)
	}
}

func TestGenerateCapRejectsWithoutDrawing(t *testing.T) {
	b, roll := newTestBook(t)
	p := readyProgress("Kerbin", "Mun", "Minmus", "Duna", "Eve")
	for i := 0; i < 4; i++ {
		if _, err := b.Generate(p, PrestigeSignificant, float64(i)); err != nil {
			t.Fatalf("generate %d: %v", i, err)
		}
	}
	calls := roll.calls
	_, err := b.Generate(p, PrestigeSignificant, 10)
	if !errors.Is(err, ErrContractCap) || !errors.Is(err, candidates.ErrNoEligibleCandidates) {
		t.Fatalf("expected cap rejection, got %v", err)
	}
	if roll.calls != calls {
		t.Fatalf("cap check consumed a draw")
	}
	if b.OpenCount() != 4 {
		t.Fatalf("open count: %d", b.OpenCount())
	}
}

func TestGenerateReservesPair(t *testing.T) {
	b, _ := newTestBook(t)
	p := readyProgress("Mun")
	c, err := b.Generate(p, PrestigeSignificant, 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if c.ID != "C000001" || c.Payload.ID != exp1 || c.Location.ID != "Mun" || c.Value != 3 {
		t.Fatalf("contract: %+v", c)
	}
	if c.State != StateOffered || c.ExpiresAt != tuning.Defaults().Contracts.OfferExpirySeconds {
		t.Fatalf("offer: %+v", c)
	}
	if _, err := b.Generate(p, PrestigeSignificant, 1); !errors.Is(err, candidates.ErrNoEligibleCandidates) || errors.Is(err, ErrContractCap) {
		t.Fatalf("expected no candidates, got %v", err)
	}
	if got := c.Title(); got != "Perform Fundamental Particles Experiment in orbit around the Mun" {
		t.Fatalf("title: %q", got)
	}
}

func TestAcceptPaysAdvanceAndSetsDeadline(t *testing.T) {
	b, _ := newTestBook(t)
	c, _ := b.Generate(readyProgress("Mun"), PrestigeSignificant, 0)
	out, err := b.Accept(c.ID, 100)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if out.Payout.Funds != c.Rewards.FundsAdvance || out.Payout.Funds != 160000 {
		t.Fatalf("advance: %+v", out.Payout)
	}
	want := 100 + c.Rewards.DeadlineYears*tuning.Defaults().YearSeconds
	if c.DeadlineAt != want || c.Objective == nil || c.Objective.AcceptedAt != 100 {
		t.Fatalf("contract: %+v", c)
	}
	if _, err := b.Accept(c.ID, 101); !errors.Is(err, ErrBadState) {
		t.Fatalf("double accept: %v", err)
	}
	if _, err := b.Accept("C999999", 101); !errors.Is(err, ErrUnknownContract) {
		t.Fatalf("unknown: %v", err)
	}
}

func TestFullObjectiveCompletesOnce(t *testing.T) {
	b, _ := newTestBook(t)
	c, _ := b.Generate(readyProgress("Mun"), PrestigeSignificant, 0)
	b.Accept(c.ID, 100)

	fleet := vessel.NewFleet()
	v := fleet.Upsert(vessel.Vessel{
		ID: "v1", Body: "Kerbin", Situation: vessel.Prelaunch, Parts: []string{"StnSciLab"},
		Payloads: []*vessel.PayloadInstance{{PartID: "p1", TypeID: exp1}},
	})

	out := b.Handle(events.Event{Kind: events.SituationChange, Time: 150, VesselID: "v1", From: vessel.Prelaunch, To: vessel.Flying}, fleet)
	if len(out) != 1 || out[0].To != StateActive || len(out[0].Transitions) != 1 {
		t.Fatalf("launch outcome: %+v", out)
	}

	p := v.Payload("p1")
	p.CompletedAt = 500
	p.Data = []string{exp1 + "@MunInSpaceLow"}
	out = b.Reconcile(600, fleet.All())
	if len(out) != 1 || !c.Objective.IsInPlace {
		t.Fatalf("in-place outcome: %+v", out)
	}

	snap := v.Snapshot()
	out = b.Handle(events.Event{Kind: events.Recovered, Time: 900, VesselID: "v1", Snapshot: &snap}, fleet)
	if len(out) != 1 || out[0].To != StateCompleted || out[0].Reason != ReasonRecovered {
		t.Fatalf("recovery outcome: %+v", out)
	}
	want := progression.Delta{Science: 80, Funds: 480000, Reputation: 13, XP: 1.5}
	if out[0].Payout != want {
		t.Fatalf("payout: %+v want %+v", out[0].Payout, want)
	}
	if c.FinishedAt != 900 || b.CompletedCount(exp1, "Mun") != 1 {
		t.Fatalf("completion bookkeeping: %+v", c)
	}
	if again := b.Handle(events.Event{Kind: events.Recovered, Time: 950, Snapshot: &snap}, fleet); len(again) != 0 {
		t.Fatalf("rewards paid twice: %+v", again)
	}

	next, err := b.Generate(readyProgress("Mun"), PrestigeSignificant, 1000)
	if err != nil {
		t.Fatalf("generate after completion: %v", err)
	}
	if next.FirstTime || next.Rewards.FundsReward != 16000 {
		t.Fatalf("first-time bonus should be gone: %+v", next)
	}
}

func TestDeadlineFailsWithPenalty(t *testing.T) {
	b, _ := newTestBook(t)
	c, _ := b.Generate(readyProgress("Mun"), PrestigeSignificant, 0)
	b.Accept(c.ID, 0)
	if out := b.Reconcile(c.DeadlineAt, nil); len(out) != 0 {
		t.Fatalf("deadline is inclusive: %+v", out)
	}
	out := b.Reconcile(c.DeadlineAt+1, nil)
	if len(out) != 1 || out[0].To != StateFailed || out[0].Reason != ReasonDeadlineElapsed {
		t.Fatalf("outcome: %+v", out)
	}
	if out[0].Payout != (progression.Delta{Funds: -240000, Reputation: -19.5}) {
		t.Fatalf("penalty: %+v", out[0].Payout)
	}
	if out := b.Reconcile(c.DeadlineAt+2, nil); len(out) != 0 {
		t.Fatalf("failed twice: %+v", out)
	}
}

func TestRecoveryAfterDeadlineFails(t *testing.T) {
	b, _ := newTestBook(t)
	c, _ := b.Generate(readyProgress("Mun"), PrestigeSignificant, 0)
	b.Accept(c.ID, 100)

	fleet := vessel.NewFleet()
	v := fleet.Upsert(vessel.Vessel{
		ID: "v1", Body: "Kerbin", Situation: vessel.Prelaunch, Parts: []string{"StnSciLab"},
		Payloads: []*vessel.PayloadInstance{{PartID: "p1", TypeID: exp1}},
	})
	b.Handle(events.Event{Kind: events.SituationChange, Time: 150, VesselID: "v1", From: vessel.Prelaunch, To: vessel.Flying}, fleet)
	p := v.Payload("p1")
	p.CompletedAt = 500
	p.Data = []string{exp1 + "@MunInSpaceLow"}
	b.Reconcile(600, fleet.All())
	if !c.Objective.IsInPlace {
		t.Fatalf("objective not in place: %+v", c.Objective)
	}

	late := c.DeadlineAt + 1e6
	snap := v.Snapshot()
	out := b.Handle(events.Event{Kind: events.Recovered, Time: late, VesselID: "v1", Snapshot: &snap}, fleet)
	if len(out) != 1 || out[0].To != StateFailed || out[0].Reason != ReasonDeadlineElapsed {
		t.Fatalf("outcome: %+v", out)
	}
	if out[0].Payout != (progression.Delta{Funds: -240000, Reputation: -19.5}) {
		t.Fatalf("penalty: %+v", out[0].Payout)
	}
	if c.FinishedAt != late || b.CompletedCount(exp1, "Mun") != 0 {
		t.Fatalf("bookkeeping: %+v", c)
	}
}

func TestRecoveryAtDeadlineCompletes(t *testing.T) {
	b, _ := newTestBook(t)
	c, _ := b.Generate(readyProgress("Mun"), PrestigeSignificant, 0)
	b.Accept(c.ID, 100)

	fleet := vessel.NewFleet()
	v := fleet.Upsert(vessel.Vessel{
		ID: "v1", Body: "Kerbin", Situation: vessel.Prelaunch, Parts: []string{"StnSciLab"},
		Payloads: []*vessel.PayloadInstance{{PartID: "p1", TypeID: exp1}},
	})
	b.Handle(events.Event{Kind: events.SituationChange, Time: 150, VesselID: "v1", From: vessel.Prelaunch, To: vessel.Flying}, fleet)
	p := v.Payload("p1")
	p.CompletedAt = 500
	p.Data = []string{exp1 + "@MunInSpaceLow"}
	b.Reconcile(600, fleet.All())

	snap := v.Snapshot()
	out := b.Handle(events.Event{Kind: events.Recovered, Time: c.DeadlineAt, VesselID: "v1", Snapshot: &snap}, fleet)
	if len(out) != 1 || out[0].To != StateCompleted {
		t.Fatalf("deadline is inclusive: %+v", out)
	}
}

func TestOfferExpiryWithdraws(t *testing.T) {
	b, _ := newTestBook(t)
	c, _ := b.Generate(readyProgress("Mun"), PrestigeSignificant, 0)
	out := b.Reconcile(c.ExpiresAt+1, nil)
	if len(out) != 1 || out[0].To != StateWithdrawn || !out[0].Payout.IsZero() {
		t.Fatalf("outcome: %+v", out)
	}
	if b.OpenCount() != 0 {
		t.Fatalf("withdrawn offer still open")
	}
}

func TestDeclineAndCancel(t *testing.T) {
	b, _ := newTestBook(t)
	p := readyProgress("Mun", "Minmus")
	c1, _ := b.Generate(p, PrestigeSignificant, 0)
	c2, _ := b.Generate(p, PrestigeSignificant, 0)

	if out, err := b.Decline(c1.ID, 5); err != nil || out.To != StateDeclined || !out.Payout.IsZero() {
		t.Fatalf("decline: %+v %v", out, err)
	}
	if _, err := b.Cancel(c2.ID, 5); !errors.Is(err, ErrBadState) {
		t.Fatalf("cancel offer: %v", err)
	}
	b.Accept(c2.ID, 6)
	out, err := b.Cancel(c2.ID, 7)
	if err != nil || out.To != StateCancelled {
		t.Fatalf("cancel: %+v %v", out, err)
	}
	if out.Payout.Funds != -c2.Rewards.FundsFailure || out.Payout.Reputation != -c2.Rewards.ReputationFailure {
		t.Fatalf("cancel penalty: %+v", out.Payout)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	b, _ := newTestBook(t)
	c, _ := b.Generate(readyProgress("Mun"), PrestigeExceptional, 3)
	b.Accept(c.ID, 10)
	c.Objective.IsLaunched, c.Objective.LaunchedAt = true, 12.25

	rec := b.Save(c)
	got, err := b.Load(rec)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ID != c.ID || got.Payload.ID != c.Payload.ID || got.Location.ID != c.Location.ID ||
		got.Value != c.Value || got.Rewards != c.Rewards || got.State != c.State ||
		got.AcceptedAt != c.AcceptedAt || got.DeadlineAt != c.DeadlineAt || got.Prestige != PrestigeExceptional ||
		!got.AdvancePaid || !got.FirstTime {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, c)
	}
	if *got.Objective != *c.Objective {
		t.Fatalf("objective mismatch: %+v vs %+v", got.Objective, c.Objective)
	}
}

func TestLoadUnresolvedAndMalformed(t *testing.T) {
	b, _ := newTestBook(t)
	c, _ := b.Generate(readyProgress("Mun"), PrestigeSignificant, 0)
	rec := b.Save(c)

	bad := Record{}
	for k, v := range rec {
		bad[k] = v
	}
	bad[keyTargetBody] = "Krakensbane"
	if _, err := b.Load(bad); !errors.Is(err, ErrUnresolvedIdentifier) {
		t.Fatalf("expected unresolved body, got %v", err)
	}
	bad[keyTargetBody] = "mun"
	bad[keyExperimentType] = "StnSciExperiment99"
	if _, err := b.Load(bad); !errors.Is(err, ErrUnresolvedIdentifier) {
		t.Fatalf("expected unresolved experiment, got %v", err)
	}

	bad[keyExperimentType] = exp1
	bad[keyScience] = "lots"
	got, err := b.Load(bad)
	if err != nil {
		t.Fatalf("malformed number should not abort: %v", err)
	}
	if got.Rewards.Science != 0 || got.Rewards.FundsReward != c.Rewards.FundsReward || got.Location.ID != "Mun" {
		t.Fatalf("malformed load: %+v", got)
	}
}

func TestRestoreDiscardsBadRecordsAndContinuesIDs(t *testing.T) {
	b, _ := newTestBook(t)
	p := readyProgress("Mun", "Minmus")
	b.Generate(p, PrestigeSignificant, 0)
	b.Generate(p, PrestigeSignificant, 0)
	recs := b.Records()
	recs[0][keyExperimentType] = "gone"

	b2, _ := newTestBook(t)
	errs := b2.Restore(recs)
	if len(errs) != 1 || len(b2.Contracts()) != 1 {
		t.Fatalf("restore: errs=%v contracts=%d", errs, len(b2.Contracts()))
	}
	c, err := b2.Generate(p, PrestigeSignificant, 1)
	if err != nil {
		t.Fatalf("generate after restore: %v", err)
	}
	if c.ID != "C000003" {
		t.Fatalf("id after restore: %s", c.ID)
	}
}
