package experiment

import (
	"errors"
	"math"
	"strings"
	"testing"

	"stationscience.dev/internal/sim/catalogs"
	"stationscience.dev/internal/sim/vessel"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	c, err := catalogs.Default()
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	return NewEngine(c)
}

func orbitingMun(parts ...string) *vessel.Vessel {
	return &vessel.Vessel{ID: "v1", Body: "Mun", Situation: vessel.Orbiting, Altitude: 20000, Parts: parts}
}

func TestDecayHalflife(t *testing.T) {
	got, rate := Decay(100, 60, 60)
	if math.Abs(got-50) > 1e-9 {
		t.Fatalf("decay: got %v want 50", got)
	}
	if math.Abs(rate-50.0/60) > 1e-9 {
		t.Fatalf("rate: got %v", rate)
	}
	if got, rate := Decay(100, 60, 0); got != 100 || rate != 0 {
		t.Fatalf("dt=0: got %v rate %v", got, rate)
	}
	if got, rate := Decay(100, 0, 5); got != 100 || rate != 0 {
		t.Fatalf("no halflife: got %v rate %v", got, rate)
	}
}

func TestFinishedRoundsToTwoDecimals(t *testing.T) {
	req := catalogs.Requirements{Eurekas: 5}
	p := &vessel.PayloadInstance{Eurekas: vessel.Pool{Capacity: 10}}
	cases := []struct {
		amount float64
		want   bool
	}{
		{4.994, false},
		{4.98, false},
		{4.999, true},
		{5.001, true},
	}
	for _, tc := range cases {
		p.Eurekas.Amount = tc.amount
		if got := Finished(p, req); got != tc.want {
			t.Fatalf("eurekas=%v: got %v want %v", tc.amount, got, tc.want)
		}
	}
	if !Finished(&vessel.PayloadInstance{}, catalogs.Requirements{}) {
		t.Fatalf("zero requirements are always satisfied")
	}
	// Exact half-cent ties round to even.
	tie := &vessel.PayloadInstance{Eurekas: vessel.Pool{Amount: 0.125, Capacity: 1}}
	if Finished(tie, catalogs.Requirements{Eurekas: 0.13}) {
		t.Fatalf("0.125 should round down to 0.12")
	}
	tie.Eurekas.Amount = 0.375
	if !Finished(tie, catalogs.Requirements{Eurekas: 0.38}) {
		t.Fatalf("0.375 should round up to 0.38")
	}
	bio := &vessel.PayloadInstance{Bioproducts: vessel.Pool{Amount: 3.996, Capacity: 4}}
	if !Finished(bio, catalogs.Requirements{Bioproducts: 4}) {
		t.Fatalf("bioproducts within rounding should count as finished")
	}
}

func TestStartRejectsBoringAndFinalized(t *testing.T) {
	e := testEngine(t)
	p := &vessel.PayloadInstance{PartID: "p1", TypeID: "StnSciExperiment2"}
	pad := &vessel.Vessel{ID: "v1", Body: "Kerbin", Situation: vessel.Prelaunch}
	if _, err := e.Start(pad, p); !errors.Is(err, ErrTooBoring) {
		t.Fatalf("expected too boring, got %v", err)
	}
	if Message(ErrTooBoring) != "Too boring here. Go to space!" {
		t.Fatalf("message: %q", Message(ErrTooBoring))
	}

	n, err := e.Start(orbitingMun(), p)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if n.Text != "Started experiment!" {
		t.Fatalf("notice: %+v", n)
	}
	if p.Capacity(vessel.Eurekas) != 10 || p.Capacity(vessel.Kuarqs) != 20 || p.Capacity(vessel.Bioproducts) != 0 {
		t.Fatalf("capacities: %+v", p)
	}
	if !p.Running(vessel.Eurekas) || !p.Running(vessel.Kuarqs) || p.Running(vessel.Bioproducts) {
		t.Fatalf("producers: %+v", p)
	}

	p.Data = []string{"x"}
	if _, err := e.Start(orbitingMun(), p); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("expected already finalized, got %v", err)
	}
}

func TestDeployStoresSubjectAndStampsCompletion(t *testing.T) {
	e := testEngine(t)
	v := orbitingMun("StnSciLab")
	p := &vessel.PayloadInstance{PartID: "p1", TypeID: "StnSciExperiment1"}
	if _, err := e.Start(v, p); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.Deploy(v, p, 100); !errors.Is(err, ErrNotFinished) {
		t.Fatalf("expected not finished, got %v", err)
	}
	p.Produce(vessel.Eurekas, 20)
	if _, err := e.Deploy(v, p, 100); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if len(p.Data) != 1 || p.Data[0] != "StnSciExperiment1@MunInSpaceLow" {
		t.Fatalf("data: %v", p.Data)
	}
	if p.CompletedAt != 100 {
		t.Fatalf("completed: %v", p.CompletedAt)
	}
	if _, err := e.Deploy(v, p, 101); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("expected already finalized, got %v", err)
	}
}

func TestFixedUpdateDecaysOnlyBelowThreshold(t *testing.T) {
	e := testEngine(t)
	v := orbitingMun("StnSciLab", "StnSciCyclo")
	p := &vessel.PayloadInstance{PartID: "p1", TypeID: "StnSciExperiment4"}
	if _, err := e.Start(v, p); err != nil {
		t.Fatalf("start: %v", err)
	}
	p.Produce(vessel.Kuarqs, 49.6) // >= 0.99 * 50
	if rate := e.FixedUpdate(p, 3); rate != 0 || p.Amount(vessel.Kuarqs) != 49.6 {
		t.Fatalf("full pool should not decay: rate=%v amount=%v", rate, p.Amount(vessel.Kuarqs))
	}
	p.SetAmount(vessel.Kuarqs, 40)
	rate := e.FixedUpdate(p, 3)
	if math.Abs(p.Amount(vessel.Kuarqs)-20) > 1e-9 || rate <= 0 {
		t.Fatalf("decay: amount=%v rate=%v", p.Amount(vessel.Kuarqs), rate)
	}

	stable := &vessel.PayloadInstance{PartID: "p2", TypeID: "StnSciExperiment2"}
	e.Start(v, stable)
	stable.Produce(vessel.Kuarqs, 5)
	if rate := e.FixedUpdate(stable, 10); rate != 0 || stable.Amount(vessel.Kuarqs) != 5 {
		t.Fatalf("no halflife means no decay")
	}
}

func TestUpdateStatusRelocationRuins(t *testing.T) {
	e := testEngine(t)
	v := orbitingMun("StnSciLab")
	p := &vessel.PayloadInstance{PartID: "p1", TypeID: "StnSciExperiment5"}
	if _, err := e.Start(v, p); err != nil {
		t.Fatalf("start: %v", err)
	}
	p.Produce(vessel.Eurekas, 3)
	p.Produce(vessel.Bioproducts, 1)

	if st := e.UpdateStatus(v, p, 1); st.Ruined || p.LastSubjectID != "StnSciExperiment5@MunInSpaceLow" {
		t.Fatalf("first pass should only record subject: %+v %q", st, p.LastSubjectID)
	}
	v.Altitude = 100000
	st := e.UpdateStatus(v, p, 2)
	if !st.Ruined {
		t.Fatalf("expected ruin on relocation")
	}
	for _, r := range vessel.Resources {
		if p.Capacity(r) != 0 || p.Amount(r) != 0 {
			t.Fatalf("%s not emptied: %+v", r, p)
		}
	}
	if len(st.Notices) != 1 || st.Notices[0].Text != "Location changed mid-experiment! Microgravity Biology Experiment ruined." {
		t.Fatalf("notices: %+v", st.Notices)
	}
	if p.LastSubjectID != "StnSciExperiment5@MunInSpaceHigh" {
		t.Fatalf("last subject: %q", p.LastSubjectID)
	}
}

func TestUpdateStatusEmptyPoolsSurviveRelocation(t *testing.T) {
	e := testEngine(t)
	v := orbitingMun("StnSciLab")
	p := &vessel.PayloadInstance{PartID: "p1", TypeID: "StnSciExperiment1"}
	e.Start(v, p)
	e.UpdateStatus(v, p, 1)
	v.Body = "Minmus"
	if st := e.UpdateStatus(v, p, 2); st.Ruined {
		t.Fatalf("empty pools should not be ruined")
	}
	if p.Capacity(vessel.Eurekas) != 20 {
		t.Fatalf("capacity changed: %+v", p.Eurekas)
	}
}

func TestUpdateStatusFinalizesAndWarns(t *testing.T) {
	e := testEngine(t)
	v := orbitingMun("StnSciLab")
	p := &vessel.PayloadInstance{PartID: "p1", TypeID: "StnSciExperiment1"}
	e.Start(v, p)
	p.Produce(vessel.Eurekas, 5)

	v.Parts = nil
	st := e.UpdateStatus(v, p, 3)
	if len(st.Notices) != 1 || st.Notices[0].Kind != NoticeDetached ||
		!strings.Contains(st.Notices[0].Text, "has detached from the station without being finalized.") {
		t.Fatalf("expected detached warning: %+v", st.Notices)
	}

	p.Data = []string{"StnSciExperiment1@MunInSpaceLow"}
	st = e.UpdateStatus(v, p, 4)
	if !st.Completed || p.CompletedAt != 4 {
		t.Fatalf("completion not stamped: %+v %v", st, p.CompletedAt)
	}
	if p.Capacity(vessel.Eurekas) != 0 {
		t.Fatalf("research should stop after finalization")
	}
	if st := e.UpdateStatus(v, p, 5); st.Completed || p.CompletedAt != 4 {
		t.Fatalf("completion should be stamped once")
	}
}

func TestUpdateStatusResetsShortBioproducts(t *testing.T) {
	e := testEngine(t)
	v := orbitingMun("StnSciLab", "StnSciZoo")
	p := &vessel.PayloadInstance{PartID: "p1", TypeID: "StnSciExperiment5"}
	e.Start(v, p)
	p.Produce(vessel.Bioproducts, 2)
	p.Data = []string{"StnSciExperiment5@MunInSpaceLow"}
	st := e.UpdateStatus(v, p, 1)
	if !st.Reset || p.HasData() || p.Capacity(vessel.Bioproducts) != 0 {
		t.Fatalf("expected reset: %+v %+v", st, p)
	}
}

func TestUpdateStatusStopsInoperableBioproducts(t *testing.T) {
	e := testEngine(t)
	v := orbitingMun("StnSciLab", "StnSciZoo")
	p := &vessel.PayloadInstance{PartID: "p1", TypeID: "StnSciExperiment5"}
	e.Start(v, p)
	p.Produce(vessel.Bioproducts, 1)
	p.Inoperable = true
	e.UpdateStatus(v, p, 1)
	if p.Capacity(vessel.Bioproducts) != 0 {
		t.Fatalf("bioproducts should stop on inoperable part")
	}
}

func TestInfo(t *testing.T) {
	got := Info(catalogs.Requirements{Eurekas: 30, Kuarqs: 50, KuarqHalflife: 3})
	want := strings.Join([]string{
		"Eurekas required: 30",
		"Kuarqs required: 50",
		"Kuarq decay halflife: 3 seconds",
		"Production required: 10.31 kuarq/s",
		"Requires a TH-NKR Research Lab",
		"Requires 11 D-ZZY Cyclotrons",
	}, "\n")
	if got != want {
		t.Fatalf("info:\n%s\nwant:\n%s", got, want)
	}
	if got := Info(catalogs.Requirements{Kuarqs: 20}); !strings.Contains(got, "Requires a D-ZZY Cyclotron") {
		t.Fatalf("info without halflife: %q", got)
	}
}
