package objective

import (
	"testing"

	"stationscience.dev/internal/sim/vessel"
)

const exp = "StnSciExperiment1"

func padVessel() *vessel.Vessel {
	return &vessel.Vessel{
		ID: "v1", Body: "Kerbin", Situation: vessel.Prelaunch,
		Payloads: []*vessel.PayloadInstance{{PartID: "p1", TypeID: exp}},
	}
}

func TestLaunchOnSituationChange(t *testing.T) {
	m := New(exp, "Mun", "Kerbin", 100)
	v := padVessel()

	if tr := m.HandleSituationChange(150, v, vessel.Orbiting, vessel.Flying); tr != nil || v.Payloads[0].LaunchedAt != 0 {
		t.Fatalf("non-grounded origin should be ignored")
	}
	tr := m.HandleSituationChange(150, v, vessel.Prelaunch, vessel.Flying)
	if len(tr) != 1 || tr[0].Stage != Launched || tr[0].At != 150 {
		t.Fatalf("transitions: %+v", tr)
	}
	if !m.IsLaunched || m.LaunchedAt != 150 || v.Payloads[0].LaunchedAt != 150 {
		t.Fatalf("machine: %+v payload: %+v", m, v.Payloads[0])
	}
	if tr := m.HandleSituationChange(160, v, vessel.Landed, vessel.SubOrbital); tr != nil {
		t.Fatalf("launch reported twice: %+v", tr)
	}
}

func TestLaunchIgnoresOtherBodiesAndOldPods(t *testing.T) {
	m := New(exp, "Mun", "Kerbin", 100)
	v := padVessel()
	v.Body = "Mun"
	if tr := m.HandleSituationChange(150, v, vessel.Landed, vessel.Flying); tr != nil {
		t.Fatalf("launch off the home world should be ignored")
	}

	old := padVessel()
	old.Payloads[0].LaunchedAt = 50
	if tr := m.HandleLaunch(150, old); tr != nil || m.IsLaunched {
		t.Fatalf("pod launched before acceptance should not count")
	}
	if old.Payloads[0].LaunchedAt != 50 {
		t.Fatalf("existing launch stamp overwritten")
	}
}

func TestEarlyLiftoffStampsButDoesNotLaunch(t *testing.T) {
	m := New(exp, "Mun", "Kerbin", 100)
	v := padVessel()
	if tr := m.HandleSituationChange(90, v, vessel.Prelaunch, vessel.Flying); tr != nil {
		t.Fatalf("event before acceptance: %+v", tr)
	}
	if v.Payloads[0].LaunchedAt != 90 || m.IsLaunched {
		t.Fatalf("payload should be stamped, machine untouched")
	}
}

func TestInPlaceRequiresLaunched(t *testing.T) {
	m := New(exp, "Mun", "Kerbin", 100)
	v := &vessel.Vessel{ID: "v1", Body: "Mun", Situation: vessel.Orbiting, Payloads: []*vessel.PayloadInstance{{
		PartID: "p1", TypeID: exp, CompletedAt: 200, Data: []string{exp + "@MunInSpaceLow"},
	}}}
	if tr := m.Reconcile([]*vessel.Vessel{v}); len(tr) != 0 || m.IsInPlace {
		t.Fatalf("in-place before launch must be ignored: %+v", tr)
	}

	v.Payloads[0].LaunchedAt = 150
	tr := m.Reconcile([]*vessel.Vessel{v})
	if len(tr) != 2 || tr[0].Stage != Launched || tr[1].Stage != InPlace || tr[1].At != 200 {
		t.Fatalf("transitions: %+v", tr)
	}
	if !(m.AcceptedAt <= m.LaunchedAt && m.LaunchedAt <= m.CompletedAt) {
		t.Fatalf("ordering: %+v", m)
	}
}

func TestInPlaceNeedsEvidenceAtTarget(t *testing.T) {
	m := New(exp, "Duna", "Kerbin", 100)
	v := &vessel.Vessel{ID: "v1", Body: "Mun", Payloads: []*vessel.PayloadInstance{{
		PartID: "p1", TypeID: exp, LaunchedAt: 150, CompletedAt: 200, Data: []string{exp + "@MunInSpaceLow"},
	}}}
	m.Reconcile([]*vessel.Vessel{v})
	if !m.IsLaunched || m.IsInPlace {
		t.Fatalf("wrong-location evidence accepted: %+v", m)
	}
	v.Payloads[0].Data = append(v.Payloads[0].Data, exp+"@DunaSrfLanded")
	m.Reconcile([]*vessel.Vessel{v})
	if m.IsInPlace {
		t.Fatalf("surface evidence accepted")
	}
}

func TestRecoveryCompletesOnce(t *testing.T) {
	m := New(exp, "Mun", "Kerbin", 100)
	snap := vessel.Snapshot{VesselID: "v1", Payloads: []vessel.RecoveredPayload{
		{TypeID: exp, Launched: "garbage", Completed: "200", Data: []string{exp + "@MunInSpaceLow"}},
		{TypeID: exp, Launched: "150", Completed: "200", Data: []string{exp + "@MunInSpaceHigh"}},
	}}
	tr := m.HandleRecovery(300, snap)
	if len(tr) != 3 || !tr[2].Terminal || tr[2].At != 300 {
		t.Fatalf("transitions: %+v", tr)
	}
	if m.LaunchedAt != 150 || m.CompletedAt != 200 || m.RecoveredAt != 300 || !m.Done() {
		t.Fatalf("machine: %+v", m)
	}
	if tr := m.HandleRecovery(400, snap); tr != nil {
		t.Fatalf("terminal reported twice: %+v", tr)
	}
}

func TestRecoveryRejectsStalePods(t *testing.T) {
	m := New(exp, "Mun", "Kerbin", 100)
	cases := []vessel.RecoveredPayload{
		{TypeID: exp, Launched: "50", Completed: "200", Data: []string{exp + "@MunInSpaceLow"}},
		{TypeID: exp, Launched: "150", Completed: "120", Data: []string{exp + "@MunInSpaceLow"}},
		{TypeID: exp, Launched: "150", Completed: "200", Data: []string{exp + "@MinmusInSpaceLow"}},
		{TypeID: "Other", Launched: "150", Completed: "200", Data: []string{exp + "@MunInSpaceLow"}},
	}
	for i, rp := range cases {
		if tr := m.HandleRecovery(300, vessel.Snapshot{Payloads: []vessel.RecoveredPayload{rp}}); tr != nil {
			t.Fatalf("case %d accepted: %+v", i, tr)
		}
	}
}

func TestRecoveryKeepsOrderingWhenEarlyStagesKnown(t *testing.T) {
	m := New(exp, "Mun", "Kerbin", 100)
	m.IsLaunched, m.LaunchedAt = true, 150
	m.IsInPlace, m.CompletedAt = true, 400
	tr := m.HandleRecovery(300, vessel.Snapshot{Payloads: []vessel.RecoveredPayload{
		{TypeID: exp, Launched: "150", Completed: "400", Data: []string{exp + "@MunInSpaceLow"}},
	}})
	if len(tr) != 1 || m.RecoveredAt != 400 {
		t.Fatalf("recovered at %v, transitions %+v", m.RecoveredAt, tr)
	}
}

func TestTitles(t *testing.T) {
	if got := Title("Fundamental Particles Experiment", "the Mun"); got != "Complete Fundamental Particles Experiment in orbit around the Mun" {
		t.Fatalf("title: %q", got)
	}
	if LaunchTitle("") != "Launch new experiment pod" || InPlaceTitle("Duna") != "Complete in orbit around Duna" || RecoverTitle("Kerbin") != "Recover at Kerbin" {
		t.Fatalf("stage titles")
	}
}
