package audit

import (
	"testing"

	"stationscience.dev/internal/sim/catalogs"
	"stationscience.dev/internal/sim/contracts/lifecycle"
	"stationscience.dev/internal/sim/contracts/objective"
	"stationscience.dev/internal/sim/progression"
)

func testContract() *lifecycle.Contract {
	return &lifecycle.Contract{
		ID:       "C000007",
		Payload:  catalogs.PayloadType{ID: "StnSciExperiment1"},
		Location: catalogs.Location{ID: "Mun"},
		Value:    3,
		State:    lifecycle.StateActive,
	}
}

func TestBuildOutcomeEventTypes(t *testing.T) {
	c := testContract()
	cases := []struct {
		from, to lifecycle.State
		want     string
		actor    string
	}{
		{lifecycle.StateOffered, lifecycle.StateActive, EventAccept, "PLAYER"},
		{lifecycle.StateActive, lifecycle.StateActive, EventStage, "STATION"},
		{lifecycle.StateOffered, lifecycle.StateDeclined, EventDecline, "PLAYER"},
		{lifecycle.StateActive, lifecycle.StateCancelled, EventCancel, "PLAYER"},
		{lifecycle.StateActive, lifecycle.StateCompleted, EventComplete, "STATION"},
		{lifecycle.StateActive, lifecycle.StateFailed, EventFail, "STATION"},
		{lifecycle.StateOffered, lifecycle.StateWithdrawn, EventWithdraw, "STATION"},
	}
	for _, tc := range cases {
		e, ok := BuildOutcome(lifecycle.Outcome{Contract: c, From: tc.from, To: tc.to})
		if !ok || e.EventType != tc.want || e.Actor != tc.actor {
			t.Fatalf("%s->%s: got %+v ok=%v", tc.from, tc.to, e, ok)
		}
		if e.Fields["contract_id"] != "C000007" {
			t.Fatalf("fields: %+v", e.Fields)
		}
	}
	if _, ok := BuildOutcome(lifecycle.Outcome{}); ok {
		t.Fatalf("empty outcome should not audit")
	}
}

func TestBuildOutcomePayoutAndStages(t *testing.T) {
	e, _ := BuildOutcome(lifecycle.Outcome{
		Contract:    testContract(),
		From:        lifecycle.StateActive,
		To:          lifecycle.StateCompleted,
		Reason:      lifecycle.ReasonRecovered,
		Payout:      progression.Delta{Science: 80, XP: 1.5},
		Transitions: []objective.Transition{{Stage: objective.Recovered, At: 900, Terminal: true}},
	})
	p, ok := e.Fields["payout"].(map[string]any)
	if !ok || p["science"] != 80.0 || p["xp"] != 1.5 {
		t.Fatalf("payout: %+v", e.Fields["payout"])
	}
	st, ok := e.Fields["stages"].([]map[string]any)
	if !ok || len(st) != 1 || st[0]["stage"] != "RECOVERED" {
		t.Fatalf("stages: %+v", e.Fields["stages"])
	}
	if e.Reason != lifecycle.ReasonRecovered {
		t.Fatalf("reason: %q", e.Reason)
	}

	noPay, _ := BuildOutcome(lifecycle.Outcome{Contract: testContract(), From: lifecycle.StateOffered, To: lifecycle.StateDeclined})
	if _, ok := noPay.Fields["payout"]; ok {
		t.Fatalf("zero payout should be omitted")
	}
}

func TestBuildOfferFields(t *testing.T) {
	f := BuildOfferFields(testContract())
	if f["target_body"] != "Mun" || f["value"] != 3.0 {
		t.Fatalf("fields: %+v", f)
	}
}
