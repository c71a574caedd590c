package candidates

import (
	"errors"
	"math"
	"testing"

	"stationscience.dev/internal/sim/catalogs"
	"stationscience.dev/internal/sim/contracts/reward"
)

type fixedRoll struct {
	v     float64
	calls int
}

func (r *fixedRoll) Float64() float64 {
	r.calls++
	return r.v
}

func payload(id string, challenge float64, prereqs ...string) catalogs.PayloadType {
	return catalogs.PayloadType{ID: id, Title: id, Challenge: challenge, Prereqs: prereqs}
}

func body(id string, challenge float64) catalogs.Location {
	return catalogs.Location{ID: id, Challenge: challenge}
}

func TestWeightKernel(t *testing.T) {
	if got := Weight(10, 10); math.Abs(got-1) > 1e-12 {
		t.Fatalf("weight at xp: %v", got)
	}
	for _, v := range []float64{5, 20} {
		if got := Weight(v, 10); math.Abs(got-0.5) > 0.001 {
			t.Fatalf("weight at %v: got %v want ~0.5", v, got)
		}
	}
	if Weight(40, 10) >= Weight(20, 10) {
		t.Fatalf("weight should fall off with distance")
	}
}

func TestTargetChallengeFloor(t *testing.T) {
	if got := TargetChallenge(0, 1); got != 0.5 {
		t.Fatalf("floor: %v", got)
	}
	if got := TargetChallenge(8, 0.25); got != 2 {
		t.Fatalf("trivial: %v", got)
	}
}

func TestEnumerateOrderAndTaken(t *testing.T) {
	in := Input{
		RequesterLevel:     1,
		PrestigeMultiplier: 1,
		PayloadTypes:       []catalogs.PayloadType{payload("A", 1), payload("B", 2)},
		Locations:          []catalogs.Location{body("Mun", 3), body("Duna", 6)},
		Taken:              func(p Pair) bool { return p == Pair{PayloadType: "A", Location: "Duna"} },
	}
	got := Enumerate(in)
	want := []Pair{{"A", "Mun"}, {"B", "Mun"}, {"B", "Duna"}}
	if len(got) != len(want) {
		t.Fatalf("candidates: %+v", got)
	}
	for i, c := range got {
		if c.Pair() != want[i] {
			t.Fatalf("candidate %d: got %+v want %+v", i, c.Pair(), want[i])
		}
	}
	if got[2].Value != 12 {
		t.Fatalf("value: %v", got[2].Value)
	}
}

func TestPickCumulative(t *testing.T) {
	cands := []Candidate{{Weight: 1}, {Weight: 2}, {Weight: 1}}
	cases := []struct {
		roll float64
		want int
	}{
		{0, 0},
		{0.25, 0},
		{0.26, 1},
		{0.75, 1},
		{0.99, 2},
		{1.5, 2},
	}
	for _, tc := range cases {
		if got := Pick(cands, tc.roll); got != tc.want {
			t.Fatalf("roll %v: got %d want %d", tc.roll, got, tc.want)
		}
	}
	if Pick(nil, 0.5) != -1 {
		t.Fatalf("empty pick")
	}
}

func TestSingleCandidateAlwaysChosen(t *testing.T) {
	in := Input{
		RequesterLevel:     1,
		PrestigeMultiplier: 1,
		PayloadTypes:       []catalogs.PayloadType{payload("A", 100)},
		Locations:          []catalogs.Location{body("Eeloo", 13)},
	}
	for _, roll := range []float64{0, 0.3, 0.999999} {
		g := &Generator{Curves: reward.DefaultCurves(), Roller: &fixedRoll{v: roll}}
		c, err := g.Generate(in)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if c.Pair() != (Pair{"A", "Eeloo"}) {
			t.Fatalf("roll %v picked %+v", roll, c.Pair())
		}
	}
}

func TestGenerateNoCandidatesDoesNotDraw(t *testing.T) {
	r := &fixedRoll{v: 0.5}
	g := &Generator{Curves: reward.DefaultCurves(), Roller: r}
	_, err := g.Generate(Input{
		RequesterLevel: 1, PrestigeMultiplier: 1,
		PayloadTypes: []catalogs.PayloadType{payload("A", 1)},
		Locations:    []catalogs.Location{body("Mun", 3)},
		Taken:        func(Pair) bool { return true },
	})
	if !errors.Is(err, ErrNoEligibleCandidates) {
		t.Fatalf("expected no candidates, got %v", err)
	}
	if r.calls != 0 {
		t.Fatalf("roller used %d times", r.calls)
	}
}

func TestGenerateEndToEndRewards(t *testing.T) {
	g := &Generator{Curves: reward.DefaultCurves(), Roller: &fixedRoll{v: 0.4}}
	in := Input{
		RequesterLevel:     10,
		PrestigeMultiplier: 1,
		PayloadTypes:       []catalogs.PayloadType{payload("StnSciExperiment1", 1)},
		Locations:          []catalogs.Location{body("Jool", 10)},
	}
	c, err := g.Generate(in)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if c.Value != 10 || math.Abs(c.Weight-1) > 1e-12 {
		t.Fatalf("value=%v weight=%v", c.Value, c.Weight)
	}
	if !c.FirstTime || c.Rewards.Science != 150 {
		t.Fatalf("rewards: %+v first=%v", c.Rewards, c.FirstTime)
	}
	if c.Rewards.FundsReward != 900000 {
		t.Fatalf("first-time funds: %v", c.Rewards.FundsReward)
	}

	in.CompletedBefore = func(Pair) bool { return true }
	c, err = g.Generate(in)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if c.FirstTime || c.Rewards.FundsReward != 30000 {
		t.Fatalf("repeat funds: %v first=%v", c.Rewards.FundsReward, c.FirstTime)
	}
}

func TestUnlocked(t *testing.T) {
	types := []catalogs.PayloadType{
		payload("E1", 1, "E1", "Lab"),
		payload("E2", 2, "E2", "Lab", "Cyclo"),
		payload("E0", 0),
	}
	have := map[string]bool{"E1": true, "E2": true, "Lab": true}
	got := Unlocked(types, func(n string) bool { return have[n] })
	if len(got) != 1 || got[0].ID != "E1" {
		t.Fatalf("unlocked: %+v", got)
	}
}
