package candidates

import (
	"errors"
	"math"

	"stationscience.dev/internal/sim/catalogs"
	"stationscience.dev/internal/sim/contracts/reward"
)

// ErrNoEligibleCandidates means every pair is taken or has no challenge.
var ErrNoEligibleCandidates = errors.New("no eligible contract candidates")

// Kernel width: a contract twice or half the target challenge weighs 0.5.
const sigma = 2 / 2.355

// Pair identifies a (payload type, location) combination.
type Pair struct {
	PayloadType string
	Location    string
}

// Candidate is one weighted contract option.
type Candidate struct {
	Payload   catalogs.PayloadType
	Location  catalogs.Location
	Value     float64
	Weight    float64
	FirstTime bool
	Rewards   reward.Amounts
}

func (c Candidate) Pair() Pair { return Pair{PayloadType: c.Payload.ID, Location: c.Location.ID} }

// Roller yields uniform values in [0,1). *rand.Rand satisfies it.
type Roller interface {
	Float64() float64
}

// Input is what one generation pass draws from.
type Input struct {
	RequesterLevel     float64
	PrestigeMultiplier float64
	// PayloadTypes and Locations are enumerated in the order given.
	PayloadTypes    []catalogs.PayloadType
	Locations       []catalogs.Location
	Taken           func(Pair) bool
	CompletedBefore func(Pair) bool
}

// TargetChallenge scales the requester level by prestige, floored at 0.5.
func TargetChallenge(level, prestigeMultiplier float64) float64 {
	xp := level * prestigeMultiplier
	if xp < 0.5 || math.IsNaN(xp) {
		xp = 0.5
	}
	return xp
}

// Weight is a log-normal kernel centered on xp.
func Weight(value, xp float64) float64 {
	if value <= 0 || xp <= 0 {
		return 0
	}
	d := math.Log2(value / xp)
	return math.Exp(-(d * d) / (2 * sigma * sigma))
}

// Unlocked keeps payload types whose prerequisites are all unlocked.
func Unlocked(types []catalogs.PayloadType, unlocked func(string) bool) []catalogs.PayloadType {
	var out []catalogs.PayloadType
	for _, t := range types {
		if t.Challenge <= 0 {
			continue
		}
		ok := true
		for _, req := range t.Prereqs {
			if !unlocked(req) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, t)
		}
	}
	return out
}

// Enumerate lists untaken pairs payload-major, location-minor with weights set.
func Enumerate(in Input) []Candidate {
	xp := TargetChallenge(in.RequesterLevel, in.PrestigeMultiplier)
	var out []Candidate
	for _, pt := range in.PayloadTypes {
		if pt.Challenge <= 0 {
			continue
		}
		for _, loc := range in.Locations {
			if loc.Challenge <= 0 {
				continue
			}
			pair := Pair{PayloadType: pt.ID, Location: loc.ID}
			if in.Taken != nil && in.Taken(pair) {
				continue
			}
			value := pt.Challenge * loc.Challenge
			out = append(out, Candidate{
				Payload:  pt,
				Location: loc,
				Value:    value,
				Weight:   Weight(value, xp),
			})
		}
	}
	return out
}

// Pick returns the index of the candidate selected by roll in [0,1).
// Cumulative weights are walked in order; rounding fall-through selects the last.
func Pick(cands []Candidate, roll float64) int {
	if len(cands) == 0 {
		return -1
	}
	var total float64
	for _, c := range cands {
		total += c.Weight
	}
	if roll < 0 {
		roll = 0
	}
	target := roll * total
	var acc float64
	for i, c := range cands {
		acc += c.Weight
		if target <= acc {
			return i
		}
	}
	return len(cands) - 1
}

// Generator turns the weighted candidates into a priced offer.
type Generator struct {
	Curves reward.Curves
	Roller Roller
}

// Generate selects one candidate and attaches its reward amounts. It draws
// from the roller exactly once, and only when a candidate exists.
func (g *Generator) Generate(in Input) (Candidate, error) {
	cands := Enumerate(in)
	if len(cands) == 0 {
		return Candidate{}, ErrNoEligibleCandidates
	}
	c := cands[Pick(cands, g.Roller.Float64())]
	c.FirstTime = in.CompletedBefore == nil || !in.CompletedBefore(c.Pair())
	c.Rewards = g.Curves.Evaluate(c.Value, c.FirstTime)
	return c, nil
}
