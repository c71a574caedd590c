package experiment

import (
	"math"

	"stationscience.dev/internal/sim/catalogs"
	"stationscience.dev/internal/sim/vessel"
)

// Decay applies exponential half-life decay over dt seconds and returns the
// new amount and the average loss rate per second.
func Decay(amount, halflife, dt float64) (float64, float64) {
	if dt <= 0 || halflife <= 0 || amount <= 0 {
		return amount, 0
	}
	f := math.Pow(0.5, dt/halflife)
	return amount * f, amount * (1 - f) / dt
}

// round2 rounds half to even.
func round2(x float64) float64 { return math.RoundToEven(x*100) / 100 }

// Finished is the completion predicate. The bioproduct term carries a small
// slack for accumulation error on the slowest pool.
func Finished(p *vessel.PayloadInstance, req catalogs.Requirements) bool {
	if p == nil {
		return false
	}
	return round2(p.Amount(vessel.Eurekas)) >= req.Eurekas &&
		round2(p.Amount(vessel.Kuarqs)) >= req.Kuarqs &&
		round2(p.Amount(vessel.Bioproducts)) >= req.Bioproducts-0.001
}

// ProductionRequired is the kuarq production rate needed to hold a full pool
// against decay.
func ProductionRequired(req catalogs.Requirements) float64 {
	if req.Kuarqs <= 0 {
		return 0
	}
	if req.KuarqHalflife <= 0 {
		return 0.01
	}
	return req.Kuarqs * (1 - math.Pow(0.5, 1/req.KuarqHalflife))
}
