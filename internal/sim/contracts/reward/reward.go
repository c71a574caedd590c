package reward

// Curve is a linear reward function of a contract's challenge value.
type Curve struct {
	Intercept           float64 `yaml:"intercept" json:"intercept"`
	Slope               float64 `yaml:"slope" json:"slope"`
	AdvanceFraction     float64 `yaml:"advance_fraction" json:"advance_fraction"`
	FailureFraction     float64 `yaml:"failure_fraction" json:"failure_fraction"`
	FirstTimeMultiplier float64 `yaml:"first_time_multiplier" json:"first_time_multiplier"`
}

func (c Curve) Reward(value float64, firstTime bool) float64 {
	r := c.Intercept + value*c.Slope
	if firstTime {
		r *= c.FirstTimeMultiplier
	}
	return r
}

func (c Curve) Advance(value float64, firstTime bool) float64 {
	return c.Reward(value, firstTime) * c.AdvanceFraction
}

func (c Curve) Failure(value float64, firstTime bool) float64 {
	return c.Reward(value, firstTime) * c.FailureFraction
}

// Curves holds the four independent curves used when a contract is generated.
type Curves struct {
	Science    Curve `yaml:"science" json:"science"`
	Funds      Curve `yaml:"funds" json:"funds"`
	Reputation Curve `yaml:"reputation" json:"reputation"`
	Deadline   Curve `yaml:"deadline" json:"deadline"`
}

// Amounts are the frozen reward numbers of a single contract.
type Amounts struct {
	Science           float64 `json:"science"`
	FundsAdvance      float64 `json:"funds_advance"`
	FundsReward       float64 `json:"funds_reward"`
	FundsFailure      float64 `json:"funds_failure"`
	Reputation        float64 `json:"reputation"`
	ReputationFailure float64 `json:"reputation_failure"`
	DeadlineYears     float64 `json:"deadline_years"`
}

func (cs Curves) Evaluate(value float64, firstTime bool) Amounts {
	return Amounts{
		Science:           cs.Science.Reward(value, firstTime),
		FundsAdvance:      cs.Funds.Advance(value, firstTime),
		FundsReward:       cs.Funds.Reward(value, firstTime),
		FundsFailure:      cs.Funds.Failure(value, firstTime),
		Reputation:        cs.Reputation.Reward(value, firstTime),
		ReputationFailure: cs.Reputation.Failure(value, firstTime),
		DeadlineYears:     cs.Deadline.Reward(value, firstTime),
	}
}

func DefaultCurves() Curves {
	return Curves{
		Science:    Curve{Intercept: 50, Slope: 10, FirstTimeMultiplier: 1},
		Funds:      Curve{Intercept: 10000, Slope: 2000, AdvanceFraction: 1.0 / 3.0, FailureFraction: 0.5, FirstTimeMultiplier: 30},
		Reputation: Curve{Intercept: 10, Slope: 1, FailureFraction: 1.5, FirstTimeMultiplier: 1},
		Deadline:   Curve{Intercept: 2, Slope: 0.1, FirstTimeMultiplier: 2},
	}
}
