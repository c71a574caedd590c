package lifecycle

import (
	"stationscience.dev/internal/sim/catalogs"
	"stationscience.dev/internal/sim/contracts/candidates"
	"stationscience.dev/internal/sim/contracts/objective"
	"stationscience.dev/internal/sim/contracts/reward"
)

type State string

const (
	StateOffered   State = "OFFERED"
	StateActive    State = "ACTIVE"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
	StateDeclined  State = "DECLINED"
	StateWithdrawn State = "WITHDRAWN"
)

func (s State) Valid() bool {
	switch s {
	case StateOffered, StateActive, StateCompleted, StateFailed, StateCancelled, StateDeclined, StateWithdrawn:
		return true
	}
	return false
}

// Open is true for states that reserve their (payload type, location) pair.
func (s State) Open() bool { return s == StateOffered || s == StateActive }

const (
	PrestigeTrivial     = "TRIVIAL"
	PrestigeSignificant = "SIGNIFICANT"
	PrestigeExceptional = "EXCEPTIONAL"
)

type Contract struct {
	ID        string
	Payload   catalogs.PayloadType
	Location  catalogs.Location
	Value     float64
	Prestige  string
	FirstTime bool
	Rewards   reward.Amounts

	State      State
	OfferedAt  float64
	AcceptedAt float64
	DeadlineAt float64
	ExpiresAt  float64
	FinishedAt float64

	AdvancePaid bool
	Settled     bool

	Objective *objective.Machine
}

func (c *Contract) Pair() candidates.Pair {
	return candidates.Pair{PayloadType: c.Payload.ID, Location: c.Location.ID}
}

func (c *Contract) Title() string {
	return "Perform " + c.Payload.Title + " in orbit around " + c.Location.DisplayName()
}

func (c *Contract) Synopsis(home string) string {
	return "We need you to complete " + c.Payload.Title + " in orbit around " + c.Location.DisplayName() +
		", and return it to " + home + " for recovery"
}

func (c *Contract) CompletedMessage() string {
	return "You have successfully performed " + c.Payload.Title + " in orbit around " + c.Location.DisplayName()
}

// StageTitles lists the objective stages with their completion flags.
func (c *Contract) StageTitles(home string) []StageStatus {
	var done [3]bool
	if c.Objective != nil {
		done = c.Objective.Stages()
	}
	return []StageStatus{
		{Title: objective.LaunchTitle(c.Payload.Title), Done: done[0]},
		{Title: objective.InPlaceTitle(c.Location.DisplayName()), Done: done[1]},
		{Title: objective.RecoverTitle(home), Done: done[2]},
	}
}

type StageStatus struct {
	Title string
	Done  bool
}
