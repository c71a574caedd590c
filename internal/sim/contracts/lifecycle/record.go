package lifecycle

import (
	"fmt"
	"strconv"
	"strings"

	"stationscience.dev/internal/sim/contracts/objective"
	"stationscience.dev/internal/sim/contracts/reward"
)

// Record is the persisted form of a contract: a flat string map, so a
// malformed value can be dropped without losing the rest.
type Record map[string]string

const (
	keyID             = "id"
	keyState          = "state"
	keyExperimentType = "experimentType"
	keyTargetBody     = "targetBody"
	keyValue          = "value"
	keyPrestige       = "prestige"
	keyFirstTime      = "firstTime"

	keyScience           = "science"
	keyFundsAdvance      = "fundsAdvance"
	keyFundsReward       = "fundsReward"
	keyFundsFailure      = "fundsFailure"
	keyReputation        = "reputation"
	keyReputationFailure = "reputationFailure"
	keyDeadlineYears     = "deadlineYears"

	keyOfferedAt   = "offeredAt"
	keyAcceptedAt  = "acceptedAt"
	keyDeadlineAt  = "deadlineAt"
	keyExpiresAt   = "expiresAt"
	keyFinishedAt  = "finishedAt"
	keyAdvancePaid = "advancePaid"
	keySettled     = "settled"

	keyLaunched    = "launched"
	keyInPlace     = "inPlace"
	keyRecovered   = "recovered"
	keyLaunchedAt  = "launchedAt"
	keyCompletedAt = "completedAt"
	keyRecoveredAt = "recoveredAt"
)

func fstr(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

func (r Record) num(key string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(r[key]), 64)
	if err != nil {
		return 0
	}
	return f
}

func (r Record) flag(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(r[key]))
	return err == nil && v
}

// Save captures a contract's identifiers, value, rewards, times and
// objective stamps.
func (b *Book) Save(c *Contract) Record {
	rec := Record{
		keyID:             c.ID,
		keyState:          string(c.State),
		keyExperimentType: c.Payload.ID,
		keyTargetBody:     c.Location.ID,
		keyValue:          fstr(c.Value),
		keyPrestige:       c.Prestige,
		keyFirstTime:      strconv.FormatBool(c.FirstTime),

		keyScience:           fstr(c.Rewards.Science),
		keyFundsAdvance:      fstr(c.Rewards.FundsAdvance),
		keyFundsReward:       fstr(c.Rewards.FundsReward),
		keyFundsFailure:      fstr(c.Rewards.FundsFailure),
		keyReputation:        fstr(c.Rewards.Reputation),
		keyReputationFailure: fstr(c.Rewards.ReputationFailure),
		keyDeadlineYears:     fstr(c.Rewards.DeadlineYears),

		keyOfferedAt:   fstr(c.OfferedAt),
		keyAcceptedAt:  fstr(c.AcceptedAt),
		keyDeadlineAt:  fstr(c.DeadlineAt),
		keyExpiresAt:   fstr(c.ExpiresAt),
		keyFinishedAt:  fstr(c.FinishedAt),
		keyAdvancePaid: strconv.FormatBool(c.AdvancePaid),
		keySettled:     strconv.FormatBool(c.Settled),
	}
	if m := c.Objective; m != nil {
		rec[keyLaunched] = strconv.FormatBool(m.IsLaunched)
		rec[keyInPlace] = strconv.FormatBool(m.IsInPlace)
		rec[keyRecovered] = strconv.FormatBool(m.IsRecovered)
		rec[keyLaunchedAt] = fstr(m.LaunchedAt)
		rec[keyCompletedAt] = fstr(m.CompletedAt)
		rec[keyRecoveredAt] = fstr(m.RecoveredAt)
	}
	return rec
}

// Load rebuilds a contract, resolving its payload type and location against
// the current catalogs. Malformed numbers load as zero.
func (b *Book) Load(rec Record) (*Contract, error) {
	id := rec[keyID]
	if id == "" {
		return nil, fmt.Errorf("%w: missing contract id", ErrUnresolvedIdentifier)
	}
	pt, ok := b.cat.Payloads.ByID[rec[keyExperimentType]]
	if !ok {
		return nil, fmt.Errorf("%w: experiment type %q", ErrUnresolvedIdentifier, rec[keyExperimentType])
	}
	loc, ok := b.cat.Locations.Lookup(rec[keyTargetBody])
	if !ok {
		return nil, fmt.Errorf("%w: target body %q", ErrUnresolvedIdentifier, rec[keyTargetBody])
	}
	st := State(rec[keyState])
	if !st.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrBadState, rec[keyState])
	}
	c := &Contract{
		ID:        id,
		Payload:   pt,
		Location:  loc,
		Value:     rec.num(keyValue),
		Prestige:  rec[keyPrestige],
		FirstTime: rec.flag(keyFirstTime),
		Rewards: reward.Amounts{
			Science:           rec.num(keyScience),
			FundsAdvance:      rec.num(keyFundsAdvance),
			FundsReward:       rec.num(keyFundsReward),
			FundsFailure:      rec.num(keyFundsFailure),
			Reputation:        rec.num(keyReputation),
			ReputationFailure: rec.num(keyReputationFailure),
			DeadlineYears:     rec.num(keyDeadlineYears),
		},
		State:       st,
		OfferedAt:   rec.num(keyOfferedAt),
		AcceptedAt:  rec.num(keyAcceptedAt),
		DeadlineAt:  rec.num(keyDeadlineAt),
		ExpiresAt:   rec.num(keyExpiresAt),
		FinishedAt:  rec.num(keyFinishedAt),
		AdvancePaid: rec.flag(keyAdvancePaid),
		Settled:     rec.flag(keySettled),
	}
	switch st {
	case StateOffered, StateDeclined, StateWithdrawn:
	default:
		m := objective.New(pt.ID, loc.ID, b.cfg.Home, c.AcceptedAt)
		m.IsLaunched = rec.flag(keyLaunched)
		m.IsInPlace = rec.flag(keyInPlace)
		m.IsRecovered = rec.flag(keyRecovered)
		m.LaunchedAt = rec.num(keyLaunchedAt)
		m.CompletedAt = rec.num(keyCompletedAt)
		m.RecoveredAt = rec.num(keyRecoveredAt)
		c.Objective = m
	}
	return c, nil
}
