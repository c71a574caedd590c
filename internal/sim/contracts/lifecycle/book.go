package lifecycle

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"stationscience.dev/internal/sim/catalogs"
	"stationscience.dev/internal/sim/contracts/candidates"
	"stationscience.dev/internal/sim/contracts/objective"
	"stationscience.dev/internal/sim/events"
	"stationscience.dev/internal/sim/progression"
	"stationscience.dev/internal/sim/tuning"
	"stationscience.dev/internal/sim/vessel"
)

var (
	ErrContractCap          = fmt.Errorf("contract cap reached: %w", candidates.ErrNoEligibleCandidates)
	ErrRequirementsUnmet    = errors.New("contract requirements not met")
	ErrUnresolvedIdentifier = errors.New("unresolved identifier")
	ErrUnknownContract      = errors.New("unknown contract")
	ErrBadState             = errors.New("bad contract state")
)

const (
	ReasonDeadlineElapsed = "DEADLINE_ELAPSED"
	ReasonOfferExpired    = "OFFER_EXPIRED"
	ReasonRecovered       = "RECOVERED"
)

// Progress is the read side of progression consumed by generation.
type Progress interface {
	Experience() float64
	ReputationLevel() float64
	IsUnlocked(name string) bool
	HasReached(body string) bool
	HomeOrbitReached() bool
}

// Outcome reports one contract change. Payout is the ledger change the
// caller must apply; stage-only progress has From == To.
type Outcome struct {
	Contract    *Contract
	From        State
	To          State
	Reason      string
	Payout      progression.Delta
	Transitions []objective.Transition
}

type Config struct {
	Contracts   tuning.ContractTuning
	YearSeconds float64
	Home        string
}

func ConfigFrom(t tuning.Tuning) Config {
	return Config{Contracts: t.Contracts, YearSeconds: t.YearSeconds, Home: t.HomeBody}
}

// Book owns every contract the service knows about, open and finished.
type Book struct {
	cfg    Config
	cat    *catalogs.Catalogs
	gen    *candidates.Generator
	logger *log.Logger

	byID   map[string]*Contract
	nextID uint64
}

func NewBook(cfg Config, cat *catalogs.Catalogs, roller candidates.Roller, logger *log.Logger) *Book {
	if logger == nil {
		logger = log.New(log.Writer(), "[contracts] ", log.LstdFlags)
	}
	return &Book{
		cfg:    cfg,
		cat:    cat,
		gen:    &candidates.Generator{Curves: cfg.Contracts.Rewards, Roller: roller},
		logger: logger,
		byID:   map[string]*Contract{},
	}
}

func (b *Book) newContractID() string {
	b.nextID++
	return fmt.Sprintf("C%06d", b.nextID)
}

func (b *Book) Get(id string) *Contract { return b.byID[id] }

// NextID reports the number of the last issued contract id.
func (b *Book) NextID() uint64 { return b.nextID }

// SetNextID raises the id counter. It never moves backwards.
func (b *Book) SetNextID(n uint64) {
	if n > b.nextID {
		b.nextID = n
	}
}

// Contracts returns all contracts ordered by id.
func (b *Book) Contracts() []*Contract {
	out := make([]*Contract, 0, len(b.byID))
	for _, c := range b.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (b *Book) inState(states ...State) []*Contract {
	var out []*Contract
	for _, c := range b.Contracts() {
		for _, s := range states {
			if c.State == s {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// OpenCount counts offered and active contracts.
func (b *Book) OpenCount() int { return len(b.inState(StateOffered, StateActive)) }

func (b *Book) Active() []*Contract { return b.inState(StateActive) }

// CompletedCount counts completed contracts for a pair.
func (b *Book) CompletedCount(payloadType, location string) int {
	n := 0
	for _, c := range b.byID {
		if c.State == StateCompleted && c.Payload.ID == payloadType && c.Location.ID == location {
			n++
		}
	}
	return n
}

func (b *Book) taken(p candidates.Pair) bool {
	for _, c := range b.byID {
		if c.State.Open() && c.Pair() == p {
			return true
		}
	}
	return false
}

// MeetRequirements is the global gate for generation.
func (b *Book) MeetRequirements(p Progress) bool {
	req := b.cfg.Contracts.Requirements
	if req.HomeOrbit && !p.HomeOrbitReached() {
		return false
	}
	for _, group := range req.AnyOf {
		ok := false
		for _, name := range group {
			if p.IsUnlocked(name) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Generate offers one new contract. The cap is checked before any random draw.
func (b *Book) Generate(p Progress, prestige string, now float64) (*Contract, error) {
	ct := b.cfg.Contracts
	if n := b.OpenCount(); n >= ct.MaxContracts {
		return nil, fmt.Errorf("%w (%d/%d)", ErrContractCap, n, ct.MaxContracts)
	}
	if !b.MeetRequirements(p) {
		return nil, ErrRequirementsUnmet
	}
	var locs []catalogs.Location
	for _, l := range b.cat.Locations.Bodies {
		if p.HasReached(l.ID) {
			locs = append(locs, l)
		}
	}
	cand, err := b.gen.Generate(candidates.Input{
		RequesterLevel:     p.Experience() + p.ReputationLevel()*ct.ReputationFactor,
		PrestigeMultiplier: ct.PrestigeMultiplier(prestige),
		PayloadTypes:       candidates.Unlocked(b.cat.Payloads.Types, p.IsUnlocked),
		Locations:          locs,
		Taken:              b.taken,
		CompletedBefore: func(pair candidates.Pair) bool {
			return b.CompletedCount(pair.PayloadType, pair.Location) > 0
		},
	})
	if err != nil {
		return nil, err
	}
	if prestige == "" {
		prestige = PrestigeSignificant
	}
	c := &Contract{
		ID:        b.newContractID(),
		Payload:   cand.Payload,
		Location:  cand.Location,
		Value:     cand.Value,
		Prestige:  prestige,
		FirstTime: cand.FirstTime,
		Rewards:   cand.Rewards,
		State:     StateOffered,
		OfferedAt: now,
	}
	if ct.OfferExpirySeconds > 0 {
		c.ExpiresAt = now + ct.OfferExpirySeconds
	}
	b.byID[c.ID] = c
	return c, nil
}

func (b *Book) lookup(id string, want State) (*Contract, error) {
	c := b.byID[id]
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContract, id)
	}
	if c.State != want {
		return nil, fmt.Errorf("%w: %s is %s", ErrBadState, id, c.State)
	}
	return c, nil
}

// Accept activates an offer, starts its objective and pays the advance.
func (b *Book) Accept(id string, now float64) (Outcome, error) {
	c, err := b.lookup(id, StateOffered)
	if err != nil {
		return Outcome{}, err
	}
	c.State = StateActive
	c.AcceptedAt = now
	c.DeadlineAt = now + c.Rewards.DeadlineYears*b.cfg.YearSeconds
	c.Objective = objective.New(c.Payload.ID, c.Location.ID, b.cfg.Home, now)
	out := Outcome{Contract: c, From: StateOffered, To: StateActive}
	if !c.AdvancePaid {
		c.AdvancePaid = true
		out.Payout = progression.Delta{Funds: c.Rewards.FundsAdvance}
	}
	return out, nil
}

func (b *Book) Decline(id string, now float64) (Outcome, error) {
	c, err := b.lookup(id, StateOffered)
	if err != nil {
		return Outcome{}, err
	}
	c.State = StateDeclined
	c.FinishedAt = now
	return Outcome{Contract: c, From: StateOffered, To: StateDeclined}, nil
}

// Cancel abandons an active contract with the failure penalty.
func (b *Book) Cancel(id string, now float64) (Outcome, error) {
	c, err := b.lookup(id, StateActive)
	if err != nil {
		return Outcome{}, err
	}
	return b.settle(c, StateCancelled, now, ""), nil
}

func (b *Book) settle(c *Contract, to State, now float64, reason string) Outcome {
	out := Outcome{Contract: c, From: c.State, To: to, Reason: reason}
	c.State = to
	c.FinishedAt = now
	if c.Settled {
		return out
	}
	c.Settled = true
	switch to {
	case StateCompleted:
		out.Payout = progression.Delta{
			Science:    c.Rewards.Science,
			Funds:      c.Rewards.FundsReward,
			Reputation: c.Rewards.Reputation,
			XP:         c.Value * b.cfg.Contracts.ProgressionFactor,
		}
	case StateFailed, StateCancelled:
		out.Payout = progression.Delta{
			Funds:      -c.Rewards.FundsFailure,
			Reputation: -c.Rewards.ReputationFailure,
		}
	}
	return out
}

func (b *Book) progress(c *Contract, tr []objective.Transition, now float64) []Outcome {
	if len(tr) == 0 {
		return nil
	}
	for _, t := range tr {
		if t.Terminal {
			o := b.settle(c, StateCompleted, max(now, t.At), ReasonRecovered)
			o.Transitions = tr
			return []Outcome{o}
		}
	}
	return []Outcome{{Contract: c, From: c.State, To: c.State, Transitions: tr}}
}

// Handle routes a vehicle lifecycle event to every active objective. A
// contract whose deadline passed before the event fails instead.
func (b *Book) Handle(ev events.Event, fleet *vessel.Fleet) []Outcome {
	var out []Outcome
	for _, c := range b.Active() {
		if c.DeadlineAt > 0 && ev.Time > c.DeadlineAt {
			out = append(out, b.settle(c, StateFailed, ev.Time, ReasonDeadlineElapsed))
			continue
		}
		if c.Objective == nil {
			continue
		}
		var tr []objective.Transition
		switch ev.Kind {
		case events.Launch:
			tr = c.Objective.HandleLaunch(ev.Time, fleet.Get(ev.VesselID))
		case events.SituationChange:
			tr = c.Objective.HandleSituationChange(ev.Time, fleet.Get(ev.VesselID), ev.From, ev.To)
		case events.Recovered:
			if ev.Snapshot != nil {
				tr = c.Objective.HandleRecovery(ev.Time, *ev.Snapshot)
			}
		}
		out = append(out, b.progress(c, tr, ev.Time)...)
	}
	return out
}

// Reconcile re-evaluates objectives against payload state, then applies
// deadlines and offer expiry.
func (b *Book) Reconcile(now float64, vs []*vessel.Vessel) []Outcome {
	var out []Outcome
	for _, c := range b.Contracts() {
		switch c.State {
		case StateActive:
			if c.Objective != nil {
				out = append(out, b.progress(c, c.Objective.Reconcile(vs), now)...)
			}
			if c.State == StateActive && c.DeadlineAt > 0 && now > c.DeadlineAt {
				out = append(out, b.settle(c, StateFailed, now, ReasonDeadlineElapsed))
			}
		case StateOffered:
			if c.ExpiresAt > 0 && now > c.ExpiresAt {
				out = append(out, b.settle(c, StateWithdrawn, now, ReasonOfferExpired))
			}
		}
	}
	return out
}

// Restore replaces the book's contracts with the given records. Records that
// fail to load are discarded and logged; their errors are returned.
func (b *Book) Restore(recs []Record) []error {
	b.byID = map[string]*Contract{}
	b.nextID = 0
	var errs []error
	for _, rec := range recs {
		c, err := b.Load(rec)
		if err != nil {
			b.logger.Printf("discarding contract %q: %v", rec[keyID], err)
			errs = append(errs, err)
			continue
		}
		b.byID[c.ID] = c
		if n, err := strconv.ParseUint(strings.TrimPrefix(c.ID, "C"), 10, 64); err == nil && n > b.nextID {
			b.nextID = n
		}
	}
	return errs
}

// Records saves every contract in id order.
func (b *Book) Records() []Record {
	cs := b.Contracts()
	out := make([]Record, 0, len(cs))
	for _, c := range cs {
		out = append(out, b.Save(c))
	}
	return out
}
