package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"stationscience.dev/internal/sim/contracts/reward"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int     `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int     `yaml:"snapshot_every_ticks"`
	YearSeconds        float64 `yaml:"year_seconds"`
	HomeBody           string  `yaml:"home_body"`

	Contracts ContractTuning `yaml:"contracts"`
	Cadence   Cadence        `yaml:"cadence"`
}

type ContractTuning struct {
	MaxContracts      int     `yaml:"max_contracts"`
	ProgressionFactor float64 `yaml:"progression_factor"`
	ReputationFactor  float64 `yaml:"reputation_factor"`
	// Multipliers applied to the requester level per contract prestige.
	TrivialMultiplier     float64 `yaml:"trivial_multiplier"`
	SignificantMultiplier float64 `yaml:"significant_multiplier"`
	ExceptionalMultiplier float64 `yaml:"exceptional_multiplier"`
	OfferExpirySeconds    float64 `yaml:"offer_expiry_seconds"`
	// The station tries to offer one new contract this often.
	OfferEverySeconds float64 `yaml:"offer_every_seconds"`

	Rewards reward.Curves `yaml:"rewards"`

	Requirements Requirements `yaml:"requirements"`
}

// Requirements gate contract generation as a whole.
type Requirements struct {
	HomeOrbit bool `yaml:"home_orbit"`
	// Each group needs at least one unlocked entry.
	AnyOf [][]string `yaml:"any_of"`
}

type Cadence struct {
	SlowEverySeconds   float64 `yaml:"slow_every_seconds"`
	MinIntervalSeconds float64 `yaml:"min_interval_seconds"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         50,
		SnapshotEveryTicks: 3000,
		YearSeconds:        426 * 6 * 3600,
		HomeBody:           "Kerbin",
		Contracts: ContractTuning{
			MaxContracts:          4,
			ProgressionFactor:     0.5,
			ReputationFactor:      0.01,
			TrivialMultiplier:     0.25,
			SignificantMultiplier: 1,
			ExceptionalMultiplier: 1.5,
			OfferExpirySeconds:    30 * 6 * 3600,
			OfferEverySeconds:     6 * 3600,
			Rewards:               reward.DefaultCurves(),
			Requirements: Requirements{
				HomeOrbit: true,
				AnyOf: [][]string{
					{"dockingPort1", "dockingPort2", "dockingPort3", "dockingPortLarge", "dockingPortLateral"},
					{"StnSciLab", "StnSciCyclo"},
				},
			},
		},
		Cadence: Cadence{
			SlowEverySeconds:   1,
			MinIntervalSeconds: 0.1,
		},
	}
}

// Load reads a tuning file on top of Defaults; keys missing from the file keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if t.YearSeconds <= 0 {
		return fmt.Errorf("year_seconds must be > 0")
	}
	if t.HomeBody == "" {
		return fmt.Errorf("home_body is required")
	}
	if t.Contracts.MaxContracts < 0 {
		return fmt.Errorf("contracts.max_contracts must be >= 0")
	}
	if t.Contracts.OfferEverySeconds < 0 {
		return fmt.Errorf("contracts.offer_every_seconds must be >= 0")
	}
	if t.Cadence.SlowEverySeconds < 0 || t.Cadence.MinIntervalSeconds < 0 {
		return fmt.Errorf("cadence intervals must be >= 0")
	}
	return nil
}

// PrestigeMultiplier maps a prestige name to its configured multiplier.
func (c ContractTuning) PrestigeMultiplier(prestige string) float64 {
	switch prestige {
	case "TRIVIAL":
		return c.TrivialMultiplier
	case "EXCEPTIONAL":
		return c.ExceptionalMultiplier
	default:
		return c.SignificantMultiplier
	}
}
