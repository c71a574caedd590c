package protocol

// STATUS (server -> client): latest station state. Only the newest is kept
// when a client falls behind.
type StatusMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	StationID       string  `json:"station_id"`
	Tick            uint64  `json:"tick"`
	Time            float64 `json:"time"`

	Progression ProgressionSummary  `json:"progression"`
	Contracts   []ContractSummary   `json:"contracts"`
	Experiments []ExperimentSummary `json:"experiments"`
}

type ProgressionSummary struct {
	Funds       float64 `json:"funds"`
	Science     float64 `json:"science"`
	Reputation  float64 `json:"reputation"`
	XP          float64 `json:"xp"`
	OrbitedHome bool    `json:"orbited_home"`
}

type ContractSummary struct {
	ID         string         `json:"id"`
	State      string         `json:"state"`
	Title      string         `json:"title"`
	Synopsis   string         `json:"synopsis"`
	Notes      string         `json:"notes,omitempty"`
	Prestige   string         `json:"prestige"`
	Value      float64        `json:"value"`
	FirstTime  bool           `json:"first_time,omitempty"`
	AcceptedAt float64        `json:"accepted_at,omitempty"`
	DeadlineAt float64        `json:"deadline_at,omitempty"`
	ExpiresAt  float64        `json:"expires_at,omitempty"`
	Rewards    RewardSummary  `json:"rewards"`
	Stages     []StageSummary `json:"stages,omitempty"`
}

type RewardSummary struct {
	Science           float64 `json:"science"`
	FundsAdvance      float64 `json:"funds_advance"`
	FundsReward       float64 `json:"funds_reward"`
	FundsFailure      float64 `json:"funds_failure"`
	Reputation        float64 `json:"reputation"`
	ReputationFailure float64 `json:"reputation_failure"`
	DeadlineYears     float64 `json:"deadline_years"`
}

type StageSummary struct {
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

type ExperimentSummary struct {
	VesselID    string      `json:"vessel_id"`
	PartID      string      `json:"part_id"`
	TypeID      string      `json:"type_id"`
	Subject     string      `json:"subject,omitempty"`
	Eurekas     PoolSummary `json:"eurekas"`
	Kuarqs      PoolSummary `json:"kuarqs"`
	Bioproducts PoolSummary `json:"bioproducts"`
	// KuarqDecay is the kuarq loss rate per second over the last tick.
	KuarqDecay float64 `json:"kuarq_decay"`
	Finished   bool    `json:"finished"`
	Finalized  bool    `json:"finalized"`
}

type PoolSummary struct {
	Amount   float64 `json:"amount"`
	Required float64 `json:"required"`
}

// NOTICE (server -> client): a display string. Code is set when the notice
// reports a rejected command.
type NoticeMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Tick            uint64  `json:"tick"`
	Time            float64 `json:"time"`
	Kind            string  `json:"kind"`
	Code            string  `json:"code,omitempty"`
	VesselID        string  `json:"vessel_id,omitempty"`
	PartID          string  `json:"part_id,omitempty"`
	ContractID      string  `json:"contract_id,omitempty"`
	Text            string  `json:"text"`
}
