package vessel

type Resource string

const (
	Eurekas     Resource = "Eurekas"
	Kuarqs      Resource = "Kuarqs"
	Bioproducts Resource = "Bioproducts"
)

var Resources = []Resource{Eurekas, Kuarqs, Bioproducts}

type Pool struct {
	Amount   float64 `json:"amount"`
	Capacity float64 `json:"capacity"`
	// Running is set while the producer feeding this pool is active.
	Running bool `json:"running,omitempty"`
}

// PayloadInstance is one experiment part aboard a vessel.
type PayloadInstance struct {
	PartID        string  `json:"part_id"`
	TypeID        string  `json:"type_id"`
	LaunchedAt    float64 `json:"launched_at,omitempty"`
	CompletedAt   float64 `json:"completed_at,omitempty"`
	LastSubjectID string  `json:"last_subject_id,omitempty"`

	Eurekas     Pool `json:"eurekas"`
	Kuarqs      Pool `json:"kuarqs"`
	Bioproducts Pool `json:"bioproducts"`

	// Data holds subject ids of stored science results.
	Data       []string `json:"data,omitempty"`
	Inoperable bool     `json:"inoperable,omitempty"`
}

func (p *PayloadInstance) pool(r Resource) *Pool {
	switch r {
	case Eurekas:
		return &p.Eurekas
	case Kuarqs:
		return &p.Kuarqs
	case Bioproducts:
		return &p.Bioproducts
	}
	return nil
}

func (p *PayloadInstance) Amount(r Resource) float64 {
	if pl := p.pool(r); pl != nil {
		return pl.Amount
	}
	return 0
}

func (p *PayloadInstance) Capacity(r Resource) float64 {
	if pl := p.pool(r); pl != nil {
		return pl.Capacity
	}
	return 0
}

// SetCapacity resizes a pool. The amount is clamped to the new capacity, so
// a zero capacity empties the pool.
func (p *PayloadInstance) SetCapacity(r Resource, c float64) {
	pl := p.pool(r)
	if pl == nil {
		return
	}
	if c < 0 {
		c = 0
	}
	pl.Capacity = c
	if pl.Amount > c {
		pl.Amount = c
	}
	if c == 0 {
		pl.Running = false
	}
}

func (p *PayloadInstance) SetAmount(r Resource, a float64) {
	pl := p.pool(r)
	if pl == nil {
		return
	}
	if a < 0 {
		a = 0
	}
	if a > pl.Capacity {
		a = pl.Capacity
	}
	pl.Amount = a
}

func (p *PayloadInstance) Running(r Resource) bool {
	if pl := p.pool(r); pl != nil {
		return pl.Running
	}
	return false
}

func (p *PayloadInstance) SetRunning(r Resource, on bool) {
	if pl := p.pool(r); pl != nil {
		pl.Running = on
	}
}

// Produce adds amount to a running pool, bounded by its capacity, and
// returns what was actually stored.
func (p *PayloadInstance) Produce(r Resource, amount float64) float64 {
	pl := p.pool(r)
	if pl == nil || !pl.Running || amount <= 0 {
		return 0
	}
	room := pl.Capacity - pl.Amount
	if room <= 0 {
		return 0
	}
	if amount > room {
		amount = room
	}
	pl.Amount += amount
	return amount
}

func (p *PayloadInstance) HasData() bool { return len(p.Data) > 0 }

func (p *PayloadInstance) clone() *PayloadInstance {
	cp := *p
	cp.Data = append([]string(nil), p.Data...)
	return &cp
}
