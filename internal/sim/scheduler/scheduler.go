package scheduler

// Cadence decides when a periodic job is due, in simulation seconds.
//
// A job runs every Every seconds. Request asks for an early run, which is
// honored once MinInterval has passed since the previous run.
type Cadence struct {
	Every       float64
	MinInterval float64

	last      float64
	ran       bool
	requested bool
}

func New(every, minInterval float64) *Cadence {
	if minInterval < 0 {
		minInterval = 0
	}
	if every > 0 && minInterval > every {
		minInterval = every
	}
	return &Cadence{Every: every, MinInterval: minInterval}
}

func (c *Cadence) Request() { c.requested = true }

func (c *Cadence) Pending() bool { return c.requested }

// Due reports whether the job should run at now, and records the run when it does.
func (c *Cadence) Due(now float64) bool {
	if !c.ran || now < c.last {
		// First run, or the clock was rewound by a reload.
		c.mark(now)
		return true
	}
	elapsed := now - c.last
	if c.Every <= 0 || elapsed >= c.Every {
		c.mark(now)
		return true
	}
	if c.requested && elapsed >= c.MinInterval {
		c.mark(now)
		return true
	}
	return false
}

func (c *Cadence) mark(now float64) {
	c.last = now
	c.ran = true
	c.requested = false
}

// Last returns the time of the previous run.
func (c *Cadence) Last() float64 { return c.last }

// Elapsed returns the simulation time since the previous run, 0 before the first.
func (c *Cadence) Elapsed(now float64) float64 {
	if !c.ran || now < c.last {
		return 0
	}
	return now - c.last
}

// State is the persisted part of a cadence.
type State struct {
	Last      float64
	Ran       bool
	Requested bool
}

func (c *Cadence) State() State { return State{Last: c.last, Ran: c.ran, Requested: c.requested} }

// Restore resumes a cadence from a saved state.
func (c *Cadence) Restore(st State) {
	c.last = st.Last
	c.ran = st.Ran
	c.requested = st.Requested
}
