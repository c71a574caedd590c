package progression

import "sort"

// State is the player-side progression the contract book reads and pays into.
type State struct {
	XP         float64
	Reputation float64
	Funds      float64
	Science    float64

	Unlocked    map[string]bool
	Reached     map[string]bool
	OrbitedHome bool
}

func New() *State {
	return &State{Unlocked: map[string]bool{}, Reached: map[string]bool{}}
}

// Delta is a signed change to the ledger fields.
type Delta struct {
	Funds      float64 `json:"funds,omitempty"`
	Science    float64 `json:"science,omitempty"`
	Reputation float64 `json:"reputation,omitempty"`
	XP         float64 `json:"xp,omitempty"`
}

func (d Delta) IsZero() bool { return d == Delta{} }

func (d Delta) Add(o Delta) Delta {
	return Delta{
		Funds:      d.Funds + o.Funds,
		Science:    d.Science + o.Science,
		Reputation: d.Reputation + o.Reputation,
		XP:         d.XP + o.XP,
	}
}

func (s *State) Apply(d Delta) {
	s.Funds += d.Funds
	s.Science += d.Science
	s.Reputation += d.Reputation
	s.XP += d.XP
}

func (s *State) Experience() float64         { return s.XP }
func (s *State) ReputationLevel() float64    { return s.Reputation }
func (s *State) IsUnlocked(name string) bool { return s.Unlocked[name] }
func (s *State) HasReached(body string) bool { return s.Reached[body] }
func (s *State) HomeOrbitReached() bool      { return s.OrbitedHome }

func (s *State) Unlock(name string) {
	if s.Unlocked == nil {
		s.Unlocked = map[string]bool{}
	}
	s.Unlocked[name] = true
}

func (s *State) Reach(body string) {
	if s.Reached == nil {
		s.Reached = map[string]bool{}
	}
	s.Reached[body] = true
}

// UnlockedList returns unlocked names sorted, for persistence.
func (s *State) UnlockedList() []string { return sortedKeys(s.Unlocked) }

func (s *State) ReachedList() []string { return sortedKeys(s.Reached) }

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k, ok := range m {
		if ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
