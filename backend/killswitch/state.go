package killswitch

import (
	"errors"
	"strings"
)

// State is the block status of one radio, or the aggregate of all of them.
type State int

const (
	NoAdapter State = iota
	Unblocked
	SoftBlocked
	HardBlocked
)

var stateNames = map[State]string{
	NoAdapter:   "no-adapter",
	Unblocked:   "unblocked",
	SoftBlocked: "soft-blocked",
	HardBlocked: "hard-blocked",
}

var ErrInvalidState = errors.New("killswitch: only soft-blocked and unblocked can be set")

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	parsed, ok := ParseState(string(text))
	if !ok {
		return ErrInvalidState
	}
	*s = parsed
	return nil
}

func ParseState(name string) (State, bool) {
	for s, n := range stateNames {
		if strings.EqualFold(name, n) {
			return s, true
		}
	}
	return NoAdapter, false
}

// stateOf maps the soft and hard bits of one radio. Hard wins.
func stateOf(soft, hard bool) State {
	switch {
	case hard:
		return HardBlocked
	case soft:
		return SoftBlocked
	default:
		return Unblocked
	}
}

// Aggregate folds per-radio states: none is NoAdapter, any hard block is
// HardBlocked, then any soft block is SoftBlocked. The result does not
// depend on the order of states.
func Aggregate(states []State) State {
	if len(states) == 0 {
		return NoAdapter
	}
	agg := Unblocked
	for _, s := range states {
		if s > agg {
			agg = s
		}
	}
	return agg
}
