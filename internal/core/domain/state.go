package domain

// RunState tracks a discovery run through its pipeline. The symbolic step is
// optional, so SparseFitted may advance either to SymbolicFitted or straight
// to Ranked; Aborted is terminal and reachable from every non-terminal state.
type RunState int

const (
	// StateInitialized is the state before any step has run.
	StateInitialized RunState = iota

	// StateLibraryBuilt means the feature matrix exists.
	StateLibraryBuilt

	// StateSparseFitted means STLSQ produced its candidate.
	StateSparseFitted

	// StateSymbolicFitted means the optional symbolic search finished.
	StateSymbolicFitted

	// StateRanked means candidates are ordered with metrics attached.
	StateRanked

	// StateUncertaintyComputed means bootstrap intervals exist.
	StateUncertaintyComputed

	// StateDone is the successful terminal state.
	StateDone

	// StateAborted is the terminal state for unrecoverable errors.
	StateAborted
)

var stateNames = map[RunState]string{
	StateInitialized:         "initialized",
	StateLibraryBuilt:        "library_built",
	StateSparseFitted:        "sparse_fitted",
	StateSymbolicFitted:      "symbolic_fitted",
	StateRanked:              "ranked",
	StateUncertaintyComputed: "uncertainty_computed",
	StateDone:                "done",
	StateAborted:             "aborted",
}

func (s RunState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseRunState inverts String. Unknown names map to StateAborted so a
// corrupted persisted state never resurrects as runnable.
func ParseRunState(name string) RunState {
	for s, n := range stateNames {
		if n == name {
			return s
		}
	}
	return StateAborted
}

// MarshalJSON persists the state by name, keeping stored results readable
// and stable if the enum order ever changes.
func (s RunState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *RunState) UnmarshalJSON(b []byte) error {
	name := string(b)
	if len(name) >= 2 && name[0] == '"' && name[len(name)-1] == '"' {
		name = name[1 : len(name)-1]
	}
	*s = ParseRunState(name)
	return nil
}

var validTransitions = map[RunState][]RunState{
	StateInitialized:         {StateLibraryBuilt, StateAborted},
	StateLibraryBuilt:        {StateSparseFitted, StateAborted},
	StateSparseFitted:        {StateSymbolicFitted, StateRanked, StateAborted},
	StateSymbolicFitted:      {StateRanked, StateAborted},
	StateRanked:              {StateUncertaintyComputed, StateDone, StateAborted},
	StateUncertaintyComputed: {StateDone, StateAborted},
	StateDone:                {},
	StateAborted:             {},
}

// CanTransition reports whether a run may move from one state to another.
func CanTransition(from, to RunState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state ends the run.
func (s RunState) Terminal() bool {
	return s == StateDone || s == StateAborted
}
