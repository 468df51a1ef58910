package pipeline

// State is a position in the pipeline's lifecycle.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateInstalling
	StateBuilding
	StateSynthesizing
	StateDeploying
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateIdle:         "idle",
	StateFetching:     "fetching",
	StateInstalling:   "installing",
	StateBuilding:     "building",
	StateSynthesizing: "synthesizing",
	StateDeploying:    "deploying",
	StateDone:         "done",
	StateFailed:       "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// working reports whether s is a state a stage can run in.
func (s State) working() bool {
	return s >= StateFetching && s <= StateDeploying
}

// Transition is one recorded state change. Stage is empty for transitions that no stage caused.
type Transition struct {
	From  State  `json:"from"`
	To    State  `json:"to"`
	Stage string `json:"stage,omitempty"`
}

// MarshalText lets states render by name in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
