package runtime

// State is a step of the instantiation state machine:
//
//	Uninstantiated -> Validating -> Linking -> Ready -> Destroyed
//
// Validating and Linking may end in Failed instead. Allocation, segment
// initialization and the start function belong to the Linking step.
type State uint8

const (
	StateUninstantiated State = iota
	StateValidating
	StateLinking
	StateReady
	StateDestroyed
	StateFailed
)

var stateNames = [...]string{
	StateUninstantiated: "uninstantiated",
	StateValidating:     "validating",
	StateLinking:        "linking",
	StateReady:          "ready",
	StateDestroyed:      "destroyed",
	StateFailed:         "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
