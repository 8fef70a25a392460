package coordinator

// State is the phase a coordinator invocation is in.
//
//	Idle -> Resuming -> Applying -> Succeeded
//	                            \-> Compensating -> Compensated
//	                                             \-> CompensationFailed
//	...all of which return to Idle.
//
// A standalone Resume walks Idle -> Resuming -> Compensating -> ... -> Idle.
type State int

const (
	StateIdle State = iota
	StateResuming
	StateApplying
	StateCompensating
	StateSucceeded
	StateCompensated
	StateCompensationFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResuming:
		return "resuming"
	case StateApplying:
		return "applying"
	case StateCompensating:
		return "compensating"
	case StateSucceeded:
		return "succeeded"
	case StateCompensated:
		return "compensated"
	case StateCompensationFailed:
		return "compensation_failed"
	default:
		return "unknown"
	}
}
