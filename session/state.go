package session

type State int

const (
	Idle State = iota
	Recording
	Finalizing
	Completed
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Finalizing:
		return "finalizing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// next lists the legal transitions.
var next = map[State][]State{
	Idle:       {Recording},
	Recording:  {Finalizing, Failed, Cancelled},
	Finalizing: {Completed, Failed, Cancelled},
}

func canTransition(from, to State) bool {
	for _, s := range next[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StopReason records why recording ended.
type StopReason int

const (
	StopNone StopReason = iota
	StopSilence
	StopTimeout
	StopManual
	StopError
	StopShutdown
)

func (r StopReason) String() string {
	switch r {
	case StopSilence:
		return "silence"
	case StopTimeout:
		return "timeout"
	case StopManual:
		return "manual"
	case StopError:
		return "error"
	case StopShutdown:
		return "shutdown"
	default:
		return "none"
	}
}
