package engine

// State is the connection state machine position.
type State int32

const (
	StateNoConfiguration State = iota
	StateResolving
	StateCreating
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateNoConfiguration:
		return "no_configuration"
	case StateResolving:
		return "resolving"
	case StateCreating:
		return "creating"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}
