package bot

// State is a Bot's lifecycle value.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateReady
	StateBusy
	StateCooldown
	StateError
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateInitializing:
		return "INITIALIZING"
	case StateReady:
		return "READY"
	case StateBusy:
		return "BUSY"
	case StateCooldown:
		return "COOLDOWN"
	case StateError:
		return "ERROR"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}
