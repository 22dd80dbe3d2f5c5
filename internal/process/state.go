package process

// State is the lifecycle state of a Supervisor.
type State string

const (
	StateIdle       State = "idle"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateStopping   State = "stopping"
	StateTerminated State = "terminated"
)

// String returns the state name.
func (s State) String() string {
	return string(s)
}
