package node

import (
	"sync/atomic"
)

// State captures the lifecycle of a treecast node: Running, Leaving, or
// Shutdown.
type State uint32

const (
	//Running is the normal state of a node: processing events.
	Running State = iota
	//Leaving is entered while notifying active peers of a graceful exit.
	Leaving
	//Shutdown is shutdown
	Shutdown
)

// String ...
func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Leaving:
		return "Leaving"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

type state struct {
	state State
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *state) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}
