package node

import (
	"sync"
	"sync/atomic"
)

// State captures the state of a node: Gossiping or Shutdown.
type State uint32

const (
	// Gossiping is the normal operating state.
	Gossiping State = iota

	Shutdown
)

func (s State) String() string {
	switch s {
	case Gossiping:
		return "Gossiping"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

type nodeState struct {
	state State
	wg    sync.WaitGroup
}

func (b *nodeState) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *nodeState) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}

// goFunc starts a goroutine and adds it to the waitgroup.
func (b *nodeState) goFunc(f func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		f()
	}()
}

func (b *nodeState) waitRoutines() {
	b.wg.Wait()
}
