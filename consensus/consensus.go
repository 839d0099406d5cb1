package consensus

import (
	"fmt"
	"time"

	"github.com/mosaicnetworks/continuity/dag"
	"github.com/mosaicnetworks/continuity/peers"
)

// Result is the outcome of one engine evaluation. When Consensus is
// false, Cursor may indicate what additional support gossip should
// prioritise.
type Result struct {
	Consensus bool

	BlockHeight    int
	BlockEvents    []*dag.Event
	ConsensusProof []string
	ConsensusDate  time.Time

	// Elector is the creator of the pivotal Y-event, recorded in the
	// committed events' meta.
	Elector string

	Cursor *peers.Cursor
}

// Engine computes the next block's ordered event set from the recent
// DAG slice. Engines own no persistent state; evaluation is
// deterministic given identical slices.
type Engine interface {
	Name() string
	Evaluate(slice *dag.DagSlice, witnesses []string) (*Result, error)
}

// Registry maps consensus method names to engines. It is passed
// explicitly at worker construction; there is no process-wide
// singleton.
type Registry struct {
	methods map[string]Engine
}

func NewRegistry(engines ...Engine) *Registry {
	r := &Registry{methods: make(map[string]Engine)}
	for _, e := range engines {
		r.methods[e.Name()] = e
	}
	return r
}

func (r *Registry) Get(name string) (Engine, error) {
	e, ok := r.methods[name]
	if !ok {
		return nil, fmt.Errorf("unknown consensus method %s", name)
	}
	return e, nil
}
