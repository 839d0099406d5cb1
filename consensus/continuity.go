package consensus

import (
	"sort"
	"time"

	"github.com/mosaicnetworks/continuity/dag"
	"github.com/mosaicnetworks/continuity/peers"
	"github.com/sirupsen/logrus"
)

// MethodName identifies the continuity algorithm in the registry and
// in ledger configuration events.
const MethodName = "Continuity2017"

// Continuity2017 decides blocks from witness merge events: a witness
// merge event supported by 2f+1 witnesses is a Y-event, and Y-events
// by 2f+1 distinct witnesses that share a non-empty common ancestor
// set decide that set as the next block.
//
// Whether an event is a Y-event depends only on its own ancestry,
// which always travels with it, so every observer sees the same
// Y-sequence per witness. That keeps the election observer-independent
// even when observers hold different tails of the DAG.
type Continuity2017 struct {
	logger *logrus.Entry
}

func NewContinuity2017(logger *logrus.Entry) *Continuity2017 {
	return &Continuity2017{
		logger: logger.WithField("component", "continuity2017"),
	}
}

func (c *Continuity2017) Name() string {
	return MethodName
}

// Evaluate runs one round of the continuity algorithm over the slice.
func (c *Continuity2017) Evaluate(slice *dag.DagSlice, witnesses []string) (*Result, error) {
	if len(witnesses) == 0 {
		return &Result{Consensus: false}, nil
	}

	f := (len(witnesses) - 1) / 3
	threshold := 2*f + 1

	witnessSet := make(map[string]bool, len(witnesses))
	for _, w := range witnesses {
		witnessSet[w] = true
	}

	//creators with detected forks count for no one
	for creator := range slice.Forked {
		delete(witnessSet, creator)
	}

	ancestry := newAncestryIndex(slice)

	//per witness, the chain-ordered sequence of Y-events: merge events
	//whose ancestry carries merge events by 2f+1 distinct witnesses (a
	//witness endorses its own event)
	yLists := map[string][]*dag.Event{}
	for hash, event := range slice.Events {
		if !event.IsMerge() || !witnessSet[event.Body.Creator] {
			continue
		}

		support := map[string]bool{event.Body.Creator: true}
		for ancestor := range ancestry.ancestors(hash) {
			if a, ok := slice.Events[ancestor]; ok && a.IsMerge() && witnessSet[a.Body.Creator] {
				support[a.Body.Creator] = true
			}
		}

		if len(support) >= threshold {
			yLists[event.Body.Creator] = append(yLists[event.Body.Creator], event)
		}
	}

	if len(yLists) < threshold {
		return &Result{
			Consensus: false,
			Cursor:    &peers.Cursor{RequiredBlockHeight: slice.LastBlockHeight},
		}, nil
	}

	electorIDs := make([]string, 0, len(yLists))
	for w, list := range yLists {
		sort.Sort(dag.ByConsensusOrder(list))
		electorIDs = append(electorIDs, w)
	}
	sort.Strings(electorIDs)

	//start from every witness's earliest Y-event, and advance the
	//earliest elector until the electors share an uncommitted common
	//ancestor set
	indexes := map[string]int{}
	var blockEvents []*dag.Event
	var yEvents []*dag.Event

	for {
		yEvents = yEvents[:0]
		for _, w := range electorIDs {
			yEvents = append(yEvents, yLists[w][indexes[w]])
		}
		sort.Sort(dag.ByConsensusOrder(yEvents))

		blockEvents = c.decidedSet(slice, ancestry, yEvents)
		if len(blockEvents) > 0 {
			break
		}

		//advance the earliest elector to its next Y-event
		earliest := yEvents[0]
		w := earliest.Body.Creator
		indexes[w]++
		if indexes[w] >= len(yLists[w]) {
			return &Result{
				Consensus: false,
				Cursor:    &peers.Cursor{RequiredBlockHeight: slice.LastBlockHeight},
			}, nil
		}
	}

	sort.Sort(dag.ByConsensusOrder(blockEvents))

	maxHeight := 0
	for _, e := range blockEvents {
		if e.Body.MergeHeight > maxHeight {
			maxHeight = e.Body.MergeHeight
		}
	}

	//the proof is the set of Y-events that closed the decision; with a
	//single-witness quorum the decision is immediate and carries no
	//proof
	proof := []string{}
	if f > 0 {
		for _, y := range yEvents {
			hash, err := y.Hash()
			if err != nil {
				return nil, err
			}
			proof = append(proof, hash)
		}
		sort.Strings(proof)
	}

	elector := yEvents[0].Body.Creator

	//the consensus date must be identical on every honest node: derive
	//it from the decided content, not the local clock
	consensusDate := time.Unix(int64(maxHeight), 0).UTC()

	c.logger.WithFields(logrus.Fields{
		"block_height": slice.LastBlockHeight + 1,
		"events":       len(blockEvents),
		"electors":     len(electorIDs),
		"f":            f,
	}).Debug("Consensus reached")

	return &Result{
		Consensus:      true,
		BlockHeight:    slice.LastBlockHeight + 1,
		BlockEvents:    blockEvents,
		ConsensusProof: proof,
		ConsensusDate:  consensusDate,
		Elector:        elector,
	}, nil
}

// decidedSet intersects the elector Y-events' ancestor sets and keeps
// the uncommitted, non-byzantine part.
func (c *Continuity2017) decidedSet(slice *dag.DagSlice, ancestry *ancestryIndex, yEvents []*dag.Event) []*dag.Event {
	common := ancestry.commonAncestors(yEvents)

	res := []*dag.Event{}
	for hash := range common {
		event, ok := slice.Events[hash]
		if !ok {
			//committed in a prior block
			continue
		}
		if slice.Forked[event.Body.Creator] {
			continue
		}
		res = append(res, event)
	}
	return res
}

// ancestryIndex memoises ancestor sets over a slice. Ancestors outside
// the slice (committed history) appear as bare hashes with no further
// expansion.
type ancestryIndex struct {
	slice *dag.DagSlice
	memo  map[string]map[string]bool
}

func newAncestryIndex(slice *dag.DagSlice) *ancestryIndex {
	return &ancestryIndex{
		slice: slice,
		memo:  make(map[string]map[string]bool),
	}
}

// ancestors returns the transitive parents of hash, excluding hash
// itself.
func (ai *ancestryIndex) ancestors(hash string) map[string]bool {
	if memoed, ok := ai.memo[hash]; ok {
		return memoed
	}

	res := map[string]bool{}
	for _, p := range ai.slice.Parents[hash] {
		res[p] = true
		for a := range ai.ancestors(p) {
			res[a] = true
		}
	}

	ai.memo[hash] = res
	return res
}

// commonAncestors intersects the ancestor sets of the given events.
func (ai *ancestryIndex) commonAncestors(events []*dag.Event) map[string]bool {
	var common map[string]bool

	for _, e := range events {
		hash, err := e.Hash()
		if err != nil {
			continue
		}
		anc := ai.ancestors(hash)

		if common == nil {
			common = make(map[string]bool, len(anc))
			for a := range anc {
				common[a] = true
			}
			continue
		}

		for a := range common {
			if !anc[a] {
				delete(common, a)
			}
		}
	}

	if common == nil {
		common = map[string]bool{}
	}
	return common
}
