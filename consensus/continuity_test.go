package consensus

import (
	"reflect"
	"sort"
	"testing"

	"github.com/mosaicnetworks/continuity/common"
	"github.com/mosaicnetworks/continuity/crypto"
	"github.com/mosaicnetworks/continuity/dag"
	"github.com/sirupsen/logrus"
)

// sliceBuilder assembles a DagSlice fixture without going through the
// event store.
type sliceBuilder struct {
	slice  *dag.DagSlice
	hashes map[string]string
}

func newSliceBuilder() *sliceBuilder {
	return &sliceBuilder{
		slice: &dag.DagSlice{
			Events:          map[string]*dag.Event{},
			Parents:         map[string][]string{},
			Children:        map[string][]string{},
			Forked:          map[string]bool{},
			LastBlockHeight: 0,
			GenesisHash:     crypto.HashBytes([]byte("genesis")),
		},
		hashes: map[string]string{},
	}
}

// merge adds a merge event under a short name; parents name earlier
// events, or the genesis.
func (b *sliceBuilder) merge(name, creator string, height int, parentNames ...string) {
	parents := make([]string, len(parentNames))
	for i, p := range parentNames {
		if p == "genesis" {
			parents[i] = b.slice.GenesisHash
			continue
		}
		parents[i] = b.hashes[p]
	}

	event := dag.NewMergeEvent(parents[0], parents, creator, "key:"+creator, height, 0)
	hash, _ := event.Hash()

	b.hashes[name] = hash
	b.slice.Events[hash] = event
	b.slice.Parents[hash] = parents
	for _, p := range parents {
		b.slice.Children[p] = append(b.slice.Children[p], hash)
	}
}

func (b *sliceBuilder) fork(creator string) {
	b.slice.Forked[creator] = true
}

func (b *sliceBuilder) names(hashes []string) []string {
	byHash := map[string]string{}
	for name, h := range b.hashes {
		byHash[h] = name
	}
	res := make([]string, len(hashes))
	for i, h := range hashes {
		res[i] = byHash[h]
	}
	return res
}

func testEngine(t *testing.T) *Continuity2017 {
	return NewContinuity2017(logrus.NewEntry(common.NewTestLogger(t)))
}

// figure110 is the fixture with creators {1, b, 2, 3} where b forks
// into b1-1 and b2-1, observed from node 2.
func figure110() *sliceBuilder {
	b := newSliceBuilder()

	//round 1: every creator merges off the genesis
	b.merge("m1-1", "1", 1, "genesis")
	b.merge("m2-1", "2", 1, "genesis")
	b.merge("m3-1", "3", 1, "genesis")
	b.merge("b1-1", "b", 1, "genesis")
	b.merge("b2-1", "b", 1, "genesis")
	b.fork("b")

	//round 2: the honest witnesses merge each other; 2 also saw one of
	//b's branches
	b.merge("m1-2", "1", 2, "m1-1", "m2-1", "m3-1")
	b.merge("m2-2", "2", 2, "m2-1", "m1-1", "m3-1", "b1-1")
	b.merge("m3-2", "3", 2, "m3-1", "m1-1", "m2-1")

	return b
}

func TestFigure110Consensus(t *testing.T) {
	fixture := figure110()
	engine := testEngine(t)

	witnesses := []string{"1", "2", "3", "b"}

	result, err := engine.Evaluate(fixture.slice, witnesses)
	if err != nil {
		t.Fatal(err)
	}

	if !result.Consensus {
		t.Fatal("the fixture should reach consensus")
	}
	if result.BlockHeight != 1 {
		t.Fatalf("block height should be 1, got %d", result.BlockHeight)
	}

	//the decided ancestor set is the first round of honest merges
	got := make([]string, len(result.BlockEvents))
	for i, e := range result.BlockEvents {
		h, _ := e.Hash()
		got[i] = h
	}
	gotNames := fixture.names(got)
	sort.Strings(gotNames)

	want := []string{"m1-1", "m2-1", "m3-1"}
	if !reflect.DeepEqual(gotNames, want) {
		t.Fatalf("decided set should be %v, got %v", want, gotNames)
	}

	//b's events count for no one
	for _, e := range result.BlockEvents {
		if e.Body.Creator == "b" {
			t.Fatal("forked creator's events must not be committed")
		}
	}

	//the proof is the three Y-events that closed the decision
	wantProof := []string{fixture.hashes["m1-2"], fixture.hashes["m2-2"], fixture.hashes["m3-2"]}
	sort.Strings(wantProof)
	if !reflect.DeepEqual(result.ConsensusProof, wantProof) {
		t.Fatalf("proof should be the round-2 Y-events: want %v got %v",
			fixture.names(wantProof), fixture.names(result.ConsensusProof))
	}
}

func TestFigure110Deterministic(t *testing.T) {
	witnesses := []string{"1", "2", "3", "b"}
	engine := testEngine(t)

	r1, err := engine.Evaluate(figure110().slice, witnesses)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := engine.Evaluate(figure110().slice, witnesses)
	if err != nil {
		t.Fatal(err)
	}

	h1 := make([]string, len(r1.BlockEvents))
	for i, e := range r1.BlockEvents {
		h1[i], _ = e.Hash()
	}
	h2 := make([]string, len(r2.BlockEvents))
	for i, e := range r2.BlockEvents {
		h2[i], _ = e.Hash()
	}

	if !reflect.DeepEqual(h1, h2) {
		t.Fatal("the engine must be deterministic given identical slices")
	}
	if !reflect.DeepEqual(r1.ConsensusProof, r2.ConsensusProof) {
		t.Fatal("the proof must be deterministic given identical slices")
	}
	if !r1.ConsensusDate.Equal(r2.ConsensusDate) {
		t.Fatal("the consensus date must be deterministic")
	}
}

func TestNoQuorumNoConsensus(t *testing.T) {
	b := newSliceBuilder()
	b.merge("m1-1", "1", 1, "genesis")
	b.merge("m2-1", "2", 1, "genesis")

	//only two of four witnesses have merged anything: no Y-events
	result, err := testEngine(t).Evaluate(b.slice, []string{"1", "2", "3", "4"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Consensus {
		t.Fatal("no quorum should mean no consensus")
	}
	if result.Cursor == nil {
		t.Fatal("a failed evaluation should return a cursor for gossip to prioritise")
	}
}

func TestForkedWitnessExcludedFromSupport(t *testing.T) {
	b := newSliceBuilder()

	b.merge("m1-1", "1", 1, "genesis")
	b.merge("m2-1", "2", 1, "genesis")
	b.merge("b1-1", "b", 1, "genesis")
	b.fork("b")

	//1's round-2 merge sees everyone, including byzantine b. Without
	//b's support it only counts 2 of the 3 required witnesses.
	b.merge("m1-2", "1", 2, "m1-1", "m2-1", "b1-1")

	result, err := testEngine(t).Evaluate(b.slice, []string{"1", "2", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Consensus {
		t.Fatal("a forked witness must not count toward support")
	}
}

func TestRegistryResolvesMethod(t *testing.T) {
	engine := testEngine(t)
	registry := NewRegistry(engine)

	got, err := registry.Get(MethodName)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name() != MethodName {
		t.Fatalf("registry returned the wrong engine: %s", got.Name())
	}

	if _, err := registry.Get("unknown"); err == nil {
		t.Fatal("unknown methods should error")
	}
}
