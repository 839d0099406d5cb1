package merge

import (
	"crypto/ed25519"
	"testing"

	"github.com/mosaicnetworks/continuity/common"
	"github.com/mosaicnetworks/continuity/crypto"
	"github.com/mosaicnetworks/continuity/dag"
	"github.com/sirupsen/logrus"
)

type testNode struct {
	id   string
	key  string
	priv ed25519.PrivateKey
}

func newTestNode(t *testing.T) *testNode {
	t.Helper()

	pub, priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return &testNode{
		id:   crypto.PublicKeyID(pub),
		key:  crypto.PublicKeyMultibase(pub),
		priv: priv,
	}
}

func newTestStore(t *testing.T) *dag.EventStore {
	t.Helper()

	es, err := dag.NewEventStore("test", dag.NewInmemStore(100), logrus.NewEntry(common.NewTestLogger(t)))
	if err != nil {
		t.Fatal(err)
	}
	return es
}

// addOp inserts a regular event on the node's chain and returns its
// hash.
func (n *testNode) addOp(t *testing.T, es *dag.EventStore, payload string) string {
	t.Helper()

	tree, err := es.GetLocalBranchHead(n.id)
	if err != nil {
		t.Fatal(err)
	}
	parent, err := es.GetEvent(tree)
	if err != nil {
		t.Fatal(err)
	}

	event := dag.NewRegularEvent([]byte(payload), tree, n.id, n.key, parent.Body.MergeHeight+1, 0)
	if err := event.Sign(n.priv); err != nil {
		t.Fatal(err)
	}
	if err := es.Insert(event, dag.OriginLocal); err != nil {
		t.Fatal(err)
	}

	hash, _ := event.Hash()
	return hash
}

// seedChain gives a creator a first merge event carrying one op, so
// other nodes have a head to merge.
func (n *testNode) seedChain(t *testing.T, es *dag.EventStore) string {
	t.Helper()

	opHash := n.addOp(t, es, `{"seed":true}`)
	op, _ := es.GetEvent(opHash)

	event := dag.NewMergeEvent(
		es.GenesisHash(),
		[]string{es.GenesisHash(), opHash},
		n.id, n.key,
		op.Body.MergeHeight+1,
		0,
	)
	if err := event.Sign(n.priv); err != nil {
		t.Fatal(err)
	}
	if err := es.Insert(event, dag.OriginLocal); err != nil {
		t.Fatal(err)
	}

	hash, _ := event.Hash()
	return hash
}

func always() float64 { return 0 }

func TestResolveThreshold(t *testing.T) {
	cases := []struct {
		value     string
		witnesses int
		want      int
	}{
		{"2f", 4, 2},
		{"f", 4, 1},
		{"1", 4, 1},
		{"2f", 7, 4},
		{"f", 1, 0},
		{"3", 4, 3},
		{"0", 4, 0},
	}

	for _, c := range cases {
		got, err := ResolveThreshold(c.value, c.witnesses)
		if err != nil {
			t.Fatal(err)
		}
		if got != c.want {
			t.Fatalf("ResolveThreshold(%s, %d) = %d, want %d", c.value, c.witnesses, got, c.want)
		}
	}

	if _, err := ResolveThreshold("3g", 4); err == nil {
		t.Fatal("malformed thresholds should error")
	}
}

func TestMergeCarriesPendingOperation(t *testing.T) {
	es := newTestStore(t)
	alice := newTestNode(t)
	bob := newTestNode(t)

	opHash := alice.addOp(t, es, `{"op":1}`)

	merger := NewMerger(DefaultConfig(), es, always, logrus.NewEntry(common.NewTestLogger(t)))

	event, err := merger.Merge(NodeContext{
		Creator:          alice.id,
		CreatorKey:       alice.key,
		PrivKey:          alice.priv,
		Witnesses:        []string{alice.id, bob.id},
		PendingOperation: opHash,
	})
	if err != nil {
		t.Fatal(err)
	}
	if event == nil {
		t.Fatal("the merger should emit with a pending operation and zero thresholds")
	}

	found := false
	for _, p := range event.Body.ParentHash {
		if p == opHash {
			found = true
		}
	}
	if !found {
		t.Fatal("the pending operation should ride on the merge")
	}

	if err := es.Insert(event, dag.OriginLocal); err != nil {
		t.Fatalf("the merge should validate: %v", err)
	}
}

func TestMergeCollectsRemoteHeads(t *testing.T) {
	es := newTestStore(t)
	alice := newTestNode(t)
	bob := newTestNode(t)

	bobHead := bob.seedChain(t, es)

	merger := NewMerger(DefaultConfig(), es, always, logrus.NewEntry(common.NewTestLogger(t)))

	event, err := merger.Merge(NodeContext{
		Creator:    alice.id,
		CreatorKey: alice.key,
		PrivKey:    alice.priv,
		Witnesses:  []string{alice.id, bob.id},
	})
	if err != nil {
		t.Fatal(err)
	}
	if event == nil {
		t.Fatal("the merger should fold bob's head in")
	}

	found := false
	for _, p := range event.Body.ParentHash {
		if p == bobHead {
			found = true
		}
	}
	if !found {
		t.Fatal("bob's head should be a parent")
	}
	if event.Body.TreeHash != es.GenesisHash() {
		t.Fatal("alice's first merge should parent the genesis")
	}
}

func TestMergeBlocksBelowThreshold(t *testing.T) {
	es := newTestStore(t)
	alice := newTestNode(t)
	bob := newTestNode(t)

	//a non-witness head rules out the bootstrap waiver
	carol := newTestNode(t)
	carol.seedChain(t, es)

	conf := DefaultConfig()
	conf.WitnessMinimumThreshold = "1"

	merger := NewMerger(conf, es, always, logrus.NewEntry(common.NewTestLogger(t)))

	event, err := merger.Merge(NodeContext{
		Creator:    alice.id,
		CreatorKey: alice.key,
		PrivKey:    alice.priv,
		Witnesses:  []string{alice.id, bob.id},
	})
	if err != nil {
		t.Fatal(err)
	}
	if event != nil {
		t.Fatal("no witness heads available: the merger must emit nothing")
	}
}

func TestMergeSkipsWithheldCreators(t *testing.T) {
	es := newTestStore(t)
	alice := newTestNode(t)
	mallory := newTestNode(t)

	mallory.seedChain(t, es)

	//mallory forks her regular chain
	fork := dag.NewRegularEvent([]byte(`{"fork":1}`), es.GenesisHash(), mallory.id, mallory.key, 1, 0)
	if err := fork.Sign(mallory.priv); err != nil {
		t.Fatal(err)
	}
	if es.Insert(fork, dag.OriginPeer) == nil {
		t.Fatal("the fork should be rejected")
	}

	merger := NewMerger(DefaultConfig(), es, always, logrus.NewEntry(common.NewTestLogger(t)))

	event, err := merger.Merge(NodeContext{
		Creator:    alice.id,
		CreatorKey: alice.key,
		PrivKey:    alice.priv,
		Witnesses:  []string{alice.id, mallory.id},
	})
	if err != nil {
		t.Fatal(err)
	}
	if event != nil {
		t.Fatal("a withheld creator's head must not be merged")
	}
}

func TestMergeIdempotentWithoutNews(t *testing.T) {
	es := newTestStore(t)
	alice := newTestNode(t)
	bob := newTestNode(t)

	bob.seedChain(t, es)

	merger := NewMerger(DefaultConfig(), es, always, logrus.NewEntry(common.NewTestLogger(t)))
	ctx := NodeContext{
		Creator:    alice.id,
		CreatorKey: alice.key,
		PrivKey:    alice.priv,
		Witnesses:  []string{alice.id, bob.id},
	}

	first, err := merger.Merge(ctx)
	if err != nil || first == nil {
		t.Fatalf("first merge should succeed: %v", err)
	}
	if err := es.Insert(first, dag.OriginLocal); err != nil {
		t.Fatal(err)
	}

	second, err := merger.Merge(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second != nil {
		t.Fatal("nothing new to merge: the merger must emit nothing")
	}
}
