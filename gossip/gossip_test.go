package gossip

import (
	"crypto/ed25519"
	"testing"
	"time"

	cm "github.com/mosaicnetworks/continuity/common"
	"github.com/mosaicnetworks/continuity/crypto"
	"github.com/mosaicnetworks/continuity/dag"
	"github.com/mosaicnetworks/continuity/net"
	"github.com/mosaicnetworks/continuity/peers"
	"github.com/sirupsen/logrus"
)

type testPeerIdentity struct {
	id   string
	key  string
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newIdentity(t *testing.T) *testPeerIdentity {
	t.Helper()

	pub, priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return &testPeerIdentity{
		id:   crypto.PublicKeyID(pub),
		key:  crypto.PublicKeyMultibase(pub),
		pub:  pub,
		priv: priv,
	}
}

func newStore(t *testing.T) *dag.EventStore {
	t.Helper()

	es, err := dag.NewEventStore("test", dag.NewInmemStore(100), logrus.NewEntry(cm.NewTestLogger(t)))
	if err != nil {
		t.Fatal(err)
	}
	return es
}

// seed gives the identity an op and a merge in the store, returning
// both hashes.
func (p *testPeerIdentity) seed(t *testing.T, es *dag.EventStore, payload string) (string, string) {
	t.Helper()

	tree, _ := es.GetLocalBranchHead(p.id)
	parent, err := es.GetEvent(tree)
	if err != nil {
		t.Fatal(err)
	}

	op := dag.NewRegularEvent([]byte(payload), tree, p.id, p.key, parent.Body.MergeHeight+1, 0)
	if err := op.Sign(p.priv); err != nil {
		t.Fatal(err)
	}
	if err := es.Insert(op, dag.OriginLocal); err != nil {
		t.Fatal(err)
	}
	opHash, _ := op.Hash()

	mergeEvent := dag.NewMergeEvent(tree, []string{tree, opHash}, p.id, p.key, op.Body.MergeHeight+1, 0)
	if err := mergeEvent.Sign(p.priv); err != nil {
		t.Fatal(err)
	}
	if err := es.Insert(mergeEvent, dag.OriginLocal); err != nil {
		t.Fatal(err)
	}
	mergeHash, _ := mergeEvent.Hash()

	return opHash, mergeHash
}

// wire connects a client node to a server node over inmem transports
// and pumps the server's RPCs.
func wire(t *testing.T, localStore, remoteStore *dag.EventStore, local, remote *testPeerIdentity) (*Client, *peers.Registry, *peers.Peer, chan struct{}) {
	t.Helper()

	localAddr, localTrans := net.NewInmemTransport("")
	remoteAddr, remoteTrans := net.NewInmemTransport("")
	localTrans.Connect(remoteAddr, remoteTrans)
	remoteTrans.Connect(localAddr, localTrans)

	logger := logrus.NewEntry(cm.NewTestLogger(t))

	server := NewServer(remote.id, remoteStore, logger)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case rpc := <-remoteTrans.Consumer():
				server.HandleRPC(rpc)
			case <-done:
				return
			}
		}
	}()
	t.Cleanup(func() {
		close(done)
		localTrans.Close()
		remoteTrans.Close()
	})

	registry := peers.NewRegistry(peers.DefaultRegistryConfig(), logger)
	rec := peers.NewPeer(remote.pub, remoteAddr)
	registry.Upsert(rec)

	client := NewClient(local.id, localTrans, localStore, registry, logger)

	return client, registry, rec, done
}

func TestPullIntegratesRemoteEvents(t *testing.T) {
	local := newIdentity(t)
	remote := newIdentity(t)

	localStore := newStore(t)
	remoteStore := newStore(t)

	opHash, mergeHash := remote.seed(t, remoteStore, `{"op":1}`)

	client, registry, rec, _ := wire(t, localStore, remoteStore, local, remote)

	merges, err := client.Pull(rec)
	if err != nil {
		t.Fatal(err)
	}
	if merges != 1 {
		t.Fatalf("one merge event should be integrated, got %d", merges)
	}

	if !localStore.Exists(opHash) || !localStore.Exists(mergeHash) {
		t.Fatal("pulled events should land in the local store")
	}

	got, _ := registry.Get(rec.ID)
	if got.Reputation != 1 {
		t.Fatalf("a productive pull should raise reputation to 1, got %d", got.Reputation)
	}
	if got.Status.Cursor == nil {
		t.Fatal("the cursor should be recorded")
	}
}

func TestPullIdempotent(t *testing.T) {
	local := newIdentity(t)
	remote := newIdentity(t)

	localStore := newStore(t)
	remoteStore := newStore(t)
	remote.seed(t, remoteStore, `{"op":1}`)

	client, registry, rec, _ := wire(t, localStore, remoteStore, local, remote)

	if _, err := client.Pull(rec); err != nil {
		t.Fatal(err)
	}

	//the second pull re-sends uncommitted events; duplicates are
	//swallowed
	merges, err := client.Pull(rec)
	if err != nil {
		t.Fatal(err)
	}
	if merges != 0 {
		t.Fatalf("nothing new should be integrated, got %d", merges)
	}

	got, _ := registry.Get(rec.ID)
	if got.Status.Idle == nil {
		t.Fatal("an empty pull should start idle accounting")
	}
}

func TestPullChasesMissingParents(t *testing.T) {
	local := newIdentity(t)
	remote := newIdentity(t)

	localStore := newStore(t)
	remoteStore := newStore(t)
	opHash, mergeHash := remote.seed(t, remoteStore, `{"op":1}`)

	//a responder that first offers only the merge, and serves the rest
	//on targeted fetches
	localAddr, localTrans := net.NewInmemTransport("")
	remoteAddr, remoteTrans := net.NewInmemTransport("")
	localTrans.Connect(remoteAddr, remoteTrans)
	_ = localAddr

	logger := logrus.NewEntry(cm.NewTestLogger(t))
	done := make(chan struct{})
	go func() {
		for {
			select {
			case rpc := <-remoteTrans.Consumer():
				req := rpc.Command.(*net.PullRequest)
				resp := &net.PullResponse{FromID: remote.id}
				if len(req.WantHashes) == 0 {
					mergeEvent, _ := remoteStore.GetEvent(mergeHash)
					resp.Events = []dag.WireEvent{mergeEvent.ToWire()}
				} else {
					for _, h := range req.WantHashes {
						event, err := remoteStore.GetEvent(h)
						if err != nil {
							rpc.Respond(nil, cm.WrapError(cm.NotFound, h, err))
							continue
						}
						resp.Events = append(resp.Events, event.ToWire())
					}
				}
				rpc.Respond(resp, nil)
			case <-done:
				return
			}
		}
	}()
	defer close(done)

	registry := peers.NewRegistry(peers.DefaultRegistryConfig(), logger)
	rec := peers.NewPeer(remote.pub, remoteAddr)
	registry.Upsert(rec)

	client := NewClient(local.id, localTrans, localStore, registry, logger)

	merges, err := client.Pull(rec)
	if err != nil {
		t.Fatal(err)
	}
	if merges != 1 {
		t.Fatalf("the merge should integrate after fetching its parents, got %d", merges)
	}
	if !localStore.Exists(opHash) {
		t.Fatal("the missing parent should have been fetched")
	}
}

func TestPullNetworkFailureDrivesBackoff(t *testing.T) {
	local := newIdentity(t)
	remote := newIdentity(t)

	localStore := newStore(t)

	_, localTrans := net.NewInmemTransport("")
	defer localTrans.Close()

	logger := logrus.NewEntry(cm.NewTestLogger(t))
	registry := peers.NewRegistry(peers.DefaultRegistryConfig(), logger)

	//the peer's address routes nowhere
	rec := peers.NewPeer(remote.pub, "inmem-unreachable")
	rec.Reputation = 5
	registry.Upsert(rec)

	client := NewClient(local.id, localTrans, localStore, registry, logger)

	_, err := client.Pull(rec)
	if err == nil {
		t.Fatal("pulling an unreachable peer should fail")
	}

	got, _ := registry.Get(rec.ID)
	if got.Reputation != 4 {
		t.Fatalf("a failure should cost one reputation point, got %d", got.Reputation)
	}
	if !got.Status.BackoffUntil.After(time.Now().Add(-time.Second)) {
		t.Fatal("a failure should set backoff")
	}
	if len(registry.Candidates(time.Now())) != 0 {
		t.Fatal("a backed-off peer is not a candidate")
	}
}
