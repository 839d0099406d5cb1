package node

import (
	"crypto/ed25519"
	"math/rand"
	"sync"
	"time"

	"github.com/mosaicnetworks/continuity/config"
	"github.com/mosaicnetworks/continuity/consensus"
	"github.com/mosaicnetworks/continuity/dag"
	"github.com/mosaicnetworks/continuity/gossip"
	"github.com/mosaicnetworks/continuity/merge"
	"github.com/mosaicnetworks/continuity/net"
	"github.com/mosaicnetworks/continuity/ops"
	"github.com/mosaicnetworks/continuity/peers"
	"github.com/sirupsen/logrus"
)

// Node is the per-ledger cooperative worker. One cycle pulls from
// selected peers, maybe merges, evaluates consensus, and commits. Only
// one cycle runs at a time.
type Node struct {
	nodeState

	conf   *config.Config
	logger *logrus.Entry

	validator *Validator

	core     *Core
	coreLock sync.Mutex

	trans net.Transport
	netCh <-chan net.RPC

	client *gossip.Client
	server *gossip.Server

	queue *ops.Queue

	controlTimer *ControlTimer

	shutdownCh chan struct{}
	start      time.Time
}

// NewNode assembles a worker from its collaborators. The consensus
// registry is passed explicitly; the ledger's configured method is
// resolved from it.
func NewNode(
	conf *config.Config,
	key ed25519.PrivateKey,
	store dag.Store,
	trans net.Transport,
	validator ops.Validator,
	registry *consensus.Registry,
	ledgerWitnesses []string,
	knownPeers []*peers.Peer,
) (*Node, error) {
	logger := conf.Logger().WithField("ledger", conf.LedgerID)

	identity := NewValidator(key, conf.Moniker)

	eventStore, err := dag.NewEventStore(conf.LedgerID, store, logger)
	if err != nil {
		return nil, err
	}

	peerRegistry := peers.NewRegistry(conf.RegistryConfig(), logger)
	for _, p := range knownPeers {
		if p.ID == identity.ID() {
			continue
		}
		peerRegistry.Upsert(p)
	}

	merger := merge.NewMerger(conf.MergeConfig(), eventStore, rand.Float64, logger)

	engine, err := registry.Get(consensus.MethodName)
	if err != nil {
		return nil, err
	}

	core := NewCore(identity, eventStore, peerRegistry, merger, engine, ledgerWitnesses, logger)

	server := gossip.NewServer(identity.ID(), eventStore, logger)
	client := gossip.NewClient(identity.ID(), trans, eventStore, peerRegistry, logger)

	node := &Node{
		conf:         conf,
		logger:       logger.WithField("this_id", identity.ID()),
		validator:    identity,
		core:         core,
		trans:        trans,
		netCh:        trans.Consumer(),
		client:       client,
		server:       server,
		queue:        ops.NewQueue(conf.OperationQueueSize, validator),
		controlTimer: NewRandomControlTimer(),
		shutdownCh:   make(chan struct{}),
		start:        time.Now(),
	}

	return node, nil
}

// Core exposes the per-ledger state, mainly for the HTTP service and
// tests.
func (n *Node) Core() *Core {
	return n.core
}

// Submit queues a regular operation. Returns LoadError when the intake
// is full.
func (n *Node) Submit(op []byte) error {
	return n.queue.Submit(op)
}

// RunAsync calls Run in a separate goroutine.
func (n *Node) RunAsync(gossip bool) {
	go n.Run(gossip)
}

// Run invokes the main loop of the node.
func (n *Node) Run(gossip bool) {
	go n.controlTimer.Run(n.conf.HeartbeatTimeout)

	go n.doBackgroundWork()

	for {
		state := n.getState()

		switch state {
		case Gossiping:
			n.gossiping(gossip)
		case Shutdown:
			return
		}
	}
}

// doBackgroundWork serves inbound RPCs and drains the operation queue
// regardless of cycle timing. Notify signals and queued operations
// call resetTimer, which schedules a tick only when none is pending; a
// tick that is already scheduled is not brought forward.
func (n *Node) doBackgroundWork() {
	for {
		select {
		case rpc := <-n.netCh:
			n.goFunc(func() {
				n.server.HandleRPC(rpc)
			})
		case from := <-n.server.NotifyCh():
			n.logger.WithField("from", from).Debug("Notified of new events")
			n.resetTimer()
		case op := <-n.queue.Ch():
			n.addOperation(op)
			n.resetTimer()
		case <-n.shutdownCh:
			return
		}
	}
}

// gossiping runs worker cycles on timer ticks.
func (n *Node) gossiping(gossip bool) {
	for {
		select {
		case <-n.controlTimer.tickCh:
			if gossip {
				n.RunCycle()
			}
			n.resetTimer()
		case <-n.shutdownCh:
			return
		}
	}
}

// RunCycle executes one worker cycle: gossip, merge, consensus,
// commit. Exposed so tests and tooling can step a node manually.
func (n *Node) RunCycle() {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	now := time.Now().UTC()

	candidates := n.core.Registry().Candidates(now)
	if len(candidates) > n.conf.GossipFanout {
		candidates = candidates[:n.conf.GossipFanout]
	}

	for _, peer := range candidates {
		select {
		case <-n.shutdownCh:
			return
		default:
		}

		received, err := n.client.Pull(peer)
		if err != nil {
			n.logger.WithError(err).WithField("peer", peer.ID).Debug("Pull failed")
			continue
		}
		if received > 0 {
			n.logger.WithFields(logrus.Fields{
				"peer":   peer.ID,
				"merges": received,
			}).Debug("Pulled events")
		}
	}

	mergeEvent, err := n.core.MaybeMerge()
	if err != nil {
		n.logger.WithError(err).Error("Merge failed")
	}

	if _, err := n.core.RunConsensus(); err != nil {
		n.logger.WithError(err).Error("Consensus failed")
	}

	//let peers know there is something new to pull
	if mergeEvent != nil {
		for _, peer := range n.core.Registry().Candidates(now) {
			n.client.Notify(peer)
		}
	}
}

func (n *Node) addOperation(op []byte) {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	if err := n.core.AddOperation(op); err != nil {
		n.logger.WithError(err).Error("Adding operation")
	}
}

func (n *Node) resetTimer() {
	if !n.controlTimer.set {
		ts := n.conf.HeartbeatTimeout

		//slow the heartbeat down when there is nothing to say
		n.coreLock.Lock()
		busy := n.core.Busy()
		n.coreLock.Unlock()
		if !busy {
			ts = n.conf.SlowHeartbeatTimeout
		}

		n.controlTimer.resetCh <- ts
	}
}

// Shutdown stops the worker and its transport. Inserts are atomic, so
// an interrupted cycle leaves the store consistent.
func (n *Node) Shutdown() {
	if n.getState() == Shutdown {
		return
	}

	n.logger.Debug("Shutdown")

	close(n.shutdownCh)

	n.setState(Shutdown)

	n.controlTimer.Shutdown()

	n.waitRoutines()

	n.trans.Close()
}

// GetStats summarises the node for the HTTP service.
func (n *Node) GetStats() map[string]string {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	stats := n.core.Stats()
	stats["state"] = n.getState().String()
	stats["uptime"] = time.Since(n.start).String()
	return stats
}
