package node

import (
	"sort"
	"strconv"

	"github.com/mosaicnetworks/continuity/consensus"
	"github.com/mosaicnetworks/continuity/dag"
	"github.com/mosaicnetworks/continuity/merge"
	"github.com/mosaicnetworks/continuity/peers"
	"github.com/sirupsen/logrus"
)

// Core ties the per-ledger subsystems together: the event store, the
// peer registry, the merger and the consensus engine. The worker is
// its single writer.
type Core struct {
	validator *Validator

	store    *dag.EventStore
	registry *peers.Registry
	merger   *merge.Merger
	engine   consensus.Engine

	// genesisWitnesses is the configured witness set; Witnesses uses it
	// at every block height and committed state does not change it
	genesisWitnesses []string

	// pendingOp is the head of the local unmerged regular chain
	pendingOp string

	logger *logrus.Entry
}

func NewCore(
	validator *Validator,
	store *dag.EventStore,
	registry *peers.Registry,
	merger *merge.Merger,
	engine consensus.Engine,
	genesisWitnesses []string,
	logger *logrus.Entry,
) *Core {
	core := &Core{
		validator:        validator,
		store:            store,
		registry:         registry,
		merger:           merger,
		engine:           engine,
		genesisWitnesses: genesisWitnesses,
		logger:           logger.WithField("this_id", validator.ID()),
	}

	registry.SetWitnesses(core.Witnesses())

	return core
}

func (c *Core) Store() *dag.EventStore {
	return c.store
}

func (c *Core) Registry() *peers.Registry {
	return c.registry
}

// Witnesses derives the current witness set: the configured ledger
// witnesses, deduplicated and sorted. Deterministic across nodes
// sharing the same ledger configuration; the engine derives f from the
// set size.
func (c *Core) Witnesses() []string {
	set := map[string]bool{}
	for _, w := range c.genesisWitnesses {
		set[w] = true
	}

	witnesses := make([]string, 0, len(set))
	for w := range set {
		witnesses = append(witnesses, w)
	}
	sort.Strings(witnesses)

	return witnesses
}

// localChainHead is the creator's latest own event, pending regular
// events included.
func (c *Core) localChainHead() (string, error) {
	if c.pendingOp != "" {
		return c.pendingOp, nil
	}
	return c.store.GetLocalBranchHead(c.validator.ID())
}

// AddOperation wraps an operation payload in a regular event on the
// local chain and inserts it.
func (c *Core) AddOperation(op []byte) error {
	treeHash, err := c.localChainHead()
	if err != nil {
		return err
	}

	parent, err := c.store.GetEvent(treeHash)
	if err != nil {
		return err
	}

	event := dag.NewRegularEvent(
		op,
		treeHash,
		c.validator.ID(),
		c.validator.PublicKey(),
		parent.Body.MergeHeight+1,
		c.store.LastBlockHeight(),
	)

	if err := event.Sign(c.validator.Key); err != nil {
		return err
	}

	if err := c.store.Insert(event, dag.OriginLocal); err != nil {
		return err
	}

	hash, _ := event.Hash()
	c.pendingOp = hash

	c.logger.WithField("hash", hash).Debug("Added operation")

	return nil
}

// MaybeMerge lets the merger fold current heads into a new local merge
// event. Returns the new event, or nil when thresholds are not met.
func (c *Core) MaybeMerge() (*dag.Event, error) {
	ctx := merge.NodeContext{
		Creator:          c.validator.ID(),
		CreatorKey:       c.validator.PublicKey(),
		PrivKey:          c.validator.Key,
		Witnesses:        c.Witnesses(),
		LastBlockHeight:  c.store.LastBlockHeight(),
		PendingOperation: c.pendingOp,
	}

	event, err := c.merger.Merge(ctx)
	if err != nil || event == nil {
		return nil, err
	}

	if err := c.store.Insert(event, dag.OriginLocal); err != nil {
		return nil, err
	}

	//the merge folded the pending chain in
	for _, p := range event.Body.ParentHash {
		if p == c.pendingOp {
			c.pendingOp = ""
		}
	}

	return event, nil
}

// RunConsensus evaluates the recent history and commits a block when
// the engine decides one.
func (c *Core) RunConsensus() (*dag.Block, error) {
	slice, err := c.store.GetRecentHistory()
	if err != nil {
		return nil, err
	}

	result, err := c.engine.Evaluate(slice, c.Witnesses())
	if err != nil {
		return nil, err
	}

	if !result.Consensus {
		return nil, nil
	}

	hashes := make([]string, len(result.BlockEvents))
	for i, e := range result.BlockEvents {
		h, err := e.Hash()
		if err != nil {
			return nil, err
		}
		hashes[i] = h
	}

	prev, err := c.store.GetBlock(c.store.LastBlockHeight())
	if err != nil {
		return nil, err
	}
	prevHash, err := prev.Hash()
	if err != nil {
		return nil, err
	}

	if err := c.store.MarkConsensus(hashes, result.BlockHeight, result.ConsensusDate, result.Elector); err != nil {
		return nil, err
	}

	block := dag.NewBlock(result.BlockHeight, prevHash, hashes, result.ConsensusProof, result.ConsensusDate)
	if err := c.store.AppendBlock(block); err != nil {
		return nil, err
	}

	c.registry.SetWitnesses(c.Witnesses())

	blockHash, _ := block.Hash()
	c.logger.WithFields(logrus.Fields{
		"height": block.Height(),
		"hash":   blockHash,
		"events": len(hashes),
	}).Info("Committed block")

	return block, nil
}

// Busy reports whether there is anything to gossip about: a pending
// operation or uncommitted events.
func (c *Core) Busy() bool {
	if c.pendingOp != "" {
		return true
	}
	slice, err := c.store.GetRecentHistory()
	return err == nil && len(slice.Events) > 0
}

// Stats summarises the core for the HTTP service.
func (c *Core) Stats() map[string]string {
	slice, _ := c.store.GetRecentHistory()
	pending := 0
	if slice != nil {
		pending = len(slice.Events)
	}
	return map[string]string{
		"id":               c.validator.ID(),
		"moniker":          c.validator.Moniker,
		"last_block_height": strconv.Itoa(c.store.LastBlockHeight()),
		"consensus_events": strconv.Itoa(c.store.ConsensusEventCount()),
		"pending_events":   strconv.Itoa(pending),
		"peers":            strconv.Itoa(c.registry.Len()),
	}
}

