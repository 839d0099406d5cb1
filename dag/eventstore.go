package dag

import (
	"fmt"
	"sync"
	"time"

	cm "github.com/mosaicnetworks/continuity/common"
	"github.com/sirupsen/logrus"
)

// Origin distinguishes locally-created events from gossiped ones.
// Duplicate inserts are benign for peer origin.
type Origin int

const (
	OriginLocal Origin = iota
	OriginPeer
)

// DagSlice is the input of the consensus engine: every event not yet
// marked consensus, with forward and backward indexes. Events are
// referenced by hash; the arena avoids owning pointer cycles.
type DagSlice struct {
	Events   map[string]*Event
	Parents  map[string][]string
	Children map[string][]string

	// Forked lists creators with a detected fork. Their events remain
	// in the slice but count for no one.
	Forked map[string]bool

	LastBlockHeight int
	GenesisHash     string
}

// EventStore owns the ledger's event records and their meta. A single
// worker writes; readers get consistent snapshots.
type EventStore struct {
	ledgerID string
	store    Store
	logger   *logrus.Entry

	genesisHash string

	// treeChildren maps creator+treeHash to the accepted child, for
	// fork detection
	treeChildren map[string]string
	forked       map[string]bool

	sync.RWMutex
}

func NewEventStore(ledgerID string, store Store, logger *logrus.Entry) (*EventStore, error) {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	es := &EventStore{
		ledgerID:     ledgerID,
		store:        store,
		logger:       logger.WithField("ledger", ledgerID),
		treeChildren: make(map[string]string),
		forked:       make(map[string]bool),
	}

	if err := es.initGenesis(); err != nil {
		return nil, err
	}

	return es, nil
}

// Genesis returns the deterministic genesis merge event of a ledger.
// It has no parents, merge height 0, and an empty signature; every
// creator's first merge event parents it.
func Genesis(ledgerID string) *Event {
	return &Event{
		Body: EventBody{
			BasisBlockHeight: 0,
			Creator:          "genesis:" + ledgerID,
			MergeHeight:      0,
			ParentHash:       []string{},
			TreeHash:         "",
		},
	}
}

func (es *EventStore) initGenesis() error {
	genesis := Genesis(es.ledgerID)
	hash, err := genesis.Hash()
	if err != nil {
		return err
	}
	es.genesisHash = hash

	if es.store.HasEvent(hash) {
		return nil
	}

	config := ConfigEvent(es.ledgerID, hash)
	configHash, err := config.Hash()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	epoch := time.Unix(0, 0).UTC()
	for _, event := range []*Event{genesis, config} {
		event.Meta = EventMeta{
			Consensus:     true,
			ConsensusDate: epoch,
			BlockHeight:   0,
			Created:       now,
			Updated:       now,
		}
		if err := es.store.PutEvent(event); err != nil {
			return err
		}
	}

	if es.store.LastBlockHeight() < 0 {
		genesisBlock := NewBlock(0, "", []string{hash, configHash}, []string{hash}, epoch)
		if err := es.store.AppendBlock(genesisBlock); err != nil {
			return err
		}
	}

	es.logger.WithField("genesis", hash).Debug("Genesis initialised")

	return nil
}

// ConfigEvent is the deterministic ledger configuration event carried
// by the genesis block.
func ConfigEvent(ledgerID, genesisHash string) *Event {
	op := fmt.Sprintf(`{"consensusMethod":"Continuity2017","ledger":"%s"}`, ledgerID)
	return &Event{
		Body: EventBody{
			BasisBlockHeight: 0,
			Creator:          "genesis:" + ledgerID,
			MergeHeight:      1,
			Operation:        []byte(op),
			ParentHash:       []string{genesisHash},
			TreeHash:         genesisHash,
		},
	}
}

// GenesisHash returns the ledger's genesis merge event hash.
func (es *EventStore) GenesisHash() string {
	return es.genesisHash
}

// Exists reports whether an event is stored.
func (es *EventStore) Exists(hash string) bool {
	return es.store.HasEvent(hash)
}

// GetEvent reads a stored event.
func (es *EventStore) GetEvent(hash string) (*Event, error) {
	return es.store.GetEvent(hash)
}

// GetBlock reads a committed block.
func (es *EventStore) GetBlock(height int) (*Block, error) {
	return es.store.GetBlock(height)
}

// LastBlockHeight returns the committing block height.
func (es *EventStore) LastBlockHeight() int {
	return es.store.LastBlockHeight()
}

// ConsensusEventCount returns the number of committed events.
func (es *EventStore) ConsensusEventCount() int {
	return es.store.ConsensusEventCount()
}

// AppendBlock commits a decided block.
func (es *EventStore) AppendBlock(block *Block) error {
	return es.store.AppendBlock(block)
}

// GetLocalBranchHead returns the latest merge event by creator known
// locally, or genesis if none.
func (es *EventStore) GetLocalBranchHead(creator string) (string, error) {
	head, err := es.store.CreatorHead(creator)
	if err != nil {
		return "", err
	}
	if head == "" {
		return es.genesisHash, nil
	}
	return head, nil
}

// Creators lists every creator with stored events.
func (es *EventStore) Creators() []string {
	return es.store.Creators()
}

// ForkedCreators returns a copy of the detected-fork set.
func (es *EventStore) ForkedCreators() map[string]bool {
	es.RLock()
	defer es.RUnlock()

	res := make(map[string]bool, len(es.forked))
	for k := range es.forked {
		res[k] = true
	}
	return res
}

// Insert validates and stores one event. Validation order: shape,
// signature, parents-exist, tree-parent continuity, merge height.
// Duplicate and MissingParents are recoverable; any other failure
// signals a byzantine sender.
func (es *EventStore) Insert(event *Event, origin Origin) error {
	es.Lock()
	defer es.Unlock()

	hash, err := event.Hash()
	if err != nil {
		return cm.WrapError(cm.Validation, "event hash", err)
	}

	if es.store.HasEvent(hash) {
		return cm.NewError(cm.Duplicate, hash)
	}

	if err := es.validateShape(event); err != nil {
		return err
	}

	ok, err := event.Verify()
	if err != nil || !ok {
		return cm.WrapError(cm.Validation, fmt.Sprintf("signature of %s", hash), err)
	}

	if missing := es.missingParents(event); len(missing) > 0 {
		return cm.NewMissingParents(missing)
	}

	if err := es.validateAncestry(event, hash); err != nil {
		return err
	}

	if event.Meta.Created.IsZero() {
		now := time.Now().UTC()
		event.Meta.Created = now
		event.Meta.Updated = now
	}

	if err := es.store.PutEvent(event); err != nil {
		return err
	}

	es.logger.WithFields(logrus.Fields{
		"hash":         hash,
		"creator":      event.Body.Creator,
		"merge_height": event.Body.MergeHeight,
		"merge":        event.IsMerge(),
		"origin":       origin,
	}).Debug("Inserted event")

	return nil
}

func (es *EventStore) validateShape(event *Event) error {
	b := event.Body

	if b.Creator == "" || b.CreatorKey == "" {
		return cm.NewError(cm.Validation, "missing creator")
	}

	if b.TreeHash == "" {
		return cm.NewError(cm.Validation, "missing tree hash")
	}

	if event.IsMerge() {
		if len(b.ParentHash) < 2 {
			return cm.NewError(cm.Validation, "merge event needs at least 2 parents")
		}
		treeCount := 0
		seen := map[string]bool{}
		for _, p := range b.ParentHash {
			if seen[p] {
				return cm.NewError(cm.Validation, "repeated parent "+p)
			}
			seen[p] = true
			if p == b.TreeHash {
				treeCount++
			}
		}
		if treeCount != 1 {
			return cm.NewError(cm.Validation, "merge event needs exactly one tree parent")
		}
	} else {
		if len(b.ParentHash) != 1 || b.ParentHash[0] != b.TreeHash {
			return cm.NewError(cm.Validation, "regular event parents must be [treeHash]")
		}
	}

	return nil
}

func (es *EventStore) missingParents(event *Event) []string {
	missing := []string{}
	for _, p := range event.Body.ParentHash {
		if !es.store.HasEvent(p) {
			missing = append(missing, p)
		}
	}
	return missing
}

func (es *EventStore) validateAncestry(event *Event, hash string) error {
	b := event.Body
	creator := b.Creator

	maxParentHeight := 0
	parentCreators := map[string]bool{}

	for _, p := range b.ParentHash {
		parent, err := es.store.GetEvent(p)
		if err != nil {
			return err
		}

		if parent.Body.MergeHeight > maxParentHeight {
			maxParentHeight = parent.Body.MergeHeight
		}

		if p == b.TreeHash {
			//the tree parent continues the creator's own chain
			if parent.Body.Creator != creator && p != es.genesisHash {
				return cm.NewError(cm.ProtocolViolation,
					fmt.Sprintf("tree parent %s not by creator %s", p, creator))
			}
			if event.IsMerge() {
				head, err := es.store.CreatorHead(creator)
				if err != nil {
					return err
				}
				prior := head
				if prior == "" {
					prior = es.genesisHash
				}
				if p != prior {
					//a second merge on the same tree parent is a fork
					return es.recordFork(creator, p, hash)
				}
			}
			continue
		}

		//non-tree parents are merge events by other creators, or the
		//creator's own pending regular events being folded in
		if !event.IsMerge() {
			continue
		}
		if parent.Body.Creator == creator {
			if parent.IsMerge() {
				return cm.NewError(cm.ProtocolViolation,
					fmt.Sprintf("merge event parents creator's own non-tree merge %s", p))
			}
			continue
		}
		if !parent.IsMerge() {
			return cm.NewError(cm.Validation,
				fmt.Sprintf("non-tree parent %s is not a merge event", p))
		}
		if parentCreators[parent.Body.Creator] {
			return cm.NewError(cm.Validation,
				fmt.Sprintf("two merge parents by creator %s", parent.Body.Creator))
		}
		parentCreators[parent.Body.Creator] = true
	}

	if b.MergeHeight != maxParentHeight+1 {
		return cm.NewError(cm.ProtocolViolation,
			fmt.Sprintf("merge height %d, want %d", b.MergeHeight, maxParentHeight+1))
	}

	if b.BasisBlockHeight < 0 {
		return cm.NewError(cm.Validation, "negative basis block height")
	}

	//fork detection on the regular chain: two distinct regular events
	//by the same creator sharing a tree parent. Merge forks are caught
	//against the creator head above.
	if !event.IsMerge() {
		key := creator + "|" + b.TreeHash
		if prev, ok := es.treeChildren[key]; ok && prev != hash {
			return es.recordFork(creator, b.TreeHash, hash)
		}
		es.treeChildren[key] = hash
	}

	return nil
}

// recordFork marks a creator byzantine. The forking event is not
// stored; prior events stay in the DAG but count for no one.
func (es *EventStore) recordFork(creator, treeHash, hash string) error {
	es.forked[creator] = true

	es.logger.WithFields(logrus.Fields{
		"creator":   creator,
		"tree_hash": treeHash,
		"event":     hash,
	}).Warn("Fork detected")

	return cm.NewError(cm.ProtocolViolation,
		fmt.Sprintf("fork by %s on %s", creator, treeHash))
}

// IsAncestor reports whether ancestor is reachable from hash through
// parent edges. An event is not its own ancestor.
func (es *EventStore) IsAncestor(ancestor, hash string) bool {
	visited := map[string]bool{}
	queue := []string{hash}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		event, err := es.store.GetEvent(current)
		if err != nil {
			continue
		}
		for _, p := range event.Body.ParentHash {
			if p == ancestor {
				return true
			}
			if !visited[p] {
				visited[p] = true
				queue = append(queue, p)
			}
		}
	}
	return false
}

// MarkConsensus flags events as committed. Atomic: all or none.
func (es *EventStore) MarkConsensus(hashes []string, blockHeight int, consensusDate time.Time, elector string) error {
	return es.store.MarkConsensus(hashes, blockHeight, consensusDate, elector)
}

// GetRecentHistory snapshots all non-consensus events with their
// forward and backward indexes populated.
func (es *EventStore) GetRecentHistory() (*DagSlice, error) {
	es.RLock()
	defer es.RUnlock()

	events, err := es.store.NonConsensusEvents()
	if err != nil {
		return nil, err
	}

	slice := &DagSlice{
		Events:          make(map[string]*Event, len(events)),
		Parents:         make(map[string][]string, len(events)),
		Children:        make(map[string][]string),
		Forked:          make(map[string]bool, len(es.forked)),
		LastBlockHeight: es.store.LastBlockHeight(),
		GenesisHash:     es.genesisHash,
	}

	for creator := range es.forked {
		slice.Forked[creator] = true
	}

	for _, event := range events {
		hash, err := event.Hash()
		if err != nil {
			return nil, err
		}
		slice.Events[hash] = event
		slice.Parents[hash] = event.Body.ParentHash
	}

	for hash, parents := range slice.Parents {
		for _, p := range parents {
			slice.Children[p] = append(slice.Children[p], hash)
		}
	}

	return slice, nil
}
