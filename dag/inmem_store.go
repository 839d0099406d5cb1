package dag

import (
	"fmt"
	"sync"
	"time"

	cm "github.com/mosaicnetworks/continuity/common"
)

// InmemStore is the reference Store implementation. It also serves as
// the write-through cache of the persistent stores.
type InmemStore struct {
	cacheSize int

	eventCache    map[string]*Event
	creatorChains map[string]*cm.RollingIndex
	creatorSeq    map[string]int
	creatorHeads  map[string]string
	creators      []string

	nonConsensus map[string]bool
	consensusCnt int

	blocks          map[int]*Block
	lastBlockHeight int

	sync.RWMutex
}

func NewInmemStore(cacheSize int) *InmemStore {
	return &InmemStore{
		cacheSize:       cacheSize,
		eventCache:      make(map[string]*Event),
		creatorChains:   make(map[string]*cm.RollingIndex),
		creatorSeq:      make(map[string]int),
		creatorHeads:    make(map[string]string),
		nonConsensus:    make(map[string]bool),
		blocks:          make(map[int]*Block),
		lastBlockHeight: -1,
	}
}

func (s *InmemStore) CacheSize() int {
	return s.cacheSize
}

func (s *InmemStore) PutEvent(event *Event) error {
	s.Lock()
	defer s.Unlock()

	hash, err := event.Hash()
	if err != nil {
		return err
	}

	if _, ok := s.eventCache[hash]; ok {
		return cm.NewError(cm.Duplicate, hash)
	}

	creator := event.Body.Creator

	chain, ok := s.creatorChains[creator]
	if !ok {
		chain = cm.NewRollingIndex(fmt.Sprintf("CreatorChain[%s]", creator), s.cacheSize)
		s.creatorChains[creator] = chain
		s.creators = append(s.creators, creator)
	}

	seq := s.creatorSeq[creator]
	if err := chain.Set(hash, seq); err != nil {
		return err
	}
	s.creatorSeq[creator] = seq + 1

	s.eventCache[hash] = event

	if event.IsMerge() {
		s.creatorHeads[creator] = hash
	}

	if !event.Meta.Consensus {
		s.nonConsensus[hash] = true
	} else {
		s.consensusCnt++
	}

	return nil
}

func (s *InmemStore) GetEvent(hash string) (*Event, error) {
	s.RLock()
	defer s.RUnlock()

	event, ok := s.eventCache[hash]
	if !ok {
		return nil, cm.NewError(cm.KeyNotFound, hash)
	}
	return event, nil
}

func (s *InmemStore) HasEvent(hash string) bool {
	s.RLock()
	defer s.RUnlock()

	_, ok := s.eventCache[hash]
	return ok
}

func (s *InmemStore) CreatorEvents(creator string, skipIndex int) ([]string, error) {
	s.RLock()
	defer s.RUnlock()

	chain, ok := s.creatorChains[creator]
	if !ok {
		return nil, cm.NewError(cm.KeyNotFound, creator)
	}

	cached, err := chain.Get(skipIndex)
	if err != nil {
		return nil, err
	}

	res := make([]string, len(cached))
	for i := range cached {
		res[i] = cached[i].(string)
	}
	return res, nil
}

func (s *InmemStore) CreatorHead(creator string) (string, error) {
	s.RLock()
	defer s.RUnlock()

	return s.creatorHeads[creator], nil
}

func (s *InmemStore) Creators() []string {
	s.RLock()
	defer s.RUnlock()

	res := make([]string, len(s.creators))
	copy(res, s.creators)
	return res
}

func (s *InmemStore) NonConsensusEvents() ([]*Event, error) {
	s.RLock()
	defer s.RUnlock()

	res := make([]*Event, 0, len(s.nonConsensus))
	for hash := range s.nonConsensus {
		res = append(res, s.eventCache[hash])
	}
	return res, nil
}

func (s *InmemStore) MarkConsensus(hashes []string, blockHeight int, consensusDate time.Time, elector string) error {
	s.Lock()
	defer s.Unlock()

	//all or none
	for _, hash := range hashes {
		if _, ok := s.eventCache[hash]; !ok {
			return cm.NewError(cm.KeyNotFound, hash)
		}
	}

	now := time.Now().UTC()
	for _, hash := range hashes {
		event := s.eventCache[hash]
		if event.Meta.Consensus {
			continue
		}
		event.Meta.Consensus = true
		event.Meta.ConsensusDate = consensusDate
		event.Meta.BlockHeight = blockHeight
		event.Meta.Continuity2017Creator = elector
		event.Meta.Updated = now
		delete(s.nonConsensus, hash)
		s.consensusCnt++
	}

	return nil
}

func (s *InmemStore) ConsensusEventCount() int {
	s.RLock()
	defer s.RUnlock()

	return s.consensusCnt
}

func (s *InmemStore) AppendBlock(block *Block) error {
	s.Lock()
	defer s.Unlock()

	height := block.Height()
	if height != s.lastBlockHeight+1 {
		return cm.NewError(cm.SkippedIndex, fmt.Sprintf("block %d", height))
	}

	s.blocks[height] = block
	s.lastBlockHeight = height

	return nil
}

func (s *InmemStore) GetBlock(height int) (*Block, error) {
	s.RLock()
	defer s.RUnlock()

	block, ok := s.blocks[height]
	if !ok {
		return nil, cm.NewError(cm.KeyNotFound, fmt.Sprintf("block %d", height))
	}
	return block, nil
}

func (s *InmemStore) LastBlockHeight() int {
	s.RLock()
	defer s.RUnlock()

	return s.lastBlockHeight
}

func (s *InmemStore) Close() error {
	return nil
}
