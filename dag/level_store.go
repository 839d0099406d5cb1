package dag

import (
	"fmt"
	"time"

	cm "github.com/mosaicnetworks/continuity/common"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelStore is the lighter persistent Store, backed by goleveldb. It
// shares the key layout of BadgerStore.
type LevelStore struct {
	inmemStore *InmemStore
	db         *leveldb.DB
	path       string
}

func NewLevelStore(cacheSize int, path string) (*LevelStore, error) {
	handle, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}

	return &LevelStore{
		inmemStore: NewInmemStore(cacheSize),
		db:         handle,
		path:       path,
	}, nil
}

func (s *LevelStore) CacheSize() int {
	return s.inmemStore.CacheSize()
}

func (s *LevelStore) PutEvent(event *Event) error {
	if err := s.inmemStore.PutEvent(event); err != nil {
		return err
	}

	hash, err := event.Hash()
	if err != nil {
		return err
	}
	raw, err := event.Marshal()
	if err != nil {
		return err
	}

	creator := event.Body.Creator
	seq := s.inmemStore.creatorSeq[creator] - 1

	batch := new(leveldb.Batch)
	batch.Put(eventKey(hash), raw)
	batch.Put(creatorKey(creator, seq), []byte(hash))
	if event.IsMerge() {
		batch.Put(headKey(creator), []byte(hash))
	}
	return s.db.Write(batch, nil)
}

func (s *LevelStore) GetEvent(hash string) (*Event, error) {
	event, err := s.inmemStore.GetEvent(hash)
	if err == nil {
		return event, nil
	}

	raw, err := s.db.Get(eventKey(hash), nil)
	if err != nil {
		return nil, cm.WrapError(cm.KeyNotFound, hash, err)
	}

	event = new(Event)
	if err := event.Unmarshal(raw); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *LevelStore) HasEvent(hash string) bool {
	if s.inmemStore.HasEvent(hash) {
		return true
	}
	ok, _ := s.db.Has(eventKey(hash), nil)
	return ok
}

func (s *LevelStore) CreatorEvents(creator string, skipIndex int) ([]string, error) {
	res, err := s.inmemStore.CreatorEvents(creator, skipIndex)
	if err == nil {
		return res, nil
	}

	//cache miss or rolled window: fall back to the full index
	res = []string{}
	prefix := []byte(fmt.Sprintf("%s_%s_", creatorPrefix, creator))
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	for ok := iter.Seek(creatorKey(creator, skipIndex+1)); ok; ok = iter.Next() {
		res = append(res, string(iter.Value()))
	}
	return res, iter.Error()
}

func (s *LevelStore) CreatorHead(creator string) (string, error) {
	head, _ := s.inmemStore.CreatorHead(creator)
	if head != "" {
		return head, nil
	}

	raw, err := s.db.Get(headKey(creator), nil)
	if err == leveldb.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (s *LevelStore) Creators() []string {
	return s.inmemStore.Creators()
}

func (s *LevelStore) NonConsensusEvents() ([]*Event, error) {
	return s.inmemStore.NonConsensusEvents()
}

func (s *LevelStore) MarkConsensus(hashes []string, blockHeight int, consensusDate time.Time, elector string) error {
	if err := s.inmemStore.MarkConsensus(hashes, blockHeight, consensusDate, elector); err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	for _, hash := range hashes {
		event, err := s.inmemStore.GetEvent(hash)
		if err != nil {
			return err
		}
		raw, err := event.Marshal()
		if err != nil {
			return err
		}
		batch.Put(eventKey(hash), raw)
		batch.Put(consensusKey(consensusDate, hash), []byte(hash))
	}
	return s.db.Write(batch, nil)
}

func (s *LevelStore) ConsensusEventCount() int {
	return s.inmemStore.ConsensusEventCount()
}

func (s *LevelStore) AppendBlock(block *Block) error {
	if err := s.inmemStore.AppendBlock(block); err != nil {
		return err
	}

	raw, err := block.Marshal()
	if err != nil {
		return err
	}
	return s.db.Put(blockKey(block.Height()), raw, nil)
}

func (s *LevelStore) GetBlock(height int) (*Block, error) {
	block, err := s.inmemStore.GetBlock(height)
	if err == nil {
		return block, nil
	}

	raw, err := s.db.Get(blockKey(height), nil)
	if err != nil {
		return nil, cm.WrapError(cm.KeyNotFound, fmt.Sprintf("block %d", height), err)
	}

	block = new(Block)
	if err := block.Unmarshal(raw); err != nil {
		return nil, err
	}
	return block, nil
}

func (s *LevelStore) LastBlockHeight() int {
	return s.inmemStore.LastBlockHeight()
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}
