package dag

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger"
	cm "github.com/mosaicnetworks/continuity/common"
)

const (
	eventPrefix     = "ev"
	creatorPrefix   = "cr"
	headPrefix      = "hd"
	blockPrefix     = "bk"
	consensusPrefix = "cd"
)

// BadgerStore is a write-through persistent Store. The InmemStore
// fronts it as a cache; Badger holds the full history.
type BadgerStore struct {
	inmemStore *InmemStore
	db         *badger.DB
	path       string
}

// NewBadgerStore creates a brand new store with a fresh database.
func NewBadgerStore(cacheSize int, path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = false
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		inmemStore: NewInmemStore(cacheSize),
		db:         handle,
		path:       path,
	}

	return store, nil
}

func eventKey(hash string) []byte {
	return []byte(fmt.Sprintf("%s_%s", eventPrefix, hash))
}

func creatorKey(creator string, index int) []byte {
	return []byte(fmt.Sprintf("%s_%s_%010d", creatorPrefix, creator, index))
}

func headKey(creator string) []byte {
	return []byte(fmt.Sprintf("%s_%s", headPrefix, creator))
}

func blockKey(height int) []byte {
	return []byte(fmt.Sprintf("%s_%010d", blockPrefix, height))
}

func consensusKey(date time.Time, hash string) []byte {
	return []byte(fmt.Sprintf("%s_%s_%s", consensusPrefix, date.UTC().Format(time.RFC3339Nano), hash))
}

func (s *BadgerStore) CacheSize() int {
	return s.inmemStore.CacheSize()
}

func (s *BadgerStore) PutEvent(event *Event) error {
	if err := s.inmemStore.PutEvent(event); err != nil {
		return err
	}
	return s.dbSetEvent(event)
}

func (s *BadgerStore) GetEvent(hash string) (*Event, error) {
	event, err := s.inmemStore.GetEvent(hash)
	if err != nil {
		event, err = s.dbGetEvent(hash)
	}
	return event, err
}

func (s *BadgerStore) HasEvent(hash string) bool {
	if s.inmemStore.HasEvent(hash) {
		return true
	}
	_, err := s.dbGetEvent(hash)
	return err == nil
}

func (s *BadgerStore) CreatorEvents(creator string, skipIndex int) ([]string, error) {
	res, err := s.inmemStore.CreatorEvents(creator, skipIndex)
	if err != nil {
		//cache miss or rolled window: fall back to the full index
		res, err = s.dbCreatorEvents(creator, skipIndex)
	}
	return res, err
}

func (s *BadgerStore) CreatorHead(creator string) (string, error) {
	head, _ := s.inmemStore.CreatorHead(creator)
	if head == "" {
		return s.dbGetHead(creator)
	}
	return head, nil
}

func (s *BadgerStore) Creators() []string {
	return s.inmemStore.Creators()
}

func (s *BadgerStore) NonConsensusEvents() ([]*Event, error) {
	return s.inmemStore.NonConsensusEvents()
}

func (s *BadgerStore) MarkConsensus(hashes []string, blockHeight int, consensusDate time.Time, elector string) error {
	if err := s.inmemStore.MarkConsensus(hashes, blockHeight, consensusDate, elector); err != nil {
		return err
	}

	//rewrite the event rows and the ordered consensus index in a single
	//transaction: all or none
	return s.db.Update(func(tx *badger.Txn) error {
		for _, hash := range hashes {
			event, err := s.inmemStore.GetEvent(hash)
			if err != nil {
				return err
			}
			raw, err := event.Marshal()
			if err != nil {
				return err
			}
			if err := tx.Set(eventKey(hash), raw); err != nil {
				return err
			}
			if err := tx.Set(consensusKey(consensusDate, hash), []byte(hash)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) ConsensusEventCount() int {
	return s.inmemStore.ConsensusEventCount()
}

func (s *BadgerStore) AppendBlock(block *Block) error {
	if err := s.inmemStore.AppendBlock(block); err != nil {
		return err
	}
	return s.dbSetBlock(block)
}

func (s *BadgerStore) GetBlock(height int) (*Block, error) {
	block, err := s.inmemStore.GetBlock(height)
	if err != nil {
		block, err = s.dbGetBlock(height)
	}
	return block, err
}

func (s *BadgerStore) LastBlockHeight() int {
	return s.inmemStore.LastBlockHeight()
}

func (s *BadgerStore) Close() error {
	if err := s.inmemStore.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

/*******************************************************************************
DB Methods
*******************************************************************************/

func (s *BadgerStore) dbSetEvent(event *Event) error {
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

	return s.db.Update(func(tx *badger.Txn) error {
		if err := tx.Set(eventKey(hash), raw); err != nil {
			return err
		}
		if err := tx.Set(creatorKey(creator, seq), []byte(hash)); err != nil {
			return err
		}
		if event.IsMerge() {
			if err := tx.Set(headKey(creator), []byte(hash)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) dbGetEvent(hash string) (*Event, error) {
	var raw []byte
	err := s.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get(eventKey(hash))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, cm.WrapError(cm.KeyNotFound, hash, err)
	}

	event := new(Event)
	if err := event.Unmarshal(raw); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *BadgerStore) dbCreatorEvents(creator string, skipIndex int) ([]string, error) {
	res := []string{}
	err := s.db.View(func(tx *badger.Txn) error {
		it := tx.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(fmt.Sprintf("%s_%s_", creatorPrefix, creator))
		start := creatorKey(creator, skipIndex+1)
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			res = append(res, string(val))
		}
		return nil
	})
	return res, err
}

func (s *BadgerStore) dbGetHead(creator string) (string, error) {
	var head string
	err := s.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get(headKey(creator))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		head = string(val)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return "", nil
	}
	return head, err
}

func (s *BadgerStore) dbSetBlock(block *Block) error {
	raw, err := block.Marshal()
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *badger.Txn) error {
		return tx.Set(blockKey(block.Height()), raw)
	})
}

func (s *BadgerStore) dbGetBlock(height int) (*Block, error) {
	var raw []byte
	err := s.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get(blockKey(height))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, cm.WrapError(cm.KeyNotFound, fmt.Sprintf("block %d", height), err)
	}

	block := new(Block)
	if err := block.Unmarshal(raw); err != nil {
		return nil, err
	}
	return block, nil
}
