package dag

import "time"

// Store is the persistence collaborator of the event store. All writes
// are atomic per row; CreatorEvents provides the range-scan keyed by
// (creator, sequence in creator's chain).
type Store interface {
	CacheSize() int

	PutEvent(*Event) error
	GetEvent(string) (*Event, error)
	HasEvent(string) bool

	// CreatorEvents returns the hashes of events by creator with
	// per-creator sequence > skipIndex, in chain order.
	CreatorEvents(creator string, skipIndex int) ([]string, error)

	// CreatorHead returns the hash of the latest merge event by
	// creator, or an empty string if none is known.
	CreatorHead(creator string) (string, error)

	// Creators lists every creator with at least one stored event.
	Creators() []string

	// NonConsensusEvents returns every stored event not yet marked
	// consensus.
	NonConsensusEvents() ([]*Event, error)

	// MarkConsensus flags the listed events as committed at blockHeight.
	// All or none.
	MarkConsensus(hashes []string, blockHeight int, consensusDate time.Time, elector string) error

	ConsensusEventCount() int

	AppendBlock(*Block) error
	GetBlock(height int) (*Block, error)
	LastBlockHeight() int

	Close() error
}
