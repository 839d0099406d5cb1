package dag

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/mosaicnetworks/continuity/crypto"
)

// BlockBody is the hashed part of a block.
type BlockBody struct {
	// ConsensusProof lists the merge events whose mutual support closed
	// the decision.
	ConsensusProof []string `json:"consensusProof"`

	// ConsensusDate is the date assigned to the decision, shared by all
	// honest nodes.
	ConsensusDate time.Time `json:"consensusDate"`

	// EventHashes is the ordered set of committed events.
	EventHashes []string `json:"eventHashes"`

	// Height is the block height, 0 for genesis.
	Height int `json:"height"`

	// PreviousBlockHash chains blocks together.
	PreviousBlockHash string `json:"previousBlockHash"`
}

// Block is an ordered sequence of consensus-committed events.
type Block struct {
	Body BlockBody

	hash string
}

func NewBlock(height int, previousBlockHash string, eventHashes, consensusProof []string, consensusDate time.Time) *Block {
	return &Block{
		Body: BlockBody{
			ConsensusProof:    consensusProof,
			ConsensusDate:     consensusDate,
			EventHashes:       eventHashes,
			Height:            height,
			PreviousBlockHash: previousBlockHash,
		},
	}
}

func (b *Block) Height() int {
	return b.Body.Height
}

func (b *Block) EventHashes() []string {
	return b.Body.EventHashes
}

func (b *Block) ConsensusProof() []string {
	return b.Body.ConsensusProof
}

func (b *Block) PreviousBlockHash() string {
	return b.Body.PreviousBlockHash
}

// Canonical is the deterministic serialization of the body.
func (b *Block) Canonical() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(b.Body); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Hash returns the content-addressed block id.
func (b *Block) Hash() (string, error) {
	if b.hash == "" {
		canonical, err := b.Canonical()
		if err != nil {
			return "", err
		}
		b.hash = crypto.HashBytes(canonical)
	}
	return b.hash, nil
}

func (b *Block) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(b.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *Block) Unmarshal(data []byte) error {
	b.hash = ""
	return json.NewDecoder(bytes.NewBuffer(data)).Decode(&b.Body)
}
