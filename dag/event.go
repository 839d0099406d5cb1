package dag

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"time"

	"github.com/mosaicnetworks/continuity/crypto"
)

// EventBody is the canonical, signed part of an event. Field names are
// declared in lexicographic order so that encoding/json emits the
// deterministic canonical form: sorted keys, no extra whitespace. The
// signature is never part of the hash input.
type EventBody struct {
	// BasisBlockHeight is the committing block height visible to the
	// creator when the event was emitted.
	BasisBlockHeight int `json:"basisBlockHeight"`

	// Creator is the producing peer's stable id, derived from its
	// public key.
	Creator string `json:"creator"`

	// CreatorKey is the creator's public key in multibase form, carried
	// so receivers can verify the signature without a key registry.
	CreatorKey string `json:"creatorKey"`

	// MergeHeight is 1 + max(parent.MergeHeight), 0 for genesis.
	MergeHeight int `json:"mergeHeight"`

	// Operation is the opaque payload of a regular event. Empty for
	// merge events.
	Operation []byte `json:"operation,omitempty"`

	// ParentHash lists the event's parents. For a regular event it is
	// exactly [TreeHash]. For a merge event it contains the tree parent
	// plus at least one merge event by another creator.
	ParentHash []string `json:"parentHash"`

	// TreeHash is the parent in the creator's own chain.
	TreeHash string `json:"treeHash"`
}

// EventMeta is node-local bookkeeping, never signed or gossiped.
type EventMeta struct {
	Consensus     bool      `json:"consensus"`
	ConsensusDate time.Time `json:"consensusDate"`
	BlockHeight   int       `json:"blockHeight"`

	// Continuity2017Creator is the elector whose Y-event closed the
	// decision that committed this event.
	Continuity2017Creator string `json:"continuity2017Creator,omitempty"`

	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// Event is a node of the ledger DAG.
type Event struct {
	Body      EventBody
	Signature string
	Meta      EventMeta

	hash string
}

// NewRegularEvent wraps an operation payload under the creator's
// current tree head.
func NewRegularEvent(operation []byte, treeHash, creator, creatorKey string, mergeHeight, basisBlockHeight int) *Event {
	return &Event{
		Body: EventBody{
			BasisBlockHeight: basisBlockHeight,
			Creator:          creator,
			CreatorKey:       creatorKey,
			MergeHeight:      mergeHeight,
			Operation:        operation,
			ParentHash:       []string{treeHash},
			TreeHash:         treeHash,
		},
	}
}

// NewMergeEvent joins the creator's tree head with remote heads.
// parents must contain treeHash.
func NewMergeEvent(treeHash string, parents []string, creator, creatorKey string, mergeHeight, basisBlockHeight int) *Event {
	return &Event{
		Body: EventBody{
			BasisBlockHeight: basisBlockHeight,
			Creator:          creator,
			CreatorKey:       creatorKey,
			MergeHeight:      mergeHeight,
			ParentHash:       parents,
			TreeHash:         treeHash,
		},
	}
}

// IsMerge reports whether the event is a merge event. Merge events
// carry no payload.
func (e *Event) IsMerge() bool {
	return len(e.Body.Operation) == 0
}

// Canonical returns the deterministic serialization of the body, the
// hash and signature input.
func (e *Event) Canonical() ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	if err := enc.Encode(e.Body); err != nil {
		return nil, err
	}
	// Encoder appends a newline which is not part of the canonical form
	return bytes.TrimRight(b.Bytes(), "\n"), nil
}

// Hash returns the content-addressed id of the event.
func (e *Event) Hash() (string, error) {
	if e.hash == "" {
		canonical, err := e.Canonical()
		if err != nil {
			return "", err
		}
		e.hash = crypto.HashBytes(canonical)
	}
	return e.hash, nil
}

// Sign signs the canonical form with the creator's key.
func (e *Event) Sign(priv ed25519.PrivateKey) error {
	canonical, err := e.Canonical()
	if err != nil {
		return err
	}
	e.Signature = crypto.Sign(priv, canonical)
	return nil
}

// Verify checks the signature against the CreatorKey carried in the
// body, and that the Creator id matches that key.
func (e *Event) Verify() (bool, error) {
	pub, err := crypto.DecodePublicKey(e.Body.CreatorKey)
	if err != nil {
		return false, err
	}

	if crypto.PublicKeyID(pub) != e.Body.Creator {
		return false, nil
	}

	canonical, err := e.Canonical()
	if err != nil {
		return false, err
	}

	return crypto.Verify(pub, canonical, e.Signature), nil
}

// NonTreeParents returns the parents other than the tree parent.
func (e *Event) NonTreeParents() []string {
	res := []string{}
	for _, p := range e.Body.ParentHash {
		if p != e.Body.TreeHash {
			res = append(res, p)
		}
	}
	return res
}

// Marshal encodes body, signature and meta for storage.
func (e *Event) Marshal() ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	if err := enc.Encode(e); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (e *Event) Unmarshal(data []byte) error {
	return json.NewDecoder(bytes.NewBuffer(data)).Decode(e)
}

// MarshalJSON keeps the cached hash out of the encoding.
func (e *Event) MarshalJSON() ([]byte, error) {
	type alias struct {
		Body      EventBody `json:"body"`
		Signature string    `json:"signature"`
		Meta      EventMeta `json:"meta"`
	}
	return json.Marshal(alias{Body: e.Body, Signature: e.Signature, Meta: e.Meta})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	type alias struct {
		Body      EventBody `json:"body"`
		Signature string    `json:"signature"`
		Meta      EventMeta `json:"meta"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	e.Body = a.Body
	e.Signature = a.Signature
	e.Meta = a.Meta
	e.hash = ""
	return nil
}

// ByConsensusOrder implements the deterministic block ordering:
// (mergeHeight asc, eventHash asc).
type ByConsensusOrder []*Event

func (a ByConsensusOrder) Len() int      { return len(a) }
func (a ByConsensusOrder) Swap(i, j int) { a[i], a[j] = a[j], a[i] }
func (a ByConsensusOrder) Less(i, j int) bool {
	if a[i].Body.MergeHeight != a[j].Body.MergeHeight {
		return a[i].Body.MergeHeight < a[j].Body.MergeHeight
	}
	hi, _ := a[i].Hash()
	hj, _ := a[j].Hash()
	return hi < hj
}

// WireEvent is the gossip envelope: the canonical event form plus the
// detached signature.
type WireEvent struct {
	Body      EventBody `json:"body"`
	Signature string    `json:"signature"`
}

// ToWire strips node-local meta.
func (e *Event) ToWire() WireEvent {
	return WireEvent{
		Body:      e.Body,
		Signature: e.Signature,
	}
}

// FromWire rebuilds an Event with fresh meta.
func FromWire(w WireEvent) *Event {
	now := time.Now().UTC()
	return &Event{
		Body:      w.Body,
		Signature: w.Signature,
		Meta: EventMeta{
			Created: now,
			Updated: now,
		},
	}
}
