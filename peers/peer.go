package peers

import (
	"crypto/ed25519"
	"time"

	"github.com/mosaicnetworks/continuity/crypto"
)

// Cursor is the pagination token exchanged between peers to speed
// incremental gossip. Opaque on the wire.
type Cursor struct {
	Generation          int `json:"generation"`
	RequiredBlockHeight int `json:"requiredBlockHeight"`
}

// FailureSnapshot records the start of a failure streak.
type FailureSnapshot struct {
	Time       time.Time `json:"time"`
	Reputation int       `json:"reputation"`
}

// IdleSnapshot records when a peer started returning empty pulls.
type IdleSnapshot struct {
	Time             time.Time `json:"time"`
	LocalBlockHeight int       `json:"localBlockHeight"`
}

// Status is the mutable gossip bookkeeping of a peer.
type Status struct {
	BackoffUntil        time.Time        `json:"backoffUntil"`
	LastPullAt          time.Time        `json:"lastPullAt"`
	LastPushAt          time.Time        `json:"lastPushAt"`
	LastPullResult      string           `json:"lastPullResult"`
	Cursor              *Cursor          `json:"cursor,omitempty"`
	RequiredBlockHeight int              `json:"requiredBlockHeight"`
	ConsecutiveFailures int              `json:"consecutiveFailures"`
	FirstFailure        *FailureSnapshot `json:"firstFailure,omitempty"`
	Idle                *IdleSnapshot    `json:"idle,omitempty"`
}

// Peer is a known remote node. ID is derived from the peer's public
// key; Reputation stays in [0,100].
type Peer struct {
	ID          string `json:"id"`
	NetAddr     string `json:"netAddr"`
	PubKey      string `json:"pubKey"`
	Reputation  int    `json:"reputation"`
	Recommended bool   `json:"recommended"`
	Status      Status `json:"status"`
	Sequence    int    `json:"sequence"`
}

// NewPeer creates a peer record from its public key and address.
func NewPeer(pubKey ed25519.PublicKey, netAddr string) *Peer {
	return &Peer{
		ID:      crypto.PublicKeyID(pubKey),
		NetAddr: netAddr,
		PubKey:  crypto.PublicKeyMultibase(pubKey),
	}
}

// ByCandidateOrder sorts peers for gossip selection: recommended
// first, then by reputation, then least-recently pulled.
type ByCandidateOrder []*Peer

func (a ByCandidateOrder) Len() int      { return len(a) }
func (a ByCandidateOrder) Swap(i, j int) { a[i], a[j] = a[j], a[i] }
func (a ByCandidateOrder) Less(i, j int) bool {
	if a[i].Recommended != a[j].Recommended {
		return a[i].Recommended
	}
	if a[i].Reputation != a[j].Reputation {
		return a[i].Reputation > a[j].Reputation
	}
	return a[i].Status.LastPullAt.Before(a[j].Status.LastPullAt)
}

// ByID sorts peers by id, for deterministic listings.
type ByID []*Peer

func (a ByID) Len() int           { return len(a) }
func (a ByID) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ByID) Less(i, j int) bool { return a[i].ID < a[j].ID }
