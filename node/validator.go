package node

import (
	"crypto/ed25519"

	"github.com/mosaicnetworks/continuity/crypto"
)

// Validator is the local node's signing identity.
type Validator struct {
	Key     ed25519.PrivateKey
	Moniker string

	id     string
	pubKey string
}

func NewValidator(key ed25519.PrivateKey, moniker string) *Validator {
	pub := key.Public().(ed25519.PublicKey)
	return &Validator{
		Key:     key,
		Moniker: moniker,
		id:      crypto.PublicKeyID(pub),
		pubKey:  crypto.PublicKeyMultibase(pub),
	}
}

// ID is the stable peer identifier derived from the public key.
func (v *Validator) ID() string {
	return v.id
}

// PublicKey is the multibase form of the public key, carried in every
// event this node creates.
func (v *Validator) PublicKey() string {
	return v.pubKey
}
