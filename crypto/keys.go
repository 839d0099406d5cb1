package crypto

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/mr-tron/base58"
)

// GenerateKey creates a new Ed25519 key pair.
func GenerateKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// Sign signs msg with priv and returns the detached signature in
// multibase form.
func Sign(priv ed25519.PrivateKey, msg []byte) string {
	return multibaseEncode(ed25519.Sign(priv, msg))
}

// Verify checks a multibase signature produced by Sign.
func Verify(pub ed25519.PublicKey, msg []byte, sig string) bool {
	raw, err := multibaseDecode(sig)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, msg, raw)
}

// PublicKeyID derives the stable peer identifier from a public key: the
// multibase-encoded blake2b-256 of the raw key bytes. Every event's
// creator field carries this id.
func PublicKeyID(pub ed25519.PublicKey) string {
	return HashBytes(pub)
}

// PublicKeyMultibase is the multibase form of the raw public key, used on the
// wire so receivers can verify signatures.
func PublicKeyMultibase(pub ed25519.PublicKey) string {
	return multibaseEncode(pub)
}

// DecodePublicKey reverses PublicKeyMultibase.
func DecodePublicKey(s string) (ed25519.PublicKey, error) {
	raw, err := multibaseDecode(s)
	if err != nil {
		return nil, err
	}
	return ed25519.PublicKey(raw), nil
}

func multibaseEncode(b []byte) string {
	return "z" + base58.Encode(b)
}

func multibaseDecode(s string) ([]byte, error) {
	if len(s) > 0 && s[0] == 'z' {
		s = s[1:]
	}
	return base58.Decode(s)
}
