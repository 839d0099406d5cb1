package crypto

import (
	"io/ioutil"
	"os"
	"testing"
)

func TestSignVerify(t *testing.T) {
	pub, priv, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	msg := []byte("time for beans")

	sig := Sign(priv, msg)

	if !Verify(pub, msg, sig) {
		t.Fatal("signature should verify")
	}

	if Verify(pub, []byte("time for rice"), sig) {
		t.Fatal("signature should not verify a different message")
	}
}

func TestHashStable(t *testing.T) {
	h1 := HashBytes([]byte("payload"))
	h2 := HashBytes([]byte("payload"))

	if h1 != h2 {
		t.Fatalf("hash not stable: %s != %s", h1, h2)
	}

	if !ValidHash(h1) {
		t.Fatalf("hash %s should be well-formed", h1)
	}

	if ValidHash("zQmnothash") {
		t.Fatal("truncated hash should not be well-formed")
	}
}

func TestPublicKeyRoundTrip(t *testing.T) {
	pub, priv, _ := GenerateKey()

	enc := PublicKeyMultibase(pub)
	dec, err := DecodePublicKey(enc)
	if err != nil {
		t.Fatal(err)
	}

	sig := Sign(priv, []byte("msg"))
	if !Verify(dec, []byte("msg"), sig) {
		t.Fatal("decoded key should verify signature")
	}
}

func TestReadWritePemKey(t *testing.T) {
	dir, err := ioutil.TempDir("", "pem_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	_, priv, _ := GenerateKey()

	pemKey := NewPemKey(dir)
	if err := pemKey.WriteKey(priv); err != nil {
		t.Fatal(err)
	}

	read, err := pemKey.ReadKey()
	if err != nil {
		t.Fatal(err)
	}

	if !priv.Equal(read) {
		t.Fatal("keys should be equal after round-trip")
	}
}
