package dag

import (
	"testing"
	"time"
)

func TestBlockHashStable(t *testing.T) {
	date := time.Unix(42, 0).UTC()

	b1 := NewBlock(3, "zprev", []string{"za", "zb"}, []string{"zy"}, date)
	b2 := NewBlock(3, "zprev", []string{"za", "zb"}, []string{"zy"}, date)

	h1, err := b1.Hash()
	if err != nil {
		t.Fatal(err)
	}
	h2, _ := b2.Hash()

	if h1 != h2 {
		t.Fatal("identical blocks must hash identically")
	}

	b3 := NewBlock(3, "zprev", []string{"zb", "za"}, []string{"zy"}, date)
	h3, _ := b3.Hash()
	if h3 == h1 {
		t.Fatal("event order is part of the block identity")
	}
}

func TestBlockRoundTrip(t *testing.T) {
	date := time.Unix(42, 0).UTC()
	block := NewBlock(3, "zprev", []string{"za"}, []string{"zy"}, date)
	hash, _ := block.Hash()

	raw, err := block.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	decoded := new(Block)
	if err := decoded.Unmarshal(raw); err != nil {
		t.Fatal(err)
	}

	decodedHash, _ := decoded.Hash()
	if decodedHash != hash {
		t.Fatal("block hash should survive a round-trip")
	}
	if decoded.PreviousBlockHash() != "zprev" {
		t.Fatal("previous hash should survive a round-trip")
	}
}
