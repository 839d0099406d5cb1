package dag

import (
	"testing"
	"time"
)

func TestInmemStoreEvents(t *testing.T) {
	store := NewInmemStore(10)
	alice := newTestCreator(t)

	event := alice.regular(t, `{"op":1}`, "ztree", 1)
	hash, _ := event.Hash()

	if err := store.PutEvent(event); err != nil {
		t.Fatal(err)
	}

	if !store.HasEvent(hash) {
		t.Fatal("stored event should exist")
	}

	got, err := store.GetEvent(hash)
	if err != nil {
		t.Fatal(err)
	}
	gotHash, _ := got.Hash()
	if gotHash != hash {
		t.Fatal("retrieved event should match")
	}

	events, err := store.CreatorEvents(alice.id, -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0] != hash {
		t.Fatalf("creator index should hold the event, got %v", events)
	}
}

func TestInmemStoreHeads(t *testing.T) {
	store := NewInmemStore(10)
	alice := newTestCreator(t)

	head, _ := store.CreatorHead(alice.id)
	if head != "" {
		t.Fatal("unknown creators have no head")
	}

	merge := alice.merge(t, "ztree", []string{"ztree", "zother"}, 1)
	mergeHash, _ := merge.Hash()
	if err := store.PutEvent(merge); err != nil {
		t.Fatal(err)
	}

	head, _ = store.CreatorHead(alice.id)
	if head != mergeHash {
		t.Fatal("the merge should become the creator head")
	}
}

func TestInmemStoreBlocks(t *testing.T) {
	store := NewInmemStore(10)

	if store.LastBlockHeight() != -1 {
		t.Fatal("a fresh store has no blocks")
	}

	b0 := NewBlock(0, "", []string{"za"}, []string{"za"}, time.Unix(0, 0))
	if err := store.AppendBlock(b0); err != nil {
		t.Fatal(err)
	}

	//gaps are rejected
	b2 := NewBlock(2, "zh", []string{"zb"}, nil, time.Unix(0, 0))
	if err := store.AppendBlock(b2); err == nil {
		t.Fatal("appending block 2 after block 0 should fail")
	}

	b1 := NewBlock(1, "zh", []string{"zb"}, nil, time.Unix(0, 0))
	if err := store.AppendBlock(b1); err != nil {
		t.Fatal(err)
	}

	if store.LastBlockHeight() != 1 {
		t.Fatalf("last block height should be 1, got %d", store.LastBlockHeight())
	}

	got, err := store.GetBlock(1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Height() != 1 {
		t.Fatal("retrieved block should match")
	}
}

func TestInmemStoreMarkConsensus(t *testing.T) {
	store := NewInmemStore(10)
	alice := newTestCreator(t)

	event := alice.regular(t, `{"op":1}`, "ztree", 1)
	hash, _ := event.Hash()
	store.PutEvent(event)

	if store.ConsensusEventCount() != 0 {
		t.Fatal("nothing is committed yet")
	}

	date := time.Now().UTC()
	if err := store.MarkConsensus([]string{hash}, 3, date, alice.id); err != nil {
		t.Fatal(err)
	}

	if store.ConsensusEventCount() != 1 {
		t.Fatal("one event should be committed")
	}

	pending, _ := store.NonConsensusEvents()
	if len(pending) != 0 {
		t.Fatal("committed events should leave the pending set")
	}
}
