package dag

import (
	"io/ioutil"
	"os"
	"testing"
)

func TestLevelStoreEvents(t *testing.T) {
	dir, err := ioutil.TempDir("", "leveldb")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store, err := NewLevelStore(10, dir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	alice := newTestCreator(t)
	event := alice.regular(t, `{"op":1}`, "ztree", 1)
	hash, _ := event.Hash()

	if err := store.PutEvent(event); err != nil {
		t.Fatal(err)
	}

	if !store.HasEvent(hash) {
		t.Fatal("stored event should exist")
	}

	merge := alice.merge(t, hash, []string{hash, "zother"}, 2)
	mergeHash, _ := merge.Hash()
	if err := store.PutEvent(merge); err != nil {
		t.Fatal(err)
	}

	head, err := store.CreatorHead(alice.id)
	if err != nil {
		t.Fatal(err)
	}
	if head != mergeHash {
		t.Fatal("the merge should become the creator head")
	}
}
