package common

import (
	"strconv"
	"testing"
)

func TestRollingIndex(t *testing.T) {
	size := 10
	testSize := 3 * size
	rollingIndex := NewRollingIndex("test", size)
	items := []string{}
	for i := 0; i < testSize; i++ {
		item := "item" + strconv.Itoa(i)
		rollingIndex.Set(item, i)
		items = append(items, item)
	}
	cached, lastIndex := rollingIndex.GetLastWindow()

	expectedLastIndex := testSize - 1
	if lastIndex != expectedLastIndex {
		t.Fatalf("lastIndex should be %d, not %d", expectedLastIndex, lastIndex)
	}

	start := (testSize / (2 * size)) * (size)
	expectedItems := items[start:]
	for i, item := range expectedItems {
		if cached[i] != item {
			t.Fatalf("cached[%d] should be %s, not %s", i, item, cached[i])
		}
	}

	err := rollingIndex.Set("PassedIndex", expectedLastIndex+2)
	if err == nil || !Is(err, SkippedIndex) {
		t.Fatalf("Should return SkippedIndex error, got %v", err)
	}

	_, err = rollingIndex.GetItem(start - 1)
	if err == nil || !Is(err, TooLate) {
		t.Fatalf("Should return TooLate error, got %v", err)
	}

	item, err := rollingIndex.GetItem(expectedLastIndex)
	if err != nil {
		t.Fatal(err)
	}
	if item != items[expectedLastIndex] {
		t.Fatalf("last item should be %s, not %s", items[expectedLastIndex], item)
	}
}
