package common

import "strconv"

// RollingIndex is a bounded window over a gapless sequence of items.
// The dag store uses one per creator to cache the tail of that
// creator's event chain without holding the whole history in memory.
type RollingIndex struct {
	name      string
	size      int
	lastIndex int
	items     []interface{}
}

func NewRollingIndex(name string, size int) *RollingIndex {
	return &RollingIndex{
		name:      name,
		size:      size,
		items:     make([]interface{}, 0, 2*size),
		lastIndex: -1,
	}
}

func (r *RollingIndex) GetLastWindow() (lastWindow []interface{}, lastIndex int) {
	return r.items, r.lastIndex
}

// Get returns all cached items with index > skipIndex.
func (r *RollingIndex) Get(skipIndex int) ([]interface{}, error) {
	res := []interface{}{}

	if skipIndex > r.lastIndex {
		return res, nil
	}

	cachedItems := len(r.items)
	//assume there are no gaps between indexes
	oldestCachedIndex := r.lastIndex - cachedItems + 1
	if skipIndex+1 < oldestCachedIndex {
		return res, NewError(TooLate, r.name+" "+strconv.Itoa(skipIndex))
	}

	start := skipIndex - oldestCachedIndex + 1

	return r.items[start:], nil
}

func (r *RollingIndex) GetItem(index int) (interface{}, error) {
	items := len(r.items)
	oldestCached := r.lastIndex - items + 1
	if index < oldestCached {
		return nil, NewError(TooLate, r.name+" "+strconv.Itoa(index))
	}
	findex := index - oldestCached
	if findex >= items {
		return nil, NewError(KeyNotFound, r.name+" "+strconv.Itoa(index))
	}
	return r.items[findex], nil
}

func (r *RollingIndex) Set(item interface{}, index int) error {
	//only allow setting items with index <= lastIndex + 1, so that the
	//window stays gapless
	if 0 <= r.lastIndex && index > r.lastIndex+1 {
		return NewError(SkippedIndex, r.name+" "+strconv.Itoa(index))
	}

	//adding a new item
	if r.lastIndex < 0 || index == r.lastIndex+1 {
		if len(r.items) >= 2*r.size {
			r.roll()
		}
		r.items = append(r.items, item)
		r.lastIndex = index
		return nil
	}

	//replacing an existing item; it must still be inside the window
	cachedItems := len(r.items)
	oldestCachedIndex := r.lastIndex - cachedItems + 1

	if index < oldestCachedIndex {
		return NewError(TooLate, r.name+" "+strconv.Itoa(index))
	}

	position := index - oldestCachedIndex
	r.items[position] = item

	return nil
}

func (r *RollingIndex) roll() {
	newList := make([]interface{}, 0, 2*r.size)
	newList = append(newList, r.items[r.size:]...)
	r.items = newList
}
