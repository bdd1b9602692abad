package page

import "github.com/dolthub/maphash"

// pageTable is an open-addressing id -> *Page table, the same hashing
// dependency as the teacher's arena/swiss.Map narrowed to a single key type
// (page.ID) and a table that only ever grows. Unlike swiss.Map it probes
// one slot at a time rather than matching a 16-wide control-byte group;
// that SIMD-oriented machinery buys nothing here since Pool tables are
// small (one entry per allocated page, never resized down) and are never
// on a hot path shared with production code.
type pageTable struct {
	hash    maphash.Hasher[ID]
	keys    []ID
	values  []*Page
	used    []bool
	resident int
}

const initialBuckets = 16

func newPageTable() *pageTable {
	return &pageTable{
		hash:   maphash.NewHasher[ID](),
		keys:   make([]ID, initialBuckets),
		values: make([]*Page, initialBuckets),
		used:   make([]bool, initialBuckets),
	}
}

func (t *pageTable) maxLoad() int { return len(t.keys) * 3 / 4 }

func (t *pageTable) probe(id ID) int {
	mask := uint64(len(t.keys) - 1)
	i := t.hash.Hash(id) & mask

	for {
		if !t.used[i] || t.keys[i] == id {
			return int(i)
		}

		i = (i + 1) & mask
	}
}

// Get returns the page stored for id, if any.
func (t *pageTable) Get(id ID) (*Page, bool) {
	i := t.probe(id)

	if !t.used[i] {
		return nil, false
	}

	return t.values[i], true
}

// Put stores p under id, replacing any existing entry.
func (t *pageTable) Put(id ID, p *Page) {
	if t.resident >= t.maxLoad() {
		t.grow()
	}

	i := t.probe(id)
	if !t.used[i] {
		t.resident++
	}

	t.keys[i] = id
	t.values[i] = p
	t.used[i] = true
}

// Delete removes id from the table, if present.
func (t *pageTable) Delete(id ID) {
	i := t.probe(id)
	if !t.used[i] {
		return
	}

	// Simple tombstone-free deletion: rebuild the probe chain that follows
	// i so later lookups still terminate correctly. Tables here are small
	// and deletions rare (only on Release), so an O(chain) shuffle is fine.
	t.used[i] = false
	t.values[i] = nil
	t.resident--

	mask := uint64(len(t.keys) - 1)
	j := (uint64(i) + 1) & mask

	for t.used[j] {
		k, v := t.keys[j], t.values[j]
		t.used[j] = false
		t.values[j] = nil
		t.resident--
		t.Put(k, v)
		j = (j + 1) & mask
	}
}

func (t *pageTable) grow() {
	old := *t
	size := len(t.keys) * 2

	t.keys = make([]ID, size)
	t.values = make([]*Page, size)
	t.used = make([]bool, size)
	t.resident = 0

	for i, used := range old.used {
		if used {
			t.Put(old.keys[i], old.values[i])
		}
	}
}
