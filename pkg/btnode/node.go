// Package btnode gives a kvarray.Array an identity inside a tree: fence
// keys bounding its key range, a level, and the foster-child linkage a
// split installs before a parent has had a chance to adopt it.
package btnode

import (
	"encoding/binary"
	"errors"
	"iter"

	"github.com/foster-btree/core/internal/debug"
	"github.com/foster-btree/core/pkg/kvarray"
	"github.com/foster-btree/core/pkg/opt"
	"github.com/foster-btree/core/pkg/page"
	"github.com/foster-btree/core/pkg/xerrors"
)

// spanHeaderSize is the width, in bytes, of the length prefix a fence or
// foster-key span carries — the same convention slotarray uses for its own
// payload spans, so the two kinds of heap allocation read the same way.
const spanHeaderSize = 2

// allocSpan writes data as a length-prefixed span and returns its offset.
// It is how Node reserves the fence and foster-key spans that live at or
// past the floor it hands to kvarray.NewBounded — see slotarray's
// NewBounded doc comment. On a page with no entries the span goes just
// below the heap top; otherwise the span goes just below the current
// floor and the key-value payloads are first compacted to end below it,
// so every fixed span stays above every payload.
func (n *Node[K, V]) allocSpan(data []byte) uint16 {
	pg := n.pg
	off := int(pg.HeapEnd()) - spanHeaderSize - len(data)
	if pg.SlotCount() > 0 {
		off = n.floor() - spanHeaderSize - len(data)
		kvarray.NewBounded(pg, n.keys, n.vals, off).Compact()
	} else {
		pg.SetHeapEnd(uint16(off))
	}
	debug.Assert(off >= page.HeaderSize, "btnode: page has no room for a %d-byte fixed span", len(data))

	binary.LittleEndian.PutUint16(pg.Bytes()[off:], uint16(len(data)))
	copy(pg.Bytes()[off+spanHeaderSize:], data)

	return uint16(off)
}

func readSpan(pg *page.Page, off uint16) []byte {
	length := binary.LittleEndian.Uint16(pg.Bytes()[off:])
	start := int(off) + spanHeaderSize
	return pg.Bytes()[start : start+int(length)]
}

// Node is a page given ordering, fences, level, and foster linkage. It
// does not own the page or the allocator; callers construct one per
// operation, the same way kvarray.Array and slotarray.Array do.
type Node[K, V any] struct {
	pg   *page.Page
	keys kvarray.KeyEncoder[K]
	vals kvarray.ValueEncoder[V]
}

// Open wraps an already-initialized page. Use Initialize instead for a
// freshly allocated one.
func Open[K, V any](pg *page.Page, keys kvarray.KeyEncoder[K], vals kvarray.ValueEncoder[V]) *Node[K, V] {
	return &Node[K, V]{pg: pg, keys: keys, vals: vals}
}

// Initialize resets pg to an empty node with the given fences and level
// (0 = leaf). It must be called exactly once, before any other Node
// method, so that LowFenceOff/HighFenceOff are established before floor
// is ever computed.
func (n *Node[K, V]) Initialize(low, high K, level uint8) {
	n.pg.Reset()
	n.pg.SetLevel(level)

	lowBuf := make([]byte, n.keys.EncodedLen(low))
	n.keys.Encode(lowBuf, low)
	n.pg.SetLowFenceOff(n.allocSpan(lowBuf))

	highBuf := make([]byte, n.keys.EncodedLen(high))
	n.keys.Encode(highBuf, high)
	n.pg.SetHighFenceOff(n.allocSpan(highBuf))
}

// Page returns the underlying page.
func (n *Node[K, V]) Page() *page.Page { return n.pg }

// ID returns the page id this node lives on.
func (n *Node[K, V]) ID() page.ID { return n.pg.ID() }

// Level returns the node level; 0 means leaf.
func (n *Node[K, V]) Level() uint8 { return n.pg.Level() }

// IsLeaf reports whether this node is a leaf.
func (n *Node[K, V]) IsLeaf() bool { return n.pg.Level() == 0 }

// LowFence returns the node's inclusive lower key bound.
func (n *Node[K, V]) LowFence() K {
	k, _ := n.keys.Decode(readSpan(n.pg, n.pg.LowFenceOff()))
	return k
}

// HighFence returns the node's exclusive upper key bound.
func (n *Node[K, V]) HighFence() K {
	k, _ := n.keys.Decode(readSpan(n.pg, n.pg.HighFenceOff()))
	return k
}

// HasFoster reports whether this node currently has a foster child.
func (n *Node[K, V]) HasFoster() bool { return n.pg.HasFoster() }

// FosterChild returns the page id of the foster child. Only valid when
// HasFoster is true.
func (n *Node[K, V]) FosterChild() page.ID { return n.pg.FosterPtr() }

// FosterKey returns the foster separator key and true, or the zero value
// and false if this node has no foster child.
func (n *Node[K, V]) FosterKey() (K, bool) {
	if !n.pg.HasFoster() {
		var zero K
		return zero, false
	}

	k, _ := n.keys.Decode(readSpan(n.pg, n.pg.FosterKeyOff()))
	return k, true
}

// EffectiveHigh is HighFence, unless a foster child is present, in which
// case it is the foster key — the node no longer directly owns keys past
// that point.
func (n *Node[K, V]) EffectiveHigh() K {
	if fk, ok := n.FosterKey(); ok {
		return fk
	}
	return n.HighFence()
}

// Contains reports whether key falls in [LowFence, EffectiveHigh).
func (n *Node[K, V]) Contains(key K) bool {
	return !n.keys.Less(key, n.LowFence()) && n.keys.Less(key, n.EffectiveHigh())
}

// floor is the smallest heap offset this node's key-value directory may
// use: everything at or past it belongs to the fence/foster-key spans
// allocated directly via allocSpan, never to a slotarray payload.
func (n *Node[K, V]) floor() int {
	f := int(n.pg.LowFenceOff())
	if h := int(n.pg.HighFenceOff()); h < f {
		f = h
	}
	if n.pg.HasFoster() {
		if fk := int(n.pg.FosterKeyOff()); fk < f {
			f = fk
		}
	}
	return f
}

func (n *Node[K, V]) array() *kvarray.Array[K, V] {
	return kvarray.NewBounded(n.pg, n.keys, n.vals, n.floor())
}

// Insert adds key/value, fence-checked against Contains. A key outside
// range is a KeyOutOfRange invariant violation: it aborts in debug builds
// via debug.Assert and otherwise returns xerrors.ErrKeyOutOfRange.
func (n *Node[K, V]) Insert(key K, value V) error {
	if !n.Contains(key) {
		debug.Assert(false, "btnode: key %v out of range [%v, %v)", key, n.LowFence(), n.EffectiveHigh())
		return xerrors.ErrKeyOutOfRange
	}

	return n.array().Insert(key, value)
}

// Remove deletes key, fence-checked the same way Insert is. Returns
// xerrors.ErrNotFound if key is not present.
func (n *Node[K, V]) Remove(key K) error {
	if !n.Contains(key) {
		debug.Assert(false, "btnode: key %v out of range [%v, %v)", key, n.LowFence(), n.EffectiveHigh())
		return xerrors.ErrKeyOutOfRange
	}

	if !n.array().Remove(key) {
		return xerrors.NotFound(key)
	}

	return nil
}

// Find returns the value stored for key, if any.
func (n *Node[K, V]) Find(key K) (V, bool) { return n.array().Find(key) }

// Floor returns the value at the largest key <= key — the child-pointer
// lookup an internal node's descent step uses.
func (n *Node[K, V]) Floor(key K) (V, bool) { return n.array().Floor(key) }

// Neighbor returns the entry immediately after the one Floor(key) would
// resolve to — the adjacent-sibling lookup underflow handling uses.
func (n *Node[K, V]) Neighbor(key K) (K, V, bool) { return n.array().Neighbor(key) }

// SlotCount returns the number of live entries.
func (n *Node[K, V]) SlotCount() int { return n.array().SlotCount() }

// Read decodes the entry at directory position i, in sorted order.
func (n *Node[K, V]) Read(i int) (K, V) { return n.array().Read(i) }

// UsedSpace returns the directory's live byte count.
func (n *Node[K, V]) UsedSpace() int { return n.array().UsedSpace() }

// FreeSpace returns the directory's available bytes.
func (n *Node[K, V]) FreeSpace() int { return n.array().FreeSpace() }

// Compact reclaims heap space left behind by prior removals.
func (n *Node[K, V]) Compact() { n.array().Compact() }

// RangeIter returns a lazy, finite, restartable sequence over this node's
// entries whose key falls in [lo, hi).
func (n *Node[K, V]) RangeIter(lo, hi opt.Option[K]) iter.Seq2[K, V] {
	return n.array().RangeIter(lo, hi)
}

func (n *Node[K, V]) setHighFence(high K) {
	buf := make([]byte, n.keys.EncodedLen(high))
	n.keys.Encode(buf, high)
	n.pg.SetHighFenceOff(n.allocSpan(buf))
}

func (n *Node[K, V]) setLowFence(low K) {
	buf := make([]byte, n.keys.EncodedLen(low))
	n.keys.Encode(buf, low)
	n.pg.SetLowFenceOff(n.allocSpan(buf))
}

// ClearFoster drops this node's foster-child pointer, the Foster-parent
// --adopt--> Plain transition. It is the caller's (btree's) job to have
// already installed the foster key as a real separator in the true
// parent before calling this.
func (n *Node[K, V]) ClearFoster() { ClearFosterOf(n.pg) }

// FosterKeyOf decodes the foster separator key stored in pg, if any,
// directly from the page and a key codec — without requiring a full Node,
// whose value type may not be known statically at the call site (btree's
// opportunistic adoption walk only ever needs the foster key and child id
// off of a page it hasn't necessarily opened as a typed Node yet).
func FosterKeyOf[K any](pg *page.Page, keys kvarray.KeyEncoder[K]) (K, bool) {
	if !pg.HasFoster() {
		var zero K
		return zero, false
	}

	k, _ := keys.Decode(readSpan(pg, pg.FosterKeyOff()))
	return k, true
}

// ClearFosterOf drops pg's foster-child pointer and flag directly, the
// page-level half of ClearFoster.
func ClearFosterOf(pg *page.Page) {
	pg.SetHasFoster(false)
	pg.SetFosterPtr(0)
}

// Split chooses the leftmost slot whose cumulative encoded size exceeds
// half this node's used payload bytes, allocates a sibling page via
// alloc, moves every entry from that slot onward into it, and installs
// the sibling as this node's foster child. A foster child this node already
// had passes, with its foster key, to the sibling. It returns the sibling's
// page id, or an AllocFailure-wrapping error if alloc refuses.
func (n *Node[K, V]) Split(alloc page.Allocator) (page.ID, error) {
	arr := n.array()
	count := arr.SlotCount()
	debug.Assert(count >= 2, "btnode: cannot split a node with fewer than 2 entries")

	keys := make([]K, count)
	vals := make([]V, count)
	sizes := make([]int, count)
	total := 0

	for i := 0; i < count; i++ {
		keys[i], vals[i] = arr.Read(i)
		sizes[i] = n.keys.EncodedLen(keys[i]) + n.vals.EncodedLen(vals[i])
		total += sizes[i]
	}

	half := total / 2
	cum := 0
	splitAt := 1

	for i := 0; i < count; i++ {
		cum += sizes[i]
		if cum > half {
			splitAt = i
			break
		}
		splitAt = i + 1
	}

	if splitAt < 1 {
		splitAt = 1
	}
	if splitAt > count-1 {
		splitAt = count - 1
	}

	sepKey := keys[splitAt]

	siblingID, err := alloc.Allocate()
	if err != nil {
		return 0, xerrors.AllocFailure(err)
	}

	siblingPage, err := alloc.Deref(siblingID)
	if err != nil {
		return 0, xerrors.AllocFailure(err)
	}

	sibling := Open[K, V](siblingPage, n.keys, n.vals)
	sibling.Initialize(sepKey, n.HighFence(), n.Level())
	if oldKey, ok := n.FosterKey(); ok {
		buf := make([]byte, n.keys.EncodedLen(oldKey))
		n.keys.Encode(buf, oldKey)
		siblingPage.SetFosterKeyOff(sibling.allocSpan(buf))
		siblingPage.SetFosterPtr(n.FosterChild())
		siblingPage.SetHasFoster(true)
	}

	sibArr := sibling.array()
	for i := splitAt; i < count; i++ {
		if err := sibArr.Insert(keys[i], vals[i]); err != nil {
			return 0, xerrors.AllocFailure(err)
		}
	}

	for i := splitAt; i < count; i++ {
		arr.Remove(keys[i])
	}

	sepBuf := make([]byte, n.keys.EncodedLen(sepKey))
	n.keys.Encode(sepBuf, sepKey)
	n.pg.SetFosterKeyOff(n.allocSpan(sepBuf))
	n.pg.SetFosterPtr(siblingID)
	n.pg.SetHasFoster(true)

	return siblingID, nil
}

// Merge absorbs sibling's entries into n, extends n's high fence to
// sibling's, clears n's foster pointer if sibling was its foster child,
// takes over sibling's own foster child if it has one, and releases
// sibling's page via alloc. It requires the combined entries
// to fit; callers are expected to have checked UsedSpace first.
func (n *Node[K, V]) Merge(sibling *Node[K, V], alloc page.Allocator) error {
	sibArr := sibling.array()
	count := sibArr.SlotCount()

	for i := 0; i < count; i++ {
		k, v := sibArr.Read(i)
		if err := n.array().Insert(k, v); err != nil {
			return err
		}
	}

	n.setHighFence(sibling.HighFence())

	if n.pg.HasFoster() && n.pg.FosterPtr() == sibling.pg.ID() {
		n.ClearFoster()
	}

	if fk, ok := sibling.FosterKey(); ok {
		buf := make([]byte, n.keys.EncodedLen(fk))
		n.keys.Encode(buf, fk)
		n.pg.SetFosterKeyOff(n.allocSpan(buf))
		n.pg.SetFosterPtr(sibling.FosterChild())
		n.pg.SetHasFoster(true)
	}

	return alloc.Release(sibling.pg.ID())
}

// Rebalance moves entries across the shared boundary between n and its
// right neighbor sibling to equalize used space, then re-seats that
// boundary (n's high fence / sibling's low fence) at the new split point.
// n's low fence and sibling's high fence are never touched.
func (n *Node[K, V]) Rebalance(sibling *Node[K, V]) error {
	for n.UsedSpace() > sibling.UsedSpace() && n.SlotCount() > 0 {
		last := n.SlotCount() - 1
		k, v := n.array().Read(last)

		if err := sibling.array().Insert(k, v); err != nil {
			return err
		}
		n.array().Remove(k)
	}

	for sibling.UsedSpace() > n.UsedSpace() && sibling.SlotCount() > 0 {
		k, v := sibling.array().Read(0)

		if err := n.array().Insert(k, v); err != nil {
			return err
		}
		sibling.array().Remove(k)
	}

	if sibling.SlotCount() == 0 {
		return nil
	}

	boundary, _ := sibling.array().Read(0)
	n.setHighFence(boundary)
	sibling.setLowFence(boundary)

	return nil
}

// AdoptFoster installs fosterKey -> childID as a new separator in parent
// (necessarily an internal node, hence V = page.ID), the Node.adopt_foster
// operation. It is idempotent: if parent already has a separator at
// fosterKey — because a previous adoption already ran — it is a no-op.
func AdoptFoster[K any](parent *Node[K, page.ID], fosterKey K, childID page.ID) error {
	err := parent.array().Insert(fosterKey, childID)
	if err != nil && errors.Is(err, xerrors.ErrDuplicate) {
		return nil
	}
	return err
}
