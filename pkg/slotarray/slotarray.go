// Package slotarray implements the sorted slot directory that sits directly
// on top of a page.Page: a fixed-width array of (pmnk, payload_off) records
// that grows up from the header, paired with a payload heap that grows down
// from the end of the page. It knows nothing about keys or values past the
// poor-man's-normalized-key (PMNK) prefix used to order and probe slots;
// kvarray.Array is the layer that turns real keys and values into PMNKs and
// payload bytes.
package slotarray

import (
	"encoding/binary"
	"sort"

	"github.com/foster-btree/core/internal/debug"
	"github.com/foster-btree/core/pkg/page"
	"github.com/foster-btree/core/pkg/xerrors"
)

// Width is the number of bytes a PMNK occupies in the slot directory.
// Callers (kvarray.Array) must only ever pass pmnk values whose significant
// bits fit within the low Width bytes; higher bytes are truncated away on
// write and always read back as zero.
type Width int

const (
	Width2 Width = 2
	Width4 Width = 4
	Width8 Width = 8
)

// lenPrefixSize is the size, in bytes, of the length header slotarray
// itself writes immediately before every payload span in the heap. It lets
// Get and Remove recover a payload's length without the slot record itself
// having to carry one, keeping the on-page slot record exactly
// pmnk(Width) + payload_off(2) as the binary layout table describes.
const lenPrefixSize = 2

// Array is a slot directory bound to a single page. It does not own the
// page; callers construct one per operation, the same way kvarray.Array and
// btnode.Node do.
type Array struct {
	pg    *page.Page
	width Width
	floor int
}

// New returns a slot directory view over pg using the given PMNK width,
// with the heap free to use the whole page. pg must already have been
// initialized via Page.Reset (or carry slots previously written with the
// same width).
func New(pg *page.Page, width Width) *Array {
	return NewBounded(pg, width, pg.Size())
}

// NewBounded is New, but restricts the heap to addresses below floor. This
// is how btnode.Node shares a page between slotarray's own payload heap and
// the fixed fence/foster-key spans it reserves below floor: those bytes
// were allocated first (so they sit closest to the end of the page) and
// must survive Compact untouched.
func NewBounded(pg *page.Page, width Width, floor int) *Array {
	debug.Assert(width == Width2 || width == Width4 || width == Width8, "slotarray: invalid width %d", width)
	debug.Assert(floor >= 0 && floor <= pg.Size(), "slotarray: floor %d out of range [0,%d]", floor, pg.Size())
	return &Array{pg: pg, width: width, floor: floor}
}

func (a *Array) slotSize() int { return int(a.width) + 2 }

func (a *Array) dirOffset(i int) int { return page.HeaderSize + i*a.slotSize() }

func (a *Array) readPMNK(off int) uint64 {
	buf := a.pg.Bytes()[off:]
	switch a.width {
	case Width2:
		return uint64(binary.LittleEndian.Uint16(buf))
	case Width4:
		return uint64(binary.LittleEndian.Uint32(buf))
	default:
		return binary.LittleEndian.Uint64(buf)
	}
}

func (a *Array) writePMNK(off int, pmnk uint64) {
	buf := a.pg.Bytes()[off:]
	switch a.width {
	case Width2:
		binary.LittleEndian.PutUint16(buf, uint16(pmnk))
	case Width4:
		binary.LittleEndian.PutUint32(buf, uint32(pmnk))
	default:
		binary.LittleEndian.PutUint64(buf, pmnk)
	}
}

func (a *Array) payloadOff(slot int) uint16 {
	return binary.LittleEndian.Uint16(a.pg.Bytes()[a.dirOffset(slot)+int(a.width):])
}

func (a *Array) setPayloadOff(slot int, off uint16) {
	binary.LittleEndian.PutUint16(a.pg.Bytes()[a.dirOffset(slot)+int(a.width):], off)
}

// payloadSpan returns the heap span [start, end) of the slot's length
// prefix plus payload bytes.
func (a *Array) payloadSpan(slot int) (start, end int) {
	start = int(a.payloadOff(slot))
	length := int(binary.LittleEndian.Uint16(a.pg.Bytes()[start:]))
	return start, start + lenPrefixSize + length
}

// SlotCount returns the number of live slots.
func (a *Array) SlotCount() int { return int(a.pg.SlotCount()) }

// FreeSpace returns the number of bytes available for a new slot record
// plus its payload span, i.e. the gap between the directory's growing edge
// and the heap's growing edge.
func (a *Array) FreeSpace() int {
	dirEnd := page.HeaderSize + a.SlotCount()*a.slotSize()
	return int(a.pg.HeapEnd()) - dirEnd
}

// UsedSpace returns the number of bytes currently occupied by live slot
// records and live payload spans (directory bytes plus heap bytes, not
// counting anything reserved below floor or left dead by removals).
func (a *Array) UsedSpace() int {
	used := a.SlotCount() * a.slotSize()
	for i := 0; i < a.SlotCount(); i++ {
		start, end := a.payloadSpan(i)
		used += end - start
	}
	return used
}

// Get returns the PMNK and payload bytes stored at slot index i.
func (a *Array) Get(i int) (pmnk uint64, payload []byte) {
	debug.Assert(i >= 0 && i < a.SlotCount(), "slotarray: slot index %d out of range [0,%d)", i, a.SlotCount())

	pmnk = a.readPMNK(a.dirOffset(i))
	start, end := a.payloadSpan(i)
	return pmnk, a.pg.Bytes()[start+lenPrefixSize : end]
}

// Find does a binary search for pmnk and returns the leftmost slot index
// whose stored PMNK is >= pmnk, and whether that slot's PMNK equals pmnk
// exactly. Ties among slots sharing a PMNK are broken by the caller using
// the full key; Find only orders by PMNK.
func (a *Array) Find(pmnk uint64) (found bool, index int) {
	n := a.SlotCount()
	index = sort.Search(n, func(i int) bool {
		return a.readPMNK(a.dirOffset(i)) >= pmnk
	})
	found = index < n && a.readPMNK(a.dirOffset(index)) == pmnk
	return found, index
}

// Insert allocates payloadLen bytes at the top of the heap, writes a new
// slot record carrying pmnk at directory position at (shifting slots at or
// after at up by one), and returns the new slot's index and a writable
// view over its payload region. Insert never reorders existing slots or
// reclaims dead heap bytes on its own; callers that need that call Compact
// first.
func (a *Array) Insert(pmnk uint64, at int, payloadLen int) (index int, payload []byte, err error) {
	n := a.SlotCount()
	debug.Assert(at >= 0 && at <= n, "slotarray: insert position %d out of range [0,%d]", at, n)

	need := a.slotSize() + lenPrefixSize + payloadLen
	if need > a.FreeSpace() {
		return 0, nil, xerrors.NoSpace(uint32(at))
	}

	heapEnd := int(a.pg.HeapEnd()) - lenPrefixSize - payloadLen
	binary.LittleEndian.PutUint16(a.pg.Bytes()[heapEnd:], uint16(payloadLen))
	a.pg.SetHeapEnd(uint16(heapEnd))

	// Shift directory records [at, n) up by one slot width to open a gap.
	srcStart := a.dirOffset(at)
	srcEnd := a.dirOffset(n)
	dst := a.dirOffset(at + 1)
	copy(a.pg.Bytes()[dst:dst+(srcEnd-srcStart)], a.pg.Bytes()[srcStart:srcEnd])

	a.writePMNK(srcStart, pmnk)
	a.setPayloadOff(at, uint16(heapEnd))
	a.pg.SetSlotCount(uint16(n + 1))

	return at, a.pg.Bytes()[heapEnd+lenPrefixSize : heapEnd+lenPrefixSize+payloadLen], nil
}

// Remove deletes the directory entry at slot index i, shifting subsequent
// entries down by one. The payload bytes it referenced become dead heap
// space, reclaimed only by a later Compact.
func (a *Array) Remove(i int) {
	n := a.SlotCount()
	debug.Assert(i >= 0 && i < n, "slotarray: slot index %d out of range [0,%d)", i, n)

	srcStart := a.dirOffset(i + 1)
	srcEnd := a.dirOffset(n)
	dst := a.dirOffset(i)
	copy(a.pg.Bytes()[dst:dst+(srcEnd-srcStart)], a.pg.Bytes()[srcStart:srcEnd])

	a.pg.SetSlotCount(uint16(n - 1))
}

// Compact rewrites the payload heap in ascending directory (i.e. PMNK)
// order, eliminating dead bytes left behind by prior Remove or by
// overwritten Insert payloads. It does not change slot count or ordering,
// only heap layout, so it never invalidates previously returned slot
// indices.
func (a *Array) Compact() {
	n := a.SlotCount()
	buf := a.pg.Bytes()

	// Snapshot old spans before overwriting, since writes proceed from the
	// end of the page backward and could otherwise clobber unread spans.
	type span struct{ start, end int }
	spans := make([]span, n)
	for i := 0; i < n; i++ {
		start, end := a.payloadSpan(i)
		spans[i] = span{start, end}
	}

	scratch := make([]byte, 0, a.floor)
	for i := 0; i < n; i++ {
		scratch = append(scratch, buf[spans[i].start:spans[i].end]...)
	}

	// Lay the snapshot back down contiguously against floor, preserving
	// directory (ascending key) order and leaving anything at or past
	// floor (fences, foster key) untouched.
	newEnd := a.floor - len(scratch)
	copy(buf[newEnd:a.floor], scratch)

	off := newEnd
	for i := 0; i < n; i++ {
		length := spans[i].end - spans[i].start
		a.setPayloadOff(i, uint16(off))
		off += length
	}

	a.pg.SetHeapEnd(uint16(newEnd))
}
