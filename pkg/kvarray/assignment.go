package kvarray

import (
	"encoding/binary"

	"github.com/foster-btree/core/internal/debug"
	"github.com/foster-btree/core/pkg/slotarray"
)

// ScalarKey is the set of fixed-width unsigned integer types Assignment
// supports. Assignment is restricted to unsigned types because its PMNK is
// the value itself, zero-extended to 64 bits; a signed type would need a
// sign-flip to order correctly and no spec.md scenario needs one.
type ScalarKey interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Assignment is the scalar encoder: a fixed-width value copied directly to
// and from the page, named for the "assignment" (by-value, no indirection)
// policy it implements as opposed to Inline's length-prefixed copy.
type Assignment[T ScalarKey] struct{}

// NewAssignment returns an Assignment encoder for T.
func NewAssignment[T ScalarKey]() Assignment[T] { return Assignment[T]{} }

func (Assignment[T]) size() int {
	switch any(*new(T)).(type) {
	case uint8:
		return 1
	case uint16:
		return 2
	case uint32:
		return 4
	default:
		return 8
	}
}

func (a Assignment[T]) EncodedLen(T) int { return a.size() }

func (a Assignment[T]) EncodedLenFromBytes([]byte) int { return a.size() }

func (a Assignment[T]) Encode(buf []byte, key T) int {
	n := a.size()
	debug.Assert(len(buf) >= n, "kvarray: Assignment.Encode buffer too small: have %d, need %d", len(buf), n)

	switch n {
	case 1:
		buf[0] = byte(uint64(key))
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(uint64(key)))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(uint64(key)))
	default:
		binary.LittleEndian.PutUint64(buf, uint64(key))
	}

	return n
}

func (a Assignment[T]) Decode(buf []byte) (T, int) {
	n := a.size()
	debug.Assert(len(buf) >= n, "kvarray: Assignment.Decode buffer too small: have %d, need %d", len(buf), n)

	switch n {
	case 1:
		return T(buf[0]), 1
	case 2:
		return T(binary.LittleEndian.Uint16(buf)), 2
	case 4:
		return T(binary.LittleEndian.Uint32(buf)), 4
	default:
		return T(binary.LittleEndian.Uint64(buf)), 8
	}
}

func (a Assignment[T]) PMNK(key T) uint64 { return uint64(key) }

func (a Assignment[T]) PMNKWidth() slotarray.Width {
	switch a.size() {
	case 1, 2:
		return slotarray.Width2
	case 4:
		return slotarray.Width4
	default:
		return slotarray.Width8
	}
}

func (a Assignment[T]) Less(x, y T) bool { return x < y }

var (
	_ KeyEncoder[uint64] = Assignment[uint64]{}
	_ KeyEncoder[uint32] = Assignment[uint32]{}
)
