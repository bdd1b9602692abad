package kvarray

import (
	"iter"

	"github.com/foster-btree/core/pkg/opt"
	"github.com/foster-btree/core/pkg/page"
	"github.com/foster-btree/core/pkg/slotarray"
	"github.com/foster-btree/core/pkg/xerrors"
)

// Array is a typed key-value directory over a single page: slotarray.Array
// does the ordering and space bookkeeping, Array turns typed keys and
// values into the PMNK and payload bytes slotarray deals in.
type Array[K, V any] struct {
	slots *slotarray.Array
	keys  KeyEncoder[K]
	vals  ValueEncoder[V]
}

// New returns a key-value directory over pg using keyCodec/valCodec to
// translate between typed pairs and page bytes. pg must already be
// initialized (via Page.Reset) with the same PMNK width keyCodec reports.
func New[K, V any](pg *page.Page, keyCodec KeyEncoder[K], valCodec ValueEncoder[V]) *Array[K, V] {
	return NewBounded(pg, keyCodec, valCodec, pg.Size())
}

// NewBounded is New, but restricts the underlying slotarray's heap to
// addresses below floor — see slotarray.NewBounded. btnode.Node uses this
// to keep the key-value directory out of the fence/foster-key region it
// reserves at the bottom of the page.
func NewBounded[K, V any](pg *page.Page, keyCodec KeyEncoder[K], valCodec ValueEncoder[V], floor int) *Array[K, V] {
	return &Array[K, V]{
		slots: slotarray.NewBounded(pg, keyCodec.PMNKWidth(), floor),
		keys:  keyCodec,
		vals:  valCodec,
	}
}

// SlotCount returns the number of live key-value pairs.
func (a *Array[K, V]) SlotCount() int { return a.slots.SlotCount() }

// FreeSpace returns the directory's available bytes, as slotarray.Array.FreeSpace.
func (a *Array[K, V]) FreeSpace() int { return a.slots.FreeSpace() }

// UsedSpace returns the directory's live byte count, as slotarray.Array.UsedSpace.
func (a *Array[K, V]) UsedSpace() int { return a.slots.UsedSpace() }

// Compact reclaims heap space left behind by prior Remove calls.
func (a *Array[K, V]) Compact() { a.slots.Compact() }

func (a *Array[K, V]) keysEqual(x, y K) bool {
	return !a.keys.Less(x, y) && !a.keys.Less(y, x)
}

// locate finds where key belongs: if a slot already holds an equal key, at
// is that slot's index and exact is true; otherwise at is where it should
// be inserted to keep the directory sorted.
func (a *Array[K, V]) locate(key K) (at int, exact bool) {
	pmnk := a.keys.PMNK(key)
	_, at = a.slots.Find(pmnk)

	n := a.slots.SlotCount()
	for at < n {
		p, payload := a.slots.Get(at)
		if p != pmnk {
			break
		}

		k, _ := a.keys.Decode(payload)
		if a.keysEqual(k, key) {
			return at, true
		}

		// Ties among equal PMNKs are kept in full-key order too, so a scan
		// can stop as soon as it passes where key belongs.
		if a.keys.Less(key, k) {
			break
		}

		at++
	}

	return at, false
}

// Find returns the value stored for key, if any.
func (a *Array[K, V]) Find(key K) (V, bool) {
	at, exact := a.locate(key)
	if !exact {
		var zero V
		return zero, false
	}

	_, payload := a.slots.Get(at)
	kLen := a.keys.EncodedLenFromBytes(payload)
	v, _ := a.vals.Decode(payload[kLen:])

	return v, true
}

// Insert adds key/value, returning xerrors.ErrDuplicate if key is already
// present or an ErrNoSpace-wrapping error if the page has no room.
func (a *Array[K, V]) Insert(key K, value V) error {
	at, exact := a.locate(key)
	if exact {
		return xerrors.Duplicate(key)
	}

	kLen := a.keys.EncodedLen(key)
	vLen := a.vals.EncodedLen(value)

	_, payload, err := a.slots.Insert(a.keys.PMNK(key), at, kLen+vLen)
	if err != nil {
		return err
	}

	n := a.keys.Encode(payload, key)
	a.vals.Encode(payload[n:], value)

	return nil
}

// Remove deletes key, reporting whether it was present.
func (a *Array[K, V]) Remove(key K) bool {
	at, exact := a.locate(key)
	if !exact {
		return false
	}

	a.slots.Remove(at)

	return true
}

// Floor returns the value stored at the largest key <= key, and true, or
// the zero value and false if every stored key is greater than key. This
// is the lookup an internal node's child-pointer array uses to route a
// descent: the separator at-or-below the target key identifies the child
// that owns it.
func (a *Array[K, V]) Floor(key K) (V, bool) {
	at, exact := a.locate(key)
	if !exact {
		at--
	}

	if at < 0 {
		var zero V
		return zero, false
	}

	_, payload := a.slots.Get(at)
	kLen := a.keys.EncodedLenFromBytes(payload)
	v, _ := a.vals.Decode(payload[kLen:])

	return v, true
}

// Neighbor returns the key-value pair immediately after the slot Floor(key)
// would resolve to, and true, or the zero values and false if there is no
// such slot. This is the lookup underflow handling uses to find the
// adjacent sibling reachable through a parent's next separator.
func (a *Array[K, V]) Neighbor(key K) (K, V, bool) {
	at, exact := a.locate(key)
	if !exact {
		at--
	}
	at++

	if at < 0 || at >= a.slots.SlotCount() {
		var zeroK K
		var zeroV V
		return zeroK, zeroV, false
	}

	k, v := a.Read(at)
	return k, v, true
}

// Read decodes the key-value pair stored at directory position i, in
// sorted order (0 is the smallest key).
func (a *Array[K, V]) Read(i int) (K, V) {
	_, payload := a.slots.Get(i)

	k, n := a.keys.Decode(payload)
	v, _ := a.vals.Decode(payload[n:])

	return k, v
}

// RangeIter returns a lazy, finite, restartable sequence over the pairs
// whose key falls in [lo, hi) — either bound may be opt.None to leave that
// side unconstrained.
func (a *Array[K, V]) RangeIter(lo, hi opt.Option[K]) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for i := 0; i < a.SlotCount(); i++ {
			k, v := a.Read(i)

			if lo.IsSome() && a.keys.Less(k, lo.Unwrap()) {
				continue
			}
			if hi.IsSome() && !a.keys.Less(k, hi.Unwrap()) {
				continue
			}

			if !yield(k, v) {
				return
			}
		}
	}
}
