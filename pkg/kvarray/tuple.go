package kvarray

import "github.com/foster-btree/core/pkg/slotarray"

// Tuple2 is a finite heterogeneous pair, encoded as its two fields back to
// back. Unlike the generic product type it is modeled on, it carries no
// Unpack/String: its job is Encode/Decode, not display.
type Tuple2[A, B any] struct {
	V0 A
	V1 B
}

// Tuple3 is a finite heterogeneous triple, encoded as its three fields
// back to back.
type Tuple3[A, B, C any] struct {
	V0 A
	V1 B
	V2 C
}

// Tuple2Value is a plain (non-key) ValueEncoder for Tuple2, for when a
// tuple only ever appears as a payload value, never as a directory key.
type Tuple2Value[A, B any] struct {
	E0 ValueEncoder[A]
	E1 ValueEncoder[B]
}

func NewTuple2Value[A, B any](e0 ValueEncoder[A], e1 ValueEncoder[B]) Tuple2Value[A, B] {
	return Tuple2Value[A, B]{E0: e0, E1: e1}
}

func (c Tuple2Value[A, B]) EncodedLen(v Tuple2[A, B]) int {
	return c.E0.EncodedLen(v.V0) + c.E1.EncodedLen(v.V1)
}

func (c Tuple2Value[A, B]) EncodedLenFromBytes(buf []byte) int {
	n0 := c.E0.EncodedLenFromBytes(buf)
	return n0 + c.E1.EncodedLenFromBytes(buf[n0:])
}

func (c Tuple2Value[A, B]) Encode(buf []byte, v Tuple2[A, B]) int {
	n0 := c.E0.Encode(buf, v.V0)
	n1 := c.E1.Encode(buf[n0:], v.V1)
	return n0 + n1
}

func (c Tuple2Value[A, B]) Decode(buf []byte) (Tuple2[A, B], int) {
	a, n0 := c.E0.Decode(buf)
	b, n1 := c.E1.Decode(buf[n0:])
	return Tuple2[A, B]{V0: a, V1: b}, n0 + n1
}

var _ ValueEncoder[Tuple2[uint32, []byte]] = Tuple2Value[uint32, []byte]{}

// Tuple2Key is a KeyEncoder for Tuple2: both fields must themselves be
// KeyEncoders so the composite can order lexicographically (V0 first, V1
// breaking ties) and extract a PMNK. The PMNK comes from V0 alone — a
// composite key's leading field dominates its order the same way it
// dominates Less, so prefix-comparing on it is enough to narrow a search
// before Less disambiguates the rest.
type Tuple2Key[A, B any] struct {
	Tuple2Value[A, B]
	Key0 KeyEncoder[A]
	Key1 KeyEncoder[B]
}

func NewTuple2Key[A, B any](k0 KeyEncoder[A], k1 KeyEncoder[B]) Tuple2Key[A, B] {
	return Tuple2Key[A, B]{
		Tuple2Value: NewTuple2Value[A, B](k0, k1),
		Key0:        k0,
		Key1:        k1,
	}
}

func (c Tuple2Key[A, B]) PMNK(v Tuple2[A, B]) uint64 { return c.Key0.PMNK(v.V0) }
func (c Tuple2Key[A, B]) PMNKWidth() slotarray.Width { return c.Key0.PMNKWidth() }

func (c Tuple2Key[A, B]) Less(x, y Tuple2[A, B]) bool {
	if c.Key0.Less(x.V0, y.V0) {
		return true
	}
	if c.Key0.Less(y.V0, x.V0) {
		return false
	}
	return c.Key1.Less(x.V1, y.V1)
}

var _ KeyEncoder[Tuple2[uint32, uint32]] = Tuple2Key[uint32, uint32]{}

// Tuple3Value is a plain (non-key) ValueEncoder for Tuple3.
type Tuple3Value[A, B, C any] struct {
	E0 ValueEncoder[A]
	E1 ValueEncoder[B]
	E2 ValueEncoder[C]
}

func NewTuple3Value[A, B, C any](e0 ValueEncoder[A], e1 ValueEncoder[B], e2 ValueEncoder[C]) Tuple3Value[A, B, C] {
	return Tuple3Value[A, B, C]{E0: e0, E1: e1, E2: e2}
}

func (c Tuple3Value[A, B, C]) EncodedLen(v Tuple3[A, B, C]) int {
	return c.E0.EncodedLen(v.V0) + c.E1.EncodedLen(v.V1) + c.E2.EncodedLen(v.V2)
}

func (c Tuple3Value[A, B, C]) EncodedLenFromBytes(buf []byte) int {
	n0 := c.E0.EncodedLenFromBytes(buf)
	n1 := c.E1.EncodedLenFromBytes(buf[n0:])
	return n0 + n1 + c.E2.EncodedLenFromBytes(buf[n0+n1:])
}

func (c Tuple3Value[A, B, C]) Encode(buf []byte, v Tuple3[A, B, C]) int {
	n0 := c.E0.Encode(buf, v.V0)
	n1 := c.E1.Encode(buf[n0:], v.V1)
	n2 := c.E2.Encode(buf[n0+n1:], v.V2)
	return n0 + n1 + n2
}

func (c Tuple3Value[A, B, C]) Decode(buf []byte) (Tuple3[A, B, C], int) {
	a, n0 := c.E0.Decode(buf)
	b, n1 := c.E1.Decode(buf[n0:])
	cc, n2 := c.E2.Decode(buf[n0+n1:])
	return Tuple3[A, B, C]{V0: a, V1: b, V2: cc}, n0 + n1 + n2
}

var _ ValueEncoder[Tuple3[uint32, uint32, []byte]] = Tuple3Value[uint32, uint32, []byte]{}

// Tuple3Key is a KeyEncoder for Tuple3, ordered lexicographically over all
// three fields with the PMNK drawn from V0 alone.
type Tuple3Key[A, B, C any] struct {
	Tuple3Value[A, B, C]
	Key0 KeyEncoder[A]
	Key1 KeyEncoder[B]
	Key2 KeyEncoder[C]
}

func NewTuple3Key[A, B, C any](k0 KeyEncoder[A], k1 KeyEncoder[B], k2 KeyEncoder[C]) Tuple3Key[A, B, C] {
	return Tuple3Key[A, B, C]{
		Tuple3Value: NewTuple3Value[A, B, C](k0, k1, k2),
		Key0:        k0,
		Key1:        k1,
		Key2:        k2,
	}
}

func (c Tuple3Key[A, B, C]) PMNK(v Tuple3[A, B, C]) uint64 { return c.Key0.PMNK(v.V0) }
func (c Tuple3Key[A, B, C]) PMNKWidth() slotarray.Width    { return c.Key0.PMNKWidth() }

func (c Tuple3Key[A, B, C]) Less(x, y Tuple3[A, B, C]) bool {
	if c.Key0.Less(x.V0, y.V0) {
		return true
	}
	if c.Key0.Less(y.V0, x.V0) {
		return false
	}
	if c.Key1.Less(x.V1, y.V1) {
		return true
	}
	if c.Key1.Less(y.V1, x.V1) {
		return false
	}
	return c.Key2.Less(x.V2, y.V2)
}

var _ KeyEncoder[Tuple3[uint32, uint32, uint32]] = Tuple3Key[uint32, uint32, uint32]{}
