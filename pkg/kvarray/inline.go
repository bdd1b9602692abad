package kvarray

import (
	"bytes"
	"encoding/binary"

	"github.com/foster-btree/core/internal/debug"
	"github.com/foster-btree/core/pkg/slotarray"
)

// inlineLenSize is the width, in bytes, of the length prefix Inline writes
// ahead of every encoded value.
const inlineLenSize = 2

// Inline is the variable-length byte-string encoder: a 16-bit length
// prefix followed by the raw bytes, copied in place rather than indirected
// through a separate allocation (hence "inline").
type Inline struct {
	width slotarray.Width
}

// NewInline returns an Inline encoder whose PMNK uses the first width
// bytes of each key.
func NewInline(width slotarray.Width) Inline { return Inline{width: width} }

func (Inline) EncodedLen(v []byte) int { return inlineLenSize + len(v) }

func (Inline) EncodedLenFromBytes(buf []byte) int {
	return inlineLenSize + int(binary.LittleEndian.Uint16(buf))
}

func (e Inline) Encode(buf []byte, v []byte) int {
	n := e.EncodedLen(v)
	debug.Assert(len(buf) >= n, "kvarray: Inline.Encode buffer too small: have %d, need %d", len(buf), n)

	binary.LittleEndian.PutUint16(buf, uint16(len(v)))
	copy(buf[inlineLenSize:], v)

	return n
}

func (Inline) Decode(buf []byte) ([]byte, int) {
	length := int(binary.LittleEndian.Uint16(buf))
	v := make([]byte, length)
	copy(v, buf[inlineLenSize:inlineLenSize+length])

	return v, inlineLenSize + length
}

func (e Inline) PMNK(key []byte) uint64 { return bePrefix(key, int(e.width)) }

func (e Inline) PMNKWidth() slotarray.Width { return e.width }

func (Inline) Less(x, y []byte) bool { return bytes.Compare(x, y) < 0 }

var _ KeyEncoder[[]byte] = Inline{}
