package kvarray

// Dummy is the zero-width value encoder for types that carry no payload of
// their own, e.g. using an Array as a set by pairing every key with
// struct{}.
type Dummy struct{}

func (Dummy) EncodedLen(struct{}) int       { return 0 }
func (Dummy) EncodedLenFromBytes([]byte) int { return 0 }
func (Dummy) Encode([]byte, struct{}) int    { return 0 }
func (Dummy) Decode([]byte) (struct{}, int)  { return struct{}{}, 0 }

var _ ValueEncoder[struct{}] = Dummy{}
