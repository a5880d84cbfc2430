package packet

const (
	// WhitenerOffsets is the number of distinct starting points into the mask.
	WhitenerOffsets = 16

	pn9Seed = 0x1ff
)

// whitenMask is long enough to whiten the largest body at the largest offset.
var whitenMask = pn9Mask(MaxBodyLength + WhitenerOffsets)

// pn9Mask expands the x^9 + x^5 + 1 sequence into bytes, least significant bit first.
func pn9Mask(n int) []byte {
	mask := make([]byte, n)
	state := uint16(pn9Seed)
	for i := range mask {
		mask[i] = byte(state & 0xff)
		for b := 0; b < 8; b++ {
			fb := (state ^ state>>5) & 1
			state = state>>1 | fb<<8
		}
	}
	return mask
}

// WhitenerOffset selects where in the mask whitening starts. Always in [0,16).
type WhitenerOffset uint8

func NewWhitenerOffset(o int) WhitenerOffset {
	o %= WhitenerOffsets
	if o < 0 {
		o += WhitenerOffsets
	}
	return WhitenerOffset(o)
}

func (o WhitenerOffset) Next() WhitenerOffset {
	return (o + 1) % WhitenerOffsets
}

func (o WhitenerOffset) Int() int {
	return int(o)
}

// Whiten XORs src with the mask starting at offset into dst. dst and src may alias.
// Whitening is its own inverse.
func Whiten(dst, src []byte, offset WhitenerOffset) {
	m := whitenMask[int(offset)%WhitenerOffsets:]
	for i := 0; i < len(src); i++ {
		dst[i] = src[i] ^ m[i]
	}
}
