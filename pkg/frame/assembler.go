package frame

// Assembler takes decoded bits demodulated over the air and assembles them into packets.
type Assembler interface {
	// Receive expects a buffer of 1s and 0s that correspond to the bits in a packet.
	// Each byte should only contain 1 bit.  There is no bit packing.
	Receive([]byte) error
}

// BitsFromBytes unpacks packed bytes most significant bit first, the order in which
// the encoder emits them.
func BitsFromBytes(dst, src []byte) []byte {
	for _, b := range src {
		for i := 7; i >= 0; i-- {
			dst = append(dst, (b>>uint(i))&1)
		}
	}
	return dst
}
