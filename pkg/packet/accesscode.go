package packet

import (
	"fmt"
	"math/bits"
	"strings"
)

const (
	MaxAccessCodeLength = 64

	defaultAccessCodeValue uint64 = 0xACDDA4E2F28C20FC
)

// DefaultAccessCode is used whenever an empty access code is configured.
var DefaultAccessCode = AccessCode{bits: formatBits(defaultAccessCodeValue, 64), value: defaultAccessCodeValue}

// AccessCode is the sync vector prefixed to every frame. The zero value is not usable;
// build one with ParseAccessCode.
type AccessCode struct {
	bits  string
	value uint64
}

// ParseAccessCode validates a string of 1s and 0s between 1 and 64 long.
// An empty string selects DefaultAccessCode.
func ParseAccessCode(s string) (AccessCode, error) {
	if s == "" {
		return DefaultAccessCode, nil
	}
	if len(s) > MaxAccessCodeLength {
		return AccessCode{}, fmt.Errorf("%w: %d bits exceeds %d", ErrInvalidAccessCode, len(s), MaxAccessCodeLength)
	}

	var value uint64
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '0':
			value <<= 1
		case '1':
			value = value<<1 | 1
		default:
			return AccessCode{}, fmt.Errorf("%w: %q must be a string of 1's and 0's", ErrInvalidAccessCode, s)
		}
	}

	return AccessCode{bits: s, value: value}, nil
}

func formatBits(v uint64, n int) string {
	var sb strings.Builder
	for i := n - 1; i >= 0; i-- {
		if v>>uint(i)&1 == 1 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

func (a AccessCode) Len() int {
	return len(a.bits)
}

func (a AccessCode) String() string {
	return a.bits
}

// Uint64 returns the code right aligned, first bit most significant.
func (a AccessCode) Uint64() uint64 {
	return a.value
}

// Mask covers the low Len() bits.
func (a AccessCode) Mask() uint64 {
	if len(a.bits) == 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(len(a.bits))) - 1
}

// Bits returns one bit per byte, first transmitted bit first.
func (a AccessCode) Bits() []byte {
	ret := make([]byte, len(a.bits))
	for i := 0; i < len(a.bits); i++ {
		ret[i] = a.bits[i] - '0'
	}
	return ret
}

// Distance is the Hamming distance between the code and the low Len() bits of reg.
func (a AccessCode) Distance(reg uint64) int {
	return bits.OnesCount64((reg ^ a.value) & a.Mask())
}

// syncBytes packs the code so that it ends on a byte boundary. Leading fill bits
// continue the alternating preamble pattern.
func (a AccessCode) syncBytes() []byte {
	n := len(a.bits)
	fill := (8 - n%8) % 8
	out := make([]byte, (n+fill)/8)

	for i := 0; i < n+fill; i++ {
		var bit byte
		if i < fill {
			bit = byte((i + 1) % 2)
		} else {
			bit = a.bits[i-fill] - '0'
		}
		out[i/8] |= bit << uint(7-i%8)
	}
	return out
}
