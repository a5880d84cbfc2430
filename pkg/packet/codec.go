package packet

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

const (
	FormatVersion = 1

	HeaderLength = 4
	CRCLength    = 4

	// MaxBodyLength is the largest payload+crc the 12 bit length field can carry.
	MaxBodyLength    = 0x0fff
	MaxPayloadLength = MaxBodyLength - CRCLength

	trailerByte byte = 0x55
	padByte     byte = 0x55

	DefaultSamplesPerSymbol = 2
	DefaultBitsPerSymbol    = 1
)

var preamble = []byte{0xA4, 0xF2}

type Options struct {
	AccessCode       string
	SamplesPerSymbol int
	BitsPerSymbol    int
}

// Codec frames payloads for a fixed access code and symbol mapping.
type Codec struct {
	accessCode       AccessCode
	samplesPerSymbol int
	bitsPerSymbol    int
	prefix           []byte
}

func NewCodec(opts Options) (*Codec, error) {
	ac, err := ParseAccessCode(opts.AccessCode)
	if err != nil {
		return nil, err
	}

	if opts.SamplesPerSymbol == 0 {
		opts.SamplesPerSymbol = DefaultSamplesPerSymbol
	}
	if opts.BitsPerSymbol == 0 {
		opts.BitsPerSymbol = DefaultBitsPerSymbol
	}
	if opts.SamplesPerSymbol < 1 {
		return nil, fmt.Errorf("%w: samples per symbol %d", ErrInvalidSymbolMapping, opts.SamplesPerSymbol)
	}
	if opts.BitsPerSymbol < 1 || opts.BitsPerSymbol > 8 {
		return nil, fmt.Errorf("%w: bits per symbol %d", ErrInvalidSymbolMapping, opts.BitsPerSymbol)
	}

	prefix := make([]byte, 0, len(preamble)+8)
	prefix = append(prefix, preamble...)
	prefix = append(prefix, ac.syncBytes()...)

	return &Codec{
		accessCode:       ac,
		samplesPerSymbol: opts.SamplesPerSymbol,
		bitsPerSymbol:    opts.BitsPerSymbol,
		prefix:           prefix,
	}, nil
}

func (c *Codec) AccessCode() AccessCode {
	return c.accessCode
}

func (c *Codec) SamplesPerSymbol() int {
	return c.samplesPerSymbol
}

func (c *Codec) BitsPerSymbol() int {
	return c.bitsPerSymbol
}

// HeaderOffset is the index of the first header byte in an encoded frame.
func (c *Codec) HeaderOffset() int {
	return len(c.prefix)
}

// Header is the length-bearing word that follows the access code, sent with a
// check word.
type Header struct {
	Offset     WhitenerOffset
	BodyLength int
}

func (h Header) word() uint16 {
	return uint16(h.Offset)<<12 | uint16(h.BodyLength&MaxBodyLength)
}

func (h Header) PayloadLength() int {
	return h.BodyLength - CRCLength
}

// headerCheck is the low half of the crc32 of the word. Fill bytes and bit shifted
// headers do not satisfy it.
func headerCheck(word uint16) uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], word)
	return uint16(crc32.ChecksumIEEE(b[:]))
}

// Marshal writes the word followed by its check word.
func (h Header) Marshal() []byte {
	b := make([]byte, HeaderLength)
	binary.BigEndian.PutUint16(b[0:2], h.word())
	binary.BigEndian.PutUint16(b[2:4], headerCheck(h.word()))
	return b
}

// ParseHeader reports false when b is short, the check word does not match, or the
// body could not hold a crc.
func ParseHeader(b []byte) (Header, bool) {
	if len(b) < HeaderLength {
		return Header{}, false
	}
	w1 := binary.BigEndian.Uint16(b[0:2])
	w2 := binary.BigEndian.Uint16(b[2:4])
	if headerCheck(w1) != w2 {
		return Header{}, false
	}
	h := Header{
		Offset:     WhitenerOffset(w1 >> 12),
		BodyLength: int(w1 & MaxBodyLength),
	}
	if h.BodyLength < CRCLength {
		return Header{}, false
	}
	return h, true
}

func checksum(header, payload []byte) uint32 {
	crc := crc32.NewIEEE()
	crc.Write(header)
	crc.Write(payload)
	return crc.Sum32()
}

// Encode builds one frame: preamble, access code, header, whitened payload+crc,
// trailer, and alignment padding for the symbol mapping.
func (c *Codec) Encode(payload []byte, offset WhitenerOffset) ([]byte, error) {
	if len(payload) > MaxPayloadLength {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(payload), MaxPayloadLength)
	}
	offset %= WhitenerOffsets

	h := Header{Offset: offset, BodyLength: len(payload) + CRCLength}
	header := h.Marshal()

	size := len(c.prefix) + HeaderLength + h.BodyLength + 1
	size += c.paddingBytes(size)

	pkt := make([]byte, 0, size)
	pkt = append(pkt, c.prefix...)
	pkt = append(pkt, header...)

	bodyStart := len(pkt)
	pkt = append(pkt, payload...)
	pkt = pkt[:bodyStart+h.BodyLength]
	binary.BigEndian.PutUint32(pkt[bodyStart+len(payload):], checksum(header, payload))
	Whiten(pkt[bodyStart:], pkt[bodyStart:], offset)

	pkt = append(pkt, trailerByte)
	for len(pkt) < size {
		pkt = append(pkt, padByte)
	}

	return pkt, nil
}

// paddingBytes returns how many bytes bring n to a whole number of modulator blocks.
func (c *Codec) paddingBytes(n int) int {
	modulus := 128
	switch c.samplesPerSymbol {
	case 2:
		modulus = 64
	case 3, 4:
		modulus = 256
	}

	// Whole modulator blocks and whole symbols.
	byteModulus := lcm(modulus/8, c.bitsPerSymbol/gcd(8, c.bitsPerSymbol))
	r := n % byteModulus
	if r == 0 {
		return 0
	}
	return byteModulus - r
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	return a / gcd(a, b) * b
}

// Decode takes the bytes following the access code, as delivered by the correlator.
// lengthHint, when positive, is the number of valid bytes in raw. Every malformed input
// yields a *DecodeFailure; Decode never panics.
func (c *Codec) Decode(raw []byte, lengthHint int) ([]byte, error) {
	if lengthHint > 0 && lengthHint < len(raw) {
		raw = raw[:lengthHint]
	}
	if len(raw) < HeaderLength+CRCLength {
		return nil, decodeFailure(ErrShortPacket, "%d bytes", len(raw))
	}

	w1 := binary.BigEndian.Uint16(raw[0:2])
	w2 := binary.BigEndian.Uint16(raw[2:4])
	if check := headerCheck(w1); check != w2 {
		return nil, decodeFailure(ErrHeaderMismatch, "word %#04x check %#04x != %#04x", w1, w2, check)
	}
	h, ok := ParseHeader(raw)
	if !ok {
		return nil, decodeFailure(ErrLengthMismatch, "body length %d", w1&MaxBodyLength)
	}
	if len(raw) < HeaderLength+h.BodyLength {
		return nil, decodeFailure(ErrLengthMismatch, "header says %d body bytes, have %d", h.BodyLength, len(raw)-HeaderLength)
	}

	body := make([]byte, h.BodyLength)
	Whiten(body, raw[HeaderLength:HeaderLength+h.BodyLength], h.Offset)

	payload := body[:h.PayloadLength()]
	given := binary.BigEndian.Uint32(body[h.PayloadLength():])
	if computed := checksum(raw[:HeaderLength], payload); computed != given {
		return nil, decodeFailure(ErrCRCMismatch, "%08x != %08x", given, computed)
	}

	return payload, nil
}
