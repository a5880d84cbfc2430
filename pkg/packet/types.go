package packet

import (
	"sync/atomic"

	"github.com/norasector/pktlink/pkg/pool"
)

type MessageKind int

const (
	KindPayload MessageKind = iota
	KindControl
)

// Message is what the application hands to the encoder. Only KindPayload messages
// are framed; anything else is dropped.
type Message struct {
	Kind    MessageKind
	Payload []byte
	Name    string
}

func PayloadMessage(p []byte) Message {
	return Message{Kind: KindPayload, Payload: p}
}

func ControlMessage(name string) Message {
	return Message{Kind: KindControl, Name: name}
}

// RawPacket is one correlator-delimited packet: header and body bytes, plus the
// number of valid bytes.
type RawPacket struct {
	Data   []byte
	Length int
}

// Delivery is either Ok or Fail.
type Delivery interface {
	delivery()
}

// Ok carries a decoded payload. The receiver owns Blob and must release it.
type Ok struct {
	Blob *pool.Blob
}

// Fail reports a packet that did not decode.
type Fail struct {
	Err error
}

func (Ok) delivery()   {}
func (Fail) delivery() {}

// Stats are updated by the encoder and decoder pipeline and may be read concurrently.
type Stats struct {
	FramesEncoded   atomic.Uint64
	BytesEncoded    atomic.Uint64
	ControlDropped  atomic.Uint64
	EncodeErrors    atomic.Uint64
	PacketsDecoded  atomic.Uint64
	PacketsFailed   atomic.Uint64
	PayloadBytesOut atomic.Uint64
}

type StatsSnapshot struct {
	FramesEncoded   uint64 `json:"frames_encoded"`
	BytesEncoded    uint64 `json:"bytes_encoded"`
	ControlDropped  uint64 `json:"control_dropped"`
	EncodeErrors    uint64 `json:"encode_errors"`
	PacketsDecoded  uint64 `json:"packets_decoded"`
	PacketsFailed   uint64 `json:"packets_failed"`
	PayloadBytesOut uint64 `json:"payload_bytes_out"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		FramesEncoded:   s.FramesEncoded.Load(),
		BytesEncoded:    s.BytesEncoded.Load(),
		ControlDropped:  s.ControlDropped.Load(),
		EncodeErrors:    s.EncodeErrors.Load(),
		PacketsDecoded:  s.PacketsDecoded.Load(),
		PacketsFailed:   s.PacketsFailed.Load(),
		PayloadBytesOut: s.PayloadBytesOut.Load(),
	}
}
