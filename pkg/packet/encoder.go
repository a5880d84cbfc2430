package packet

import (
	"context"
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EncoderState int

const (
	StateIdle EncoderState = iota
	StateDraining
	StateClosed
)

func (s EncoderState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Encoder turns application messages into a byte stream, one frame per payload.
// The consumer pulls with buffers of any size; whatever does not fit is kept for
// the next call.
type Encoder struct {
	codec    *Codec
	source   <-chan Message
	rotate   bool
	offset   WhitenerOffset
	residual []byte
	closed   bool
	stats    *Stats
	logger   zerolog.Logger
}

type EncoderOption func(e *Encoder)

// WithWhitenerRotation advances the whitener offset after every frame.
func WithWhitenerRotation(rotate bool) EncoderOption {
	return func(e *Encoder) {
		e.rotate = rotate
	}
}

func WithEncoderLogger(logger zerolog.Logger) EncoderOption {
	return func(e *Encoder) {
		e.logger = logger
	}
}

func WithEncoderStats(stats *Stats) EncoderOption {
	return func(e *Encoder) {
		e.stats = stats
	}
}

func NewEncoder(codec *Codec, source <-chan Message, opts ...EncoderOption) *Encoder {
	e := &Encoder{
		codec:  codec,
		source: source,
		stats:  &Stats{},
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Encoder) State() EncoderState {
	switch {
	case len(e.residual) > 0:
		return StateDraining
	case e.closed:
		return StateClosed
	}
	return StateIdle
}

// Offset is the whitener offset the next frame will use.
func (e *Encoder) Offset() WhitenerOffset {
	return e.offset
}

// Pull copies up to len(out) bytes of the current frame into out, waiting for the
// next payload when idle. frameDone is true when the call emitted the last byte of
// a frame. Once the source is closed Pull returns ErrSourceClosed.
func (e *Encoder) Pull(ctx context.Context, out []byte) (n int, frameDone bool, err error) {
	for len(e.residual) == 0 {
		if e.closed {
			return 0, false, ErrSourceClosed
		}

		var msg Message
		var ok bool
		select {
		case <-ctx.Done():
			return 0, false, ctx.Err()
		case msg, ok = <-e.source:
		}
		if !ok {
			e.closed = true
			e.logger.Debug().Msg("encoder source closed")
			return 0, false, ErrSourceClosed
		}

		if msg.Kind != KindPayload {
			e.stats.ControlDropped.Add(1)
			continue
		}

		pkt, err := e.codec.Encode(msg.Payload, e.offset)
		if err != nil {
			e.stats.EncodeErrors.Add(1)
			e.logger.Warn().Err(err).Int("payload_len", len(msg.Payload)).Msg("dropping unencodable payload")
			continue
		}

		e.logger.Debug().
			Int("payload_len", len(msg.Payload)).
			Int("frame_len", len(pkt)).
			Int("whitener_offset", e.offset.Int()).
			Msg("framed packet")

		e.residual = pkt
		e.stats.FramesEncoded.Add(1)
		if e.rotate {
			e.offset = e.offset.Next()
		}
	}

	n = copy(out, e.residual)
	e.residual = e.residual[n:]
	e.stats.BytesEncoded.Add(uint64(n))

	return n, len(e.residual) == 0, nil
}

// Reader adapts Pull to io.Reader; a closed source reads as io.EOF.
func (e *Encoder) Reader(ctx context.Context) io.Reader {
	return &encoderReader{ctx: ctx, e: e}
}

type encoderReader struct {
	ctx context.Context
	e   *Encoder
}

func (r *encoderReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, _, err := r.e.Pull(r.ctx, p)
	if err == ErrSourceClosed {
		return n, io.EOF
	}
	return n, err
}
