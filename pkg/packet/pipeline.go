package packet

import (
	"context"
	"errors"
	"fmt"

	"github.com/norasector/pktlink/pkg/pool"
	"github.com/norasector/pktlink/pkg/queue"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DecoderPipeline turns raw packets from the correlator into deliveries. Every packet
// it dequeues produces exactly one Ok or Fail, in dequeue order.
type DecoderPipeline struct {
	codec  *Codec
	queue  *queue.Queue[RawPacket]
	pool   *pool.Pool
	out    chan<- Delivery
	stats  *Stats
	logger zerolog.Logger
}

type PipelineOption func(d *DecoderPipeline)

func WithPipelineLogger(logger zerolog.Logger) PipelineOption {
	return func(d *DecoderPipeline) {
		d.logger = logger
	}
}

func WithPipelineStats(stats *Stats) PipelineOption {
	return func(d *DecoderPipeline) {
		d.stats = stats
	}
}

func NewDecoderPipeline(codec *Codec, q *queue.Queue[RawPacket], p *pool.Pool, out chan<- Delivery, opts ...PipelineOption) *DecoderPipeline {
	d := &DecoderPipeline{
		codec:  codec,
		queue:  q,
		pool:   p,
		out:    out,
		stats:  &Stats{},
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(d)
	}

	if p.Capacity() < MaxPayloadLength {
		d.logger.Warn().
			Int("blob_capacity", p.Capacity()).
			Int("max_payload", MaxPayloadLength).
			Msg("blob capacity is below the largest frame payload")
	}
	return d
}

// Run processes packets until the queue or pool is closed, which returns nil, or ctx
// ends. A decoded payload that does not fit a blob is a configuration defect and
// stops the pipeline with an error wrapping ErrPayloadTooLarge.
func (d *DecoderPipeline) Run(ctx context.Context) error {
	for {
		raw, err := d.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) {
				d.logger.Debug().Msg("raw packet queue closed")
				return nil
			}
			return err
		}

		if err := d.Step(ctx, raw); err != nil {
			if errors.Is(err, pool.ErrPoolClosed) {
				d.logger.Debug().Msg("blob pool closed")
				return nil
			}
			return err
		}
	}
}

// Step decodes one packet and emits its delivery.
func (d *DecoderPipeline) Step(ctx context.Context, raw RawPacket) error {
	payload, err := d.codec.Decode(raw.Data, raw.Length)
	if err != nil {
		d.stats.PacketsFailed.Add(1)
		d.logger.Debug().Err(err).Int("raw_len", raw.Length).Msg("packet decode failed")
		return d.emit(ctx, Fail{Err: err})
	}

	// Blocking here is the backpressure point: a slow consumer stalls decoding.
	blob, err := d.pool.Acquire(ctx, true)
	if err != nil {
		return err
	}
	if err := blob.Set(payload); err != nil {
		if rerr := blob.Release(); rerr != nil {
			d.logger.Error().Err(rerr).Msg("releasing oversize blob")
		}
		d.logger.Error().Err(err).Int("payload_len", len(payload)).Int("blob_capacity", blob.Cap()).Msg("payload does not fit blob")
		return fmt.Errorf("%w: %d byte payload, %d byte blobs", ErrPayloadTooLarge, len(payload), blob.Cap())
	}

	d.stats.PacketsDecoded.Add(1)
	d.stats.PayloadBytesOut.Add(uint64(len(payload)))
	if err := d.emit(ctx, Ok{Blob: blob}); err != nil {
		if rerr := blob.Release(); rerr != nil {
			d.logger.Error().Err(rerr).Msg("releasing undelivered blob")
		}
		return err
	}
	return nil
}

func (d *DecoderPipeline) emit(ctx context.Context, msg Delivery) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case d.out <- msg:
		return nil
	}
}
