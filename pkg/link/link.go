package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/pktlink/pkg/frame"
	"github.com/norasector/pktlink/pkg/frame/correlator"
	"github.com/norasector/pktlink/pkg/link/device"
	"github.com/norasector/pktlink/pkg/link/output"
	"github.com/norasector/pktlink/pkg/link/status"
	"github.com/norasector/pktlink/pkg/packet"
	"github.com/norasector/pktlink/pkg/pool"
	"github.com/norasector/pktlink/pkg/queue"
	"github.com/norasector/pktlink/pkg/util"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	sourceBuffer   = 16
	receivedBuffer = 32
)

var (
	ErrLinkClosed     = errors.New("link: closed")
	ErrAlreadyStarted = errors.New("link: already started")
)

// Link wires an encoder, a device and a decoder pipeline into one duplex packet link.
// Payloads handed to Send come back out of Received after a trip through the device.
type Link struct {
	device   device.Device
	opts     Options
	codec    *packet.Codec
	stats    *packet.Stats
	encoder  *packet.Encoder
	queue    *queue.Queue[packet.RawPacket]
	pool     *pool.Pool
	outputs  []output.Output
	writeAPI api.WriteAPI
	server   *status.Server
	logger   zerolog.Logger

	sessionID  uuid.UUID
	correlator atomic.Pointer[correlator.Correlator]
	deliveries chan packet.Delivery
	received   chan *output.Received

	sourceMu     sync.RWMutex
	source       chan packet.Message
	sourceClosed bool

	started  atomic.Bool
	finished atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
	stopErr  error
	mu       sync.Mutex
	cancel   context.CancelFunc
}

type LinkOption func(l *Link) error

func WithInfluxDB(writeAPI api.WriteAPI) LinkOption {
	return func(l *Link) error {
		l.writeAPI = writeAPI
		return nil
	}
}

// WithStatusServer runs s alongside the link and registers the link's status and
// metrics with it.
func WithStatusServer(s *status.Server) LinkOption {
	return func(l *Link) error {
		l.server = s
		return nil
	}
}

func WithLogger(logger zerolog.Logger) LinkOption {
	return func(l *Link) error {
		l.logger = logger
		return nil
	}
}

func WithOutputs(outputs ...output.Output) LinkOption {
	return func(l *Link) error {
		l.outputs = append(l.outputs, outputs...)
		return nil
	}
}

func NewLink(dev device.Device, options Options, opts ...LinkOption) (*Link, error) {
	if dev == nil {
		return nil, fmt.Errorf("must specify a device")
	}
	codec, err := packet.NewCodec(options.Codec)
	if err != nil {
		return nil, err
	}

	l := &Link{
		device:     dev,
		opts:       options,
		codec:      codec,
		stats:      &packet.Stats{},
		queue:      queue.New[packet.RawPacket](options.QueueCapacity),
		pool:       pool.New(options.BlobPoolSize, options.BlobCapacity),
		writeAPI:   &util.MockWriteAPI{}, // overwritten with option
		logger:     log.Logger,
		sessionID:  uuid.New(),
		source:     make(chan packet.Message, sourceBuffer),
		deliveries: make(chan packet.Delivery),
		received:   make(chan *output.Received, receivedBuffer),
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	l.logger = l.logger.With().Str("session_id", l.sessionID.String()).Logger()

	l.encoder = packet.NewEncoder(codec, l.source,
		packet.WithWhitenerRotation(options.UseWhitenerOffset),
		packet.WithEncoderLogger(l.logger),
		packet.WithEncoderStats(l.stats))

	if l.server != nil {
		l.registerStatus(l.server)
	}

	return l, nil
}

func (l *Link) SessionID() uuid.UUID {
	return l.sessionID
}

func (l *Link) Codec() *packet.Codec {
	return l.codec
}

func (l *Link) Stats() packet.StatsSnapshot {
	return l.stats.Snapshot()
}

// CorrelatorStats is zero until Start has run.
func (l *Link) CorrelatorStats() correlator.Stats {
	if c := l.correlator.Load(); c != nil {
		return c.Stats()
	}
	return correlator.Stats{}
}

// Received yields every delivery in order and is closed once Start returns. It must be
// drained: a full channel stalls decoding.
func (l *Link) Received() <-chan *output.Received {
	return l.received
}

func (l *Link) send(ctx context.Context, msg packet.Message) error {
	l.sourceMu.RLock()
	defer l.sourceMu.RUnlock()
	if l.sourceClosed {
		return ErrLinkClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLinkClosed
	case l.source <- msg:
		return nil
	}
}

// Send queues one payload for transmission. The payload is copied.
func (l *Link) Send(ctx context.Context, payload []byte) error {
	if len(payload) > packet.MaxPayloadLength {
		return fmt.Errorf("%w: %d > %d bytes", packet.ErrPayloadTooLarge, len(payload), packet.MaxPayloadLength)
	}
	return l.send(ctx, packet.PayloadMessage(append([]byte(nil), payload...)))
}

// SendControl passes a control message to the encoder, which drops it.
func (l *Link) SendControl(ctx context.Context, name string) error {
	return l.send(ctx, packet.ControlMessage(name))
}

// CloseInput ends the tx stream. Everything already sent is still transmitted and
// received; Start returns once the device has drained. A serial device drains when
// rx has been quiet for its drain timeout.
func (l *Link) CloseInput() {
	l.sourceMu.Lock()
	defer l.sourceMu.Unlock()
	if !l.sourceClosed {
		l.sourceClosed = true
		close(l.source)
	}
}

func (l *Link) Start(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)

	corr := correlator.New(ctx, l.codec.AccessCode(), l.opts.Threshold, l.queue, correlator.WithLogger(l.logger))
	l.correlator.Store(corr)
	var pipeline frame.Processor = packet.NewDecoderPipeline(l.codec, l.queue, l.pool, l.deliveries,
		packet.WithPipelineLogger(l.logger),
		packet.WithPipelineStats(l.stats))

	eg.Go(func() error {
		err := l.device.Start(ctx, l.encoder.Reader(ctx), corr)
		// Nothing more will arrive; the pipeline drains what is queued and stops.
		l.queue.Close()
		if errors.Is(err, queue.ErrQueueClosed) {
			return nil
		}
		return l.ignoreFinished(err)
	})

	eg.Go(func() error {
		defer close(l.deliveries)
		return l.ignoreFinished(pipeline.Run(ctx))
	})

	eg.Go(func() error {
		defer l.finish()
		l.deliver(ctx)
		return nil
	})

	if l.server != nil {
		eg.Go(func() error {
			return l.server.Run(ctx)
		})
	}

	for _, out := range l.outputs {
		thisOutput := out
		eg.Go(func() error {
			return l.ignoreFinished(thisOutput.Start(ctx))
		})
	}

	l.logger.Info().
		Str("access_code", l.codec.AccessCode().String()).
		Int("threshold", corr.Threshold()).
		Bool("whitener_rotation", l.opts.UseWhitenerOffset).
		Msg("Starting")

	err := eg.Wait()

	snap := l.stats.Snapshot()
	l.logger.Info().
		Uint64("frames_encoded", snap.FramesEncoded).
		Uint64("packets_decoded", snap.PacketsDecoded).
		Uint64("packets_failed", snap.PacketsFailed).
		Err(err).
		Msg("link finished")
	return err
}

// finish runs once every delivery has been handed on. Anything still running is
// support work and is cancelled.
func (l *Link) finish() {
	close(l.received)
	l.finished.Store(true)
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.mu.Unlock()
}

func (l *Link) ignoreFinished(err error) error {
	if err != nil && l.finished.Load() && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (l *Link) deliver(ctx context.Context) {
	var sequence uint64
	for d := range l.deliveries {
		sequence++
		r := &output.Received{
			SessionID: l.sessionID.String(),
			Sequence:  sequence,
			Timestamp: time.Now(),
		}

		result := "ok"
		switch v := d.(type) {
		case packet.Ok:
			r.Payload = append([]byte(nil), v.Blob.Bytes()...)
			if err := v.Blob.Release(); err != nil {
				l.logger.Error().Err(err).Int("blob", v.Blob.ID()).Msg("releasing delivered blob")
			}
		case packet.Fail:
			r.Err = v.Err
			result = "fail"
		}

		skippedOutputs := 0
		for _, out := range l.outputs {
			select {
			case out.Receive() <- r:
				// We will not wait on blocked outputs.
			default:
				skippedOutputs++
			}
		}

		go l.writeAPI.WritePoint(influxdb2.NewPoint("pktlink.delivery",
			map[string]string{
				"session_id": r.SessionID,
				"result":     result,
			},
			map[string]interface{}{
				"sequence":        int64(sequence),
				"payload_length":  len(r.Payload),
				"skipped_outputs": skippedOutputs,
			}, r.Timestamp))

		select {
		case l.received <- r:
		case <-ctx.Done():
		}
	}
}

// Stop tears the link down without waiting for in-flight packets. Use CloseInput to
// drain instead.
func (l *Link) Stop() error {
	l.stopOnce.Do(func() {
		close(l.done)
		l.CloseInput()
		l.queue.Close()
		l.pool.Close()
		l.stopErr = l.device.Stop()
		if l.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			if err := l.server.Stop(ctx); err != nil && l.stopErr == nil {
				l.stopErr = err
			}
			cancel()
		}
	})
	return l.stopErr
}
