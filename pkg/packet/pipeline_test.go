package packet

import (
	"context"
	"testing"
	"time"

	"github.com/norasector/pktlink/pkg/pool"
	"github.com/norasector/pktlink/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipelineHarness struct {
	codec *Codec
	queue *queue.Queue[RawPacket]
	pool  *pool.Pool
	out   chan Delivery
	stats *Stats
	errc  chan error
}

func startPipeline(t *testing.T, poolSize, blobCapacity int) *pipelineHarness {
	t.Helper()
	h := &pipelineHarness{
		codec: newTestCodec(t, ""),
		queue: queue.New[RawPacket](4),
		pool:  pool.New(poolSize, blobCapacity),
		out:   make(chan Delivery, 16),
		stats: &Stats{},
		errc:  make(chan error, 1),
	}
	d := NewDecoderPipeline(h.codec, h.queue, h.pool, h.out, WithPipelineStats(h.stats))
	go func() {
		h.errc <- d.Run(context.Background())
	}()
	return h
}

func (h *pipelineHarness) raw(t *testing.T, payload []byte, offset int) RawPacket {
	t.Helper()
	frame, err := h.codec.Encode(payload, NewWhitenerOffset(offset))
	require.NoError(t, err)
	data := frame[h.codec.HeaderOffset():]
	return RawPacket{Data: data, Length: len(data)}
}

func (h *pipelineHarness) next(t *testing.T) Delivery {
	t.Helper()
	select {
	case d := <-h.out:
		return d
	case <-time.After(time.Second):
		t.Fatal("no delivery")
	}
	return nil
}

func (h *pipelineHarness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.errc:
		return err
	case <-time.After(time.Second):
		t.Fatal("pipeline did not stop")
	}
	return nil
}

func TestPipelineDeliversInOrder(t *testing.T) {
	h := startPipeline(t, 8, 1024)
	ctx := context.Background()

	good1 := h.raw(t, []byte("first"), 0)
	bad := h.raw(t, []byte("second"), 1)
	bad.Data = append([]byte(nil), bad.Data...)
	bad.Data[HeaderLength+2] ^= 0xff
	good2 := h.raw(t, []byte("third"), 2)

	require.NoError(t, h.queue.Enqueue(ctx, good1))
	require.NoError(t, h.queue.Enqueue(ctx, bad))
	require.NoError(t, h.queue.Enqueue(ctx, good2))

	d := h.next(t)
	ok, isOk := d.(Ok)
	require.True(t, isOk, "got %T", d)
	assert.Equal(t, []byte("first"), ok.Blob.Bytes())
	require.NoError(t, ok.Blob.Release())

	d = h.next(t)
	fail, isFail := d.(Fail)
	require.True(t, isFail, "got %T", d)
	assert.ErrorIs(t, fail.Err, ErrCRCMismatch)

	d = h.next(t)
	ok, isOk = d.(Ok)
	require.True(t, isOk, "got %T", d)
	assert.Equal(t, []byte("third"), ok.Blob.Bytes())
	require.NoError(t, ok.Blob.Release())

	h.queue.Close()
	assert.NoError(t, h.wait(t))

	snap := h.stats.Snapshot()
	assert.Equal(t, uint64(2), snap.PacketsDecoded)
	assert.Equal(t, uint64(1), snap.PacketsFailed)
}

func TestPipelineEmptyPayload(t *testing.T) {
	h := startPipeline(t, 1, 16)
	require.NoError(t, h.queue.Enqueue(context.Background(), h.raw(t, nil, 5)))

	d := h.next(t)
	ok, isOk := d.(Ok)
	require.True(t, isOk, "got %T", d)
	assert.Equal(t, 0, ok.Blob.Len())
	require.NoError(t, ok.Blob.Release())
	h.queue.Close()
	assert.NoError(t, h.wait(t))
}

func TestPipelineBackpressureOnPool(t *testing.T) {
	h := startPipeline(t, 1, 64)
	ctx := context.Background()

	require.NoError(t, h.queue.Enqueue(ctx, h.raw(t, []byte("a"), 0)))
	require.NoError(t, h.queue.Enqueue(ctx, h.raw(t, []byte("b"), 0)))

	first := h.next(t).(Ok)
	select {
	case d := <-h.out:
		t.Fatalf("delivered %T while the only blob was held", d)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Blob.Release())
	second := h.next(t).(Ok)
	assert.Equal(t, []byte("b"), second.Blob.Bytes())
	assert.Same(t, first.Blob, second.Blob)
	require.NoError(t, second.Blob.Release())

	h.queue.Close()
	assert.NoError(t, h.wait(t))
}

func TestPipelinePayloadTooLarge(t *testing.T) {
	h := startPipeline(t, 2, 8)
	require.NoError(t, h.queue.Enqueue(context.Background(), h.raw(t, []byte("nine byte"), 0)))

	err := h.wait(t)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	select {
	case d := <-h.out:
		t.Fatalf("oversize payload delivered as %T", d)
	default:
	}
	assert.Equal(t, 2, h.pool.Free(), "blob was returned")
}

func TestPipelineStopsWhenQueueClosedMidWait(t *testing.T) {
	h := startPipeline(t, 1, 64)
	time.Sleep(20 * time.Millisecond)
	h.queue.Close()
	assert.NoError(t, h.wait(t))
}

func TestPipelineStopsWhenPoolClosed(t *testing.T) {
	h := startPipeline(t, 1, 64)
	ctx := context.Background()
	require.NoError(t, h.queue.Enqueue(ctx, h.raw(t, []byte("a"), 0)))
	held := h.next(t).(Ok)

	require.NoError(t, h.queue.Enqueue(ctx, h.raw(t, []byte("b"), 0)))
	time.Sleep(20 * time.Millisecond)
	h.pool.Close()

	assert.NoError(t, h.wait(t))
	require.NoError(t, held.Blob.Release())
}

func TestPipelineContextCancel(t *testing.T) {
	c := newTestCodec(t, "")
	q := queue.New[RawPacket](1)
	p := pool.New(1, 64)
	out := make(chan Delivery)
	d := NewDecoderPipeline(c, q, p, out)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("pipeline ignored cancellation")
	}
}
