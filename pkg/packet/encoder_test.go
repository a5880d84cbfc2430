package packet

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drainFrame pulls one whole frame in chunks of chunk bytes.
func drainFrame(t *testing.T, e *Encoder, chunk int) []byte {
	t.Helper()
	var frame []byte
	buf := make([]byte, chunk)
	for {
		n, done, err := e.Pull(context.Background(), buf)
		require.NoError(t, err)
		frame = append(frame, buf[:n]...)
		if done {
			return frame
		}
		assert.Equal(t, StateDraining, e.State())
	}
}

func TestEncoderStreamsInChunks(t *testing.T) {
	c := newTestCodec(t, "1010101010101010")
	want, err := c.Encode([]byte("HELLO"), 0)
	require.NoError(t, err)

	for _, chunk := range []int{1, 3, 7, len(want), 4096} {
		src := make(chan Message, 1)
		e := NewEncoder(c, src)
		assert.Equal(t, StateIdle, e.State())

		src <- PayloadMessage([]byte("HELLO"))
		got := drainFrame(t, e, chunk)
		assert.Equal(t, want, got, "chunk size %d", chunk)
		assert.Equal(t, StateIdle, e.State())
	}
}

func TestEncoderWhitenerRotation(t *testing.T) {
	c := newTestCodec(t, "")

	for _, rotate := range []bool{true, false} {
		src := make(chan Message, 40)
		e := NewEncoder(c, src, WithWhitenerRotation(rotate))
		for i := 0; i < 40; i++ {
			src <- PayloadMessage([]byte{byte(i)})
		}

		for i := 0; i < 40; i++ {
			frame := drainFrame(t, e, 5)
			h, ok := ParseHeader(frame[c.HeaderOffset():])
			require.True(t, ok)

			want := 0
			if rotate {
				want = i % WhitenerOffsets
			}
			assert.Equal(t, want, h.Offset.Int(), "rotate=%v packet %d", rotate, i)

			payload, err := c.Decode(frame[c.HeaderOffset():], 0)
			require.NoError(t, err)
			assert.Equal(t, []byte{byte(i)}, payload)
		}
	}
}

func TestEncoderSkipsControlAndOversize(t *testing.T) {
	c := newTestCodec(t, "")
	stats := &Stats{}
	src := make(chan Message, 4)
	e := NewEncoder(c, src, WithEncoderStats(stats))

	src <- ControlMessage("flush")
	src <- PayloadMessage(make([]byte, MaxPayloadLength+1))
	src <- PayloadMessage([]byte("kept"))

	frame := drainFrame(t, e, 64)
	payload, err := c.Decode(frame[c.HeaderOffset():], 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), payload)

	snap := stats.Snapshot()
	assert.Equal(t, uint64(1), snap.ControlDropped)
	assert.Equal(t, uint64(1), snap.EncodeErrors)
	assert.Equal(t, uint64(1), snap.FramesEncoded)
	assert.Equal(t, uint64(len(frame)), snap.BytesEncoded)
}

func TestEncoderSourceClosed(t *testing.T) {
	c := newTestCodec(t, "")
	src := make(chan Message, 1)
	e := NewEncoder(c, src)

	src <- PayloadMessage([]byte("last"))
	close(src)

	// the queued frame is still delivered before the close is observed
	frame := drainFrame(t, e, 16)
	assert.NotEmpty(t, frame)

	_, _, err := e.Pull(context.Background(), make([]byte, 16))
	assert.ErrorIs(t, err, ErrSourceClosed)
	assert.Equal(t, StateClosed, e.State())

	_, _, err = e.Pull(context.Background(), make([]byte, 16))
	assert.ErrorIs(t, err, ErrSourceClosed, "closed is terminal")
}

func TestEncoderWaitsForMessages(t *testing.T) {
	c := newTestCodec(t, "")
	src := make(chan Message)
	e := NewEncoder(c, src)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := e.Pull(ctx, make([]byte, 8))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	go func() {
		src <- PayloadMessage([]byte("late"))
		close(src)
	}()
	frame := drainFrame(t, e, 8)
	payload, err := c.Decode(frame[c.HeaderOffset():], 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("late"), payload)
}

func TestEncoderReader(t *testing.T) {
	c := newTestCodec(t, "")
	src := make(chan Message, 3)
	var want bytes.Buffer
	for _, p := range []string{"one", "two", "three"} {
		src <- PayloadMessage([]byte(p))
		frame, err := c.Encode([]byte(p), 0)
		require.NoError(t, err)
		want.Write(frame)
	}
	close(src)

	e := NewEncoder(c, src)
	got, err := io.ReadAll(e.Reader(context.Background()))
	require.NoError(t, err)
	assert.Equal(t, want.Bytes(), got)
}
