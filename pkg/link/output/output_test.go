package output

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/norasector/pktlink/pkg/link/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func TestSimpleOutputFlushesOnCancel(t *testing.T) {
	var buf lockedBuffer
	out := NewSimpleOutput(&buf, WithFlushInterval(time.Hour))

	out.Receive() <- &Received{Sequence: 1, Payload: []byte("hello")}
	out.Receive() <- &Received{Sequence: 2, Err: errors.New("bad crc")}
	out.Receive() <- &Received{Sequence: 3, Payload: []byte("a\nb")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, out.Start(ctx), context.Canceled)

	assert.Equal(t, "1 ok 5 \"hello\"\n3 ok 3 \"a\\nb\"\n", buf.String())
}

func TestSimpleOutputFailuresAndBatching(t *testing.T) {
	var buf lockedBuffer
	out := NewSimpleOutput(&buf, WithFailures(), WithFlushInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- out.Start(ctx) }()

	for i := 0; i < lineBufferLength; i++ {
		out.Receive() <- &Received{Sequence: uint64(i), Err: errors.New("short")}
	}
	require.Eventually(t, func() bool { return buf.String() != "" }, time.Second, time.Millisecond)
	assert.Contains(t, buf.String(), "0 fail short\n")

	cancel()
	<-done
}

func TestEncode(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	msg, err := Encode(&Received{SessionID: "abc", Sequence: 7, Payload: []byte{0, 1, 2}, Timestamp: ts})
	require.NoError(t, err)

	n := binary.LittleEndian.Uint16(msg[:2])
	require.Equal(t, int(n), len(msg)-2)

	var pb structpb.Struct
	require.NoError(t, proto.Unmarshal(msg[2:], &pb))
	fields := pb.AsMap()
	assert.Equal(t, "abc", fields["session_id"])
	assert.Equal(t, float64(7), fields["sequence"])
	assert.Equal(t, true, fields["ok"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{0, 1, 2}), fields["payload"])
	assert.Equal(t, "2024-01-02T03:04:05Z", fields["timestamp"])

	pbFail, err := ToProtobuf(&Received{Err: errors.New("crc")})
	require.NoError(t, err)
	assert.Equal(t, "crc", pbFail.AsMap()["error"])
	assert.Equal(t, false, pbFail.AsMap()["ok"])
}

func TestUDPOutput(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer listener.Close()

	port := listener.LocalAddr().(*net.UDPAddr).Port
	out := NewUDPOutput([]config.OutputDestination{{Host: "127.0.0.1", Port: port}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- out.Start(ctx) }()

	out.Receive() <- &Received{SessionID: "s", Sequence: 1, Payload: []byte("over udp"), Timestamp: time.Now()}

	require.NoError(t, listener.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 2048)
	n, _, err := listener.ReadFromUDP(buf)
	require.NoError(t, err)

	var pb structpb.Struct
	require.NoError(t, proto.Unmarshal(buf[2:n], &pb))
	payload, err := base64.StdEncoding.DecodeString(pb.AsMap()["payload"].(string))
	require.NoError(t, err)
	assert.Equal(t, []byte("over udp"), payload)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
