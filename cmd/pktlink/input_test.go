package main

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/norasector/pktlink/pkg/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	payloads []string
	controls []string
	closed   bool
	failAt   int
}

func (f *fakeSender) Send(ctx context.Context, payload []byte) error {
	if f.failAt > 0 && len(f.payloads)+1 == f.failAt {
		return errors.New("link closed")
	}
	f.payloads = append(f.payloads, string(payload))
	return nil
}

func (f *fakeSender) SendControl(ctx context.Context, name string) error {
	f.controls = append(f.controls, name)
	return nil
}

func (f *fakeSender) CloseInput() {
	f.closed = true
}

func TestFeedInput(t *testing.T) {
	s := &fakeSender{}
	n, err := feedInput(context.Background(), strings.NewReader("hello\n!flush\n\nworld"), s)
	require.NoError(t, err)

	assert.Equal(t, 4, n)
	assert.Equal(t, []string{"hello", "", "world"}, s.payloads)
	assert.Equal(t, []string{"flush"}, s.controls)
	assert.True(t, s.closed)
}

func TestFeedInputStopsOnError(t *testing.T) {
	s := &fakeSender{failAt: 2}
	n, err := feedInput(context.Background(), strings.NewReader("a\nb\nc\n"), s)
	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, s.closed)
}

func TestFeedInputLineTooLong(t *testing.T) {
	s := &fakeSender{}
	long := strings.Repeat("x", packet.MaxPayloadLength+10)
	_, err := feedInput(context.Background(), strings.NewReader(long+"\n"), s)
	assert.ErrorIs(t, err, bufio.ErrTooLong)
}
