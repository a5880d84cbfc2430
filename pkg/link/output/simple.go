package output

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"
)

const lineBufferLength int = 8

// SimpleOutput writes one text line per packet, batching writes to the destination.
type SimpleOutput struct {
	dest          io.Writer
	recvChan      chan *Received
	flushInterval time.Duration
	showFailures  bool
	buf           bytes.Buffer
	pending       int
}

type SimpleOption func(s *SimpleOutput)

// WithFailures also writes a line for every packet that failed to decode.
func WithFailures() SimpleOption {
	return func(s *SimpleOutput) {
		s.showFailures = true
	}
}

func WithFlushInterval(interval time.Duration) SimpleOption {
	return func(s *SimpleOutput) {
		s.flushInterval = interval
	}
}

func NewSimpleOutput(dest io.Writer, opts ...SimpleOption) *SimpleOutput {
	s := &SimpleOutput{
		dest:          dest,
		recvChan:      make(chan *Received, lineBufferLength),
		flushInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SimpleOutput) Receive() chan<- *Received {
	return s.recvChan
}

func formatLine(r *Received) string {
	if r.OK() {
		return fmt.Sprintf("%d ok %d %s\n", r.Sequence, len(r.Payload), strconv.Quote(string(r.Payload)))
	}
	return fmt.Sprintf("%d fail %s\n", r.Sequence, r.Err)
}

func (s *SimpleOutput) add(r *Received) error {
	if !r.OK() && !s.showFailures {
		return nil
	}
	s.buf.WriteString(formatLine(r))
	s.pending++
	if s.pending == lineBufferLength {
		return s.flush()
	}
	return nil
}

func (s *SimpleOutput) flush() error {
	if s.pending == 0 {
		return nil
	}
	s.pending = 0
	_, err := s.buf.WriteTo(s.dest)
	s.buf.Reset()
	return err
}

// Start flushes whatever is already queued before returning on ctx end.
func (s *SimpleOutput) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case r := <-s.recvChan:
					if err := s.add(r); err != nil {
						return err
					}
				default:
					if err := s.flush(); err != nil {
						return err
					}
					return ctx.Err()
				}
			}

		case <-ticker.C:
			if err := s.flush(); err != nil {
				return err
			}

		case r := <-s.recvChan:
			if err := s.add(r); err != nil {
				return err
			}
		}
	}
}
