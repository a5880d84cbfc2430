package serial

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/norasector/pktlink/pkg/frame"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"
)

const (
	readSize = 256

	// DefaultDrainTimeout is how long rx must stay quiet after tx ends before Start
	// returns.
	DefaultDrainTimeout = 2 * time.Second

	pollInterval = 100 * time.Millisecond
)

// SerialDevice writes the tx stream to a serial modem and feeds the bytes it reads back
// to rx as bits.
type SerialDevice struct {
	port         serial.Port
	logger       zerolog.Logger
	drainTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
	closed       chan struct{}
}

type SerialOption func(s *SerialDevice)

// WithDrainTimeout sets the quiet period after tx EOF that ends Start. Zero keeps
// Start running until Stop or ctx ends.
func WithDrainTimeout(d time.Duration) SerialOption {
	return func(s *SerialDevice) {
		s.drainTimeout = d
	}
}

func WithLogger(logger zerolog.Logger) SerialOption {
	return func(s *SerialDevice) {
		s.logger = logger
	}
}

// NewSerialDevice opens path at baudRate, 8N1.
func NewSerialDevice(path string, baudRate int, opts ...SerialOption) (*SerialDevice, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return NewSerialDeviceWithPort(port, opts...), nil
}

func NewSerialDeviceWithPort(port serial.Port, opts ...SerialOption) *SerialDevice {
	s := &SerialDevice{
		port:         port,
		logger:       log.Logger,
		drainTimeout: DefaultDrainTimeout,
		closed:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs until ctx ends or the port is closed. Once tx is exhausted and nothing
// has been read for the drain timeout, Start returns nil.
func (s *SerialDevice) Start(ctx context.Context, tx io.Reader, rx frame.Assembler) error {
	eg, ctx := errgroup.WithContext(ctx)
	txDone := make(chan struct{})
	rxDone := make(chan struct{})

	eg.Go(func() error {
		defer close(txDone)
		n, err := io.Copy(s.port, tx)
		s.logger.Debug().Int64("bytes", n).Msg("serial tx finished")
		if s.isClosed() {
			return nil
		}
		return err
	})

	eg.Go(func() error {
		defer close(rxDone)
		if s.drainTimeout > 0 {
			if err := s.port.SetReadTimeout(pollInterval); err != nil {
				return err
			}
		}

		buf := make([]byte, readSize)
		bits := make([]byte, 0, readSize*8)
		var quietSince time.Time
		for {
			n, err := s.port.Read(buf)
			if n > 0 {
				quietSince = time.Time{}
				bits = frame.BitsFromBytes(bits[:0], buf[:n])
				if rerr := rx.Receive(bits); rerr != nil {
					return rerr
				}
			}
			if err != nil {
				if s.isClosed() || errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
					return nil
				}
				return err
			}
			if n > 0 || s.drainTimeout <= 0 {
				continue
			}

			// read timed out
			select {
			case <-txDone:
			default:
				continue
			}
			if quietSince.IsZero() {
				quietSince = time.Now()
			} else if time.Since(quietSince) >= s.drainTimeout {
				s.logger.Debug().Dur("drain_timeout", s.drainTimeout).Msg("serial rx drained")
				return nil
			}
		}
	})

	// Without a read timeout, blocking reads only return when the port closes.
	eg.Go(func() error {
		select {
		case <-ctx.Done():
			s.Stop()
			return ctx.Err()
		case <-s.closed:
			return nil
		case <-rxDone:
			return nil
		}
	})

	return eg.Wait()
}

func (s *SerialDevice) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *SerialDevice) Stop() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.closeErr = s.port.Close()
	})
	return s.closeErr
}
