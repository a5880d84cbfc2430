package file

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/norasector/pktlink/pkg/frame"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// FileDevice records the tx byte stream to a file and plays a previously captured stream
// back into rx. Either side may be absent; tx with nowhere to go is discarded.
type FileDevice struct {
	recordFile  *os.File
	readFile    *os.File
	readSize    int
	timeBetween time.Duration
	logger      zerolog.Logger
}

type FileOption func(f *FileDevice)

func WithLogger(logger zerolog.Logger) FileOption {
	return func(f *FileDevice) {
		f.logger = logger
	}
}

// NewFileDevice opens playback for reading and creates record for writing. Either path
// may be empty. timeBetween paces playback reads; zero reads as fast as rx accepts.
func NewFileDevice(playback, record string, readSize int, timeBetween time.Duration, opts ...FileOption) (*FileDevice, error) {
	if readSize < 1 {
		readSize = 512
	}
	f := &FileDevice{
		readSize:    readSize,
		timeBetween: timeBetween,
		logger:      log.Logger,
	}
	for _, opt := range opts {
		opt(f)
	}

	if playback != "" {
		rf, err := os.Open(playback)
		if err != nil {
			return nil, err
		}
		f.readFile = rf
	}
	if record != "" {
		wf, err := os.Create(record)
		if err != nil {
			if f.readFile != nil {
				f.readFile.Close()
			}
			return nil, err
		}
		f.recordFile = wf
	}

	return f, nil
}

func (f *FileDevice) Start(ctx context.Context, tx io.Reader, rx frame.Assembler) error {
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		dst := io.Discard
		if f.recordFile != nil {
			dst = f.recordFile
		}
		n, err := io.Copy(dst, tx)
		f.logger.Debug().Int64("bytes", n).Bool("recorded", f.recordFile != nil).Msg("tx stream finished")
		return err
	})

	if f.readFile != nil {
		eg.Go(func() error {
			return f.playback(ctx, rx)
		})
	}

	return eg.Wait()
}

func (f *FileDevice) playback(ctx context.Context, rx frame.Assembler) error {
	var tick <-chan time.Time
	if f.timeBetween > 0 {
		ticker := time.NewTicker(f.timeBetween)
		defer ticker.Stop()
		tick = ticker.C
	}

	buf := make([]byte, f.readSize)
	bits := make([]byte, 0, f.readSize*8)
	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		n, err := f.readFile.Read(buf)
		if n > 0 {
			bits = frame.BitsFromBytes(bits[:0], buf[:n])
			if rerr := rx.Receive(bits); rerr != nil {
				return rerr
			}
		}
		switch {
		case errors.Is(err, io.EOF):
			f.logger.Debug().Msg("playback finished")
			return nil
		case errors.Is(err, os.ErrClosed):
			return nil
		case err != nil:
			return err
		}
	}
}

func (f *FileDevice) Stop() error {
	var errs []error
	if f.readFile != nil {
		if err := f.readFile.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if f.recordFile != nil {
		if err := f.recordFile.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
