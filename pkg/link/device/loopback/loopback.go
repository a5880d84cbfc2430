package loopback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/pktlink/pkg/dsp/agc/rmsagc"
	"github.com/norasector/pktlink/pkg/dsp/channel"
	"github.com/norasector/pktlink/pkg/dsp/demodulators/quad"
	"github.com/norasector/pktlink/pkg/dsp/filters/fir"
	"github.com/norasector/pktlink/pkg/dsp/filters/intdump"
	"github.com/norasector/pktlink/pkg/dsp/mixer"
	"github.com/norasector/pktlink/pkg/dsp/modulators/fm"
	"github.com/norasector/pktlink/pkg/dsp/modulators/nrz"
	"github.com/norasector/pktlink/pkg/dsp/processor"
	"github.com/norasector/pktlink/pkg/dsp/slicer"
	"github.com/norasector/pktlink/pkg/dsp/viz"
	"github.com/norasector/pktlink/pkg/frame"
	"github.com/norasector/pktlink/pkg/util"
	"github.com/norasector/turbine-common/types"
	"github.com/racerxdl/segdsp/dsp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	agcAlpha     = 0.001
	agcReference = 1.0

	ModulationNRZ = "nrz"
	ModulationFSK = "fsk"

	// modulation index for ModulationFSK
	fskIndex = 0.5
)

type Options struct {
	SamplesPerSymbol int
	SymbolRate       int
	NoiseSigma       float64
	NoiseSeed        uint64
	ChunkSize        int

	// Modulation is ModulationNRZ (baseband, the default) or ModulationFSK, which FM
	// modulates the NRZ signal and recovers it with a quadrature discriminator.
	Modulation string
	// FrequencyOffset mistunes the FSK receiver by this many Hz.
	FrequencyOffset float64

	// ChannelCutoff band-limits the channel with a lowpass at this many Hz. Zero
	// leaves the channel flat.
	ChannelCutoff float64
}

// LoopbackDevice sends the tx stream through a simulated binary channel and feeds the
// sliced bits straight back into rx.
type LoopbackDevice struct {
	opts     Options
	proc     *processor.Processor
	writeAPI api.WriteAPI
	logger   zerolog.Logger
	plots    viz.Registry
	stop     chan struct{}
	stopOnce sync.Once

	// zero bits pushed at end of stream to drain the channel filter
	flushBits int
}

type LoopbackOption func(l *LoopbackDevice)

func WithInfluxDB(writeAPI api.WriteAPI) LoopbackOption {
	return func(l *LoopbackDevice) {
		l.writeAPI = writeAPI
	}
}

func WithLogger(logger zerolog.Logger) LoopbackOption {
	return func(l *LoopbackDevice) {
		l.logger = logger
	}
}

// WithPlots registers scope and spectrum plots of the channel.
func WithPlots(registry viz.Registry) LoopbackOption {
	return func(l *LoopbackDevice) {
		l.plots = registry
	}
}

func NewLoopbackDevice(opts Options, lopts ...LoopbackOption) (*LoopbackDevice, error) {
	if opts.SamplesPerSymbol < 1 {
		opts.SamplesPerSymbol = 1
	}
	if opts.SymbolRate < 1 {
		opts.SymbolRate = 9600
	}
	if opts.ChunkSize < 1 {
		opts.ChunkSize = 512
	}
	if opts.Modulation == "" {
		opts.Modulation = ModulationNRZ
	}

	l := &LoopbackDevice{
		opts:     opts,
		writeAPI: &util.MockWriteAPI{},
		logger:   log.Logger,
		stop:     make(chan struct{}),
	}
	for _, opt := range lopts {
		opt(l)
	}

	symbolRate := opts.SymbolRate
	sampleRate := symbolRate * opts.SamplesPerSymbol

	var procOpts []processor.ProcessorOption
	if l.plots != nil {
		procOpts = append(procOpts, processor.WithPlots(l.plots))
	}
	l.proc = processor.NewProcessor("loopback", procOpts...)
	l.proc.AddBlock(processor.NewDSPWorkerBF("nrz", symbolRate, sampleRate, nrz.NewMapper(opts.SamplesPerSymbol, 1),
		processor.WithPlotType(viz.PlotTypeLines)))

	switch opts.Modulation {
	case ModulationNRZ:
		l.proc.AddBlock(processor.NewDSPWorkerFF("awgn", sampleRate, sampleRate, channel.NewAWGN(opts.NoiseSigma, opts.NoiseSeed),
			processor.WithFloatFFTPlot()))
	case ModulationFSK:
		mod := fm.NewFSKModulator(fskIndex, opts.SamplesPerSymbol)
		l.proc.AddBlock(processor.NewDSPWorkerFC("fm", sampleRate, sampleRate, mod))
		if opts.FrequencyOffset != 0 {
			l.proc.AddBlock(processor.NewDSPWorkerCC("mixer", sampleRate, sampleRate, mixer.NewWaveformMixer(sampleRate, opts.FrequencyOffset)))
		}
		l.proc.AddBlock(processor.NewDSPWorkerCC("awgn", sampleRate, sampleRate, channel.NewComplexAWGN(opts.NoiseSigma, opts.NoiseSeed)))
		l.proc.AddBlock(processor.NewDSPWorkerCF("quad_demod", sampleRate, sampleRate, quad.MakeQuadDemod(float32(1/mod.Sensitivity())),
			processor.WithFloatFFTPlot()))
	default:
		return nil, fmt.Errorf("unknown modulation %q", opts.Modulation)
	}

	var dumpOpts []intdump.Option
	if opts.ChannelCutoff > 0 {
		taps, err := fir.MakeLowPass(1.0, float64(sampleRate), opts.ChannelCutoff, opts.ChannelCutoff/4, fir.Hamming)
		if err != nil {
			return nil, fmt.Errorf("channel filter: %w", err)
		}
		delay := fir.MeasureDelay(dsp.MakeFloatFirFilter(taps), len(taps))
		dumpOpts = append(dumpOpts, intdump.WithSkip(delay))
		l.flushBits = delay/opts.SamplesPerSymbol + 1

		l.logger.Debug().
			Int("taps", len(taps)).
			Int("delay_samples", delay).
			Float64("cutoff", opts.ChannelCutoff).
			Msg("channel lowpass")

		l.proc.AddBlock(processor.NewDSPWorkerFF("channel_filter", sampleRate, sampleRate, dsp.MakeFloatFirFilter(taps),
			processor.WithFloatFFTPlot()))
	}

	l.proc.AddBlock(processor.NewDSPWorkerFF("agc", sampleRate, sampleRate, rmsagc.NewRMSAGC(agcAlpha, agcReference)))
	l.proc.AddBlock(processor.NewDSPWorkerFF("integrate_dump", sampleRate, symbolRate, intdump.NewIntegrateAndDump(opts.SamplesPerSymbol, dumpOpts...)))
	l.proc.AddBlock(processor.NewDSPWorkerFB("slicer", symbolRate, symbolRate, slicer.NewBinarySlicer()))
	if err := l.proc.Initialize(); err != nil {
		return nil, err
	}

	return l, nil
}

func (l *LoopbackDevice) Start(ctx context.Context, tx io.Reader, rx frame.Assembler) error {
	buf := make([]byte, l.opts.ChunkSize)
	bits := make([]byte, 0, l.opts.ChunkSize*8)
	segNum := 0

	l.logger.Info().
		Int("samples_per_symbol", l.opts.SamplesPerSymbol).
		Str("modulation", l.opts.Modulation).
		Float64("noise_sigma", l.opts.NoiseSigma).
		Float64("channel_cutoff", l.opts.ChannelCutoff).
		Msg("loopback channel starting")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			return nil
		default:
		}

		n, err := tx.Read(buf)
		if n > 0 {
			segNum++
			bits = frame.BitsFromBytes(bits[:0], buf[:n])
			if perr := l.transmit(bits, segNum, rx); perr != nil {
				return perr
			}
		}

		switch {
		case errors.Is(err, io.EOF):
			if l.flushBits > 0 {
				segNum++
				if perr := l.transmit(make([]byte, l.flushBits), segNum, rx); perr != nil {
					return perr
				}
			}
			l.logger.Debug().Int("segments", segNum).Msg("loopback tx exhausted")
			return nil
		case err != nil:
			return err
		}
	}
}

func (l *LoopbackDevice) transmit(bits []byte, segNum int, rx frame.Assembler) error {
	metrics := make(map[string]interface{})
	seg, err := l.proc.ProcessBinaryToBinary(&types.SegmentBinaryBytes{
		SymbolRate:    l.opts.SymbolRate,
		Data:          bits,
		SegmentNumber: segNum,
	}, metrics)
	if err != nil {
		return err
	}

	metrics["bits"] = len(seg.Data)
	go l.writeAPI.WritePoint(influxdb2.NewPoint("pktlink.loopback.segment",
		map[string]string{"device": "loopback"},
		metrics, time.Now()))

	return rx.Receive(seg.Data)
}

func (l *LoopbackDevice) Stop() error {
	l.stopOnce.Do(func() { close(l.stop) })
	return nil
}
