package processor

import (
	"errors"
	"fmt"
	"time"

	"github.com/norasector/pktlink/pkg/dsp/viz"
	"github.com/norasector/turbine-common/types"
)

const (
	defaultTimeVizLength = 128
	defaultFFTVizLength  = 1024
)

type Processor struct {
	Name        string
	blocks      []*DSPWorker
	plots       viz.Registry
	initialized bool
}

type ProcessorOption func(p *Processor)

// WithPlots attaches a plotter to every float block and registers it under the
// processor's name.
func WithPlots(registry viz.Registry) ProcessorOption {
	return func(p *Processor) {
		p.plots = registry
	}
}

func NewProcessor(name string, opts ...ProcessorOption) *Processor {
	p := &Processor{
		Name: name,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) AddBlock(worker *DSPWorker) {
	p.blocks = append(p.blocks, worker)
}

// Initialize checks that adjacent blocks agree on data type and rate.
func (p *Processor) Initialize() error {
	if p.initialized {
		return nil
	}
	if len(p.blocks) < 2 {
		return fmt.Errorf("must specify at least 2 blocks")
	}

	cur := p.blocks[0]
	for i := 1; i < len(p.blocks); i++ {
		next := p.blocks[i]
		if cur.outputDataType != next.inputDataType {
			return fmt.Errorf("cur: %s next %s data type mismatch (%s %s)", cur.Name, next.Name, cur.outputDataType, next.inputDataType)
		}
		if cur.OutputRate != next.InputRate {
			return fmt.Errorf("cur: %s next %s rate mismatch (%d %d)", cur.Name, next.Name, cur.OutputRate, next.InputRate)
		}
		cur = next
	}

	if p.plots != nil {
		p.attachPlots()
	}

	p.initialized = true
	return nil
}

func (p *Processor) attachPlots() {
	vizIndex := 0
	nextIndexString := func(s string) string {
		vizIndex++
		return fmt.Sprintf("%02d. %s", vizIndex, s)
	}

	for _, block := range p.blocks {
		if block.outputDataType != DataTypeFloat {
			continue
		}

		vizLength := defaultTimeVizLength
		if block.vizSize > 0 {
			vizLength = block.vizSize
		}
		block.timeDomain = viz.NewTimeDomainPlotter(nextIndexString(block.Name), vizLength)
		if block.plotType != viz.PlotTypeDefault {
			block.timeDomain.SetPlotType(block.plotType)
		}
		for _, opt := range block.plotOptions {
			block.timeDomain.AddPlotOption(opt)
		}
		p.plots.RegisterPlot(p.Name, block.timeDomain)

		if block.floatFFT {
			block.fft = viz.NewFFTPlotterFloat(nextIndexString(block.Name+" (FFT)"), defaultFFTVizLength, block.OutputRate)
			p.plots.RegisterPlot(p.Name, block.fft)
		}
	}
}

func (b *DSPWorker) plotFloat(out []float32) {
	if b.timeDomain != nil {
		b.timeDomain.AppendFloat(out)
	}
	if b.fft != nil {
		b.fft.AppendFloat(out)
	}
}

// ensureFloat, ensureComplex and ensureBytes grow a block's output buffer to fit the
// predicted output.
func ensureComplex(buf []complex64, n int) []complex64 {
	if cap(buf) < n {
		return make([]complex64, n)
	}
	return buf[:n]
}

func ensureFloat(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}
	return buf[:n]
}

func ensureBytes(buf []byte, n int) []byte {
	if cap(buf) < n {
		return make([]byte, n)
	}
	return buf[:n]
}

// processData runs the chain over one buffer of either input type.
func (p *Processor) processData(floatInput []float32, byteInput []byte, expectedInputType, expectedOutputType DataType, metrics map[string]interface{}) ([]float32, []byte, error) {
	if floatInput != nil && byteInput != nil {
		return nil, nil, errors.New("may only specify one input")
	}
	if p.blocks[0].inputDataType != expectedInputType {
		return nil, nil, fmt.Errorf("invalid input type: got %s expected %s", p.blocks[0].inputDataType, expectedInputType)
	}
	if p.blocks[len(p.blocks)-1].outputDataType != expectedOutputType {
		return nil, nil, fmt.Errorf("invalid output type: got %s expected %s", p.blocks[len(p.blocks)-1].outputDataType, expectedOutputType)
	}

	var floatOutput []float32
	var byteOutput []byte
	var cmplxInput, cmplxOutput []complex64

	for _, block := range p.blocks {
		if block.inputDataType != expectedInputType {
			return nil, nil, fmt.Errorf("error in %s: expected %s got %s input type", block.Name, expectedInputType, block.inputDataType)
		}

		var work func()

		switch block.inputDataType {
		case DataTypeBytes:
			switch block.outputDataType {
			case DataTypeFloat:
				block.fOutputBuffer = ensureFloat(block.fOutputBuffer, block.bfWorker.PredictOutputSize(len(byteInput)))
				work = func() {
					length := block.bfWorker.WorkBuffer(byteInput, block.fOutputBuffer)
					floatOutput = block.fOutputBuffer[:length]
					block.plotFloat(floatOutput)
				}
			case DataTypeBytes:
				block.bOutputBuffer = ensureBytes(block.bOutputBuffer, block.bbWorker.PredictOutputSize(len(byteInput)))
				work = func() {
					length := block.bbWorker.WorkBuffer(byteInput, block.bOutputBuffer)
					byteOutput = block.bOutputBuffer[:length]
				}
			default:
				return nil, nil, fmt.Errorf("%s unknown output type %s for input %s", block.Name, block.outputDataType, block.inputDataType)
			}

		case DataTypeFloat:
			switch block.outputDataType {
			case DataTypeFloat:
				block.fOutputBuffer = ensureFloat(block.fOutputBuffer, block.ffWorker.PredictOutputSize(len(floatInput)))
				work = func() {
					length := block.ffWorker.WorkBuffer(floatInput, block.fOutputBuffer)
					floatOutput = block.fOutputBuffer[:length]
					block.plotFloat(floatOutput)
				}
			case DataTypeBytes:
				block.bOutputBuffer = ensureBytes(block.bOutputBuffer, block.fbWorker.PredictOutputSize(len(floatInput)))
				work = func() {
					length := block.fbWorker.WorkBuffer(floatInput, block.bOutputBuffer)
					byteOutput = block.bOutputBuffer[:length]
				}
			case DataTypeComplex:
				block.cOutputBuffer = ensureComplex(block.cOutputBuffer, block.fcWorker.PredictOutputSize(len(floatInput)))
				work = func() {
					length := block.fcWorker.WorkBuffer(floatInput, block.cOutputBuffer)
					cmplxOutput = block.cOutputBuffer[:length]
				}
			default:
				return nil, nil, fmt.Errorf("%s unknown output type %s for input %s", block.Name, block.outputDataType, block.inputDataType)
			}

		case DataTypeComplex:
			switch block.outputDataType {
			case DataTypeComplex:
				block.cOutputBuffer = ensureComplex(block.cOutputBuffer, block.ccWorker.PredictOutputSize(len(cmplxInput)))
				work = func() {
					length := block.ccWorker.WorkBuffer(cmplxInput, block.cOutputBuffer)
					cmplxOutput = block.cOutputBuffer[:length]
				}
			case DataTypeFloat:
				block.fOutputBuffer = ensureFloat(block.fOutputBuffer, block.cfWorker.PredictOutputSize(len(cmplxInput)))
				work = func() {
					length := block.cfWorker.WorkBuffer(cmplxInput, block.fOutputBuffer)
					floatOutput = block.fOutputBuffer[:length]
					block.plotFloat(floatOutput)
				}
			default:
				return nil, nil, fmt.Errorf("%s unknown output type %s for input %s", block.Name, block.outputDataType, block.inputDataType)
			}

		default:
			return nil, nil, fmt.Errorf("unknown input type %s", block.inputDataType)
		}

		start := time.Now()
		work()
		if metrics != nil {
			metrics[fmt.Sprintf("%s_duration", block.Name)] = time.Since(start).Microseconds()
		}

		if block != p.blocks[len(p.blocks)-1] {
			floatInput = floatOutput
			byteInput = byteOutput
			cmplxInput = cmplxOutput

			floatOutput = nil
			byteOutput = nil
			cmplxOutput = nil
			expectedInputType = block.outputDataType
		}
	}
	return floatOutput, byteOutput, nil
}

// ProcessBinaryToBinary runs a bits-in, bits-out chain. The returned segment aliases
// the last block's buffer and is only valid until the next call.
func (p *Processor) ProcessBinaryToBinary(input *types.SegmentBinaryBytes, metrics map[string]interface{}) (*types.SegmentBinaryBytes, error) {
	if !p.initialized {
		if err := p.Initialize(); err != nil {
			return nil, err
		}
	}

	_, byteOutput, err := p.processData(nil, input.Data, DataTypeBytes, DataTypeBytes, metrics)
	if err != nil {
		return nil, err
	}

	return &types.SegmentBinaryBytes{
		SymbolRate:    p.blocks[len(p.blocks)-1].OutputRate,
		Data:          byteOutput,
		SegmentNumber: input.SegmentNumber,
	}, nil
}
