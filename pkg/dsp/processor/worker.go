package processor

import "github.com/norasector/pktlink/pkg/dsp/viz"

type DataType int

const (
	DataTypeComplex DataType = iota
	DataTypeFloat
	DataTypeBytes
)

func (d DataType) String() string {
	switch d {
	case DataTypeComplex:
		return "complex"
	case DataTypeFloat:
		return "float"
	case DataTypeBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// DSPWorker wraps one block of a processing chain together with its rates and the
// buffer it writes into.
type DSPWorker struct {
	Name       string
	InputRate  int
	OutputRate int

	inputDataType  DataType
	outputDataType DataType

	bfWorker BFWorker
	ffWorker FFWorker
	fbWorker FBWorker
	bbWorker BBWorker
	fcWorker FCWorker
	ccWorker CCWorker
	cfWorker CFWorker

	fOutputBuffer []float32
	cOutputBuffer []complex64
	bOutputBuffer []byte

	fft        *viz.FFTPlotter
	timeDomain *viz.TimeDomainPlotter
	vizSize    int
	plotType   viz.PlotType
	floatFFT   bool

	plotOptions []viz.PlotOptions
}

type DSPWorkerOption func(r *DSPWorker)

func WithPlotOptions(opts ...viz.PlotOptions) DSPWorkerOption {
	return func(r *DSPWorker) {
		r.plotOptions = append(r.plotOptions, opts...)
	}
}

func WithVizLength(length int) DSPWorkerOption {
	return func(r *DSPWorker) {
		r.vizSize = length
	}
}

func WithPlotType(plotType viz.PlotType) DSPWorkerOption {
	return func(r *DSPWorker) {
		r.plotType = plotType
	}
}

// WithFloatFFTPlot adds a spectrum plot of the block's float output.
func WithFloatFFTPlot() DSPWorkerOption {
	return func(r *DSPWorker) {
		r.floatFFT = true
	}
}

func baseWorker(name string, inputRate, outputRate int, opts []DSPWorkerOption) *DSPWorker {
	ret := &DSPWorker{
		Name:       name,
		InputRate:  inputRate,
		OutputRate: outputRate,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func NewDSPWorkerBF(name string, inputRate, outputRate int, worker BFWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := baseWorker(name, inputRate, outputRate, opts)
	ret.inputDataType = DataTypeBytes
	ret.outputDataType = DataTypeFloat
	ret.bfWorker = worker
	return ret
}

func NewDSPWorkerFF(name string, inputRate, outputRate int, worker FFWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := baseWorker(name, inputRate, outputRate, opts)
	ret.inputDataType = DataTypeFloat
	ret.outputDataType = DataTypeFloat
	ret.ffWorker = worker
	return ret
}

func NewDSPWorkerFB(name string, inputRate, outputRate int, worker FBWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := baseWorker(name, inputRate, outputRate, opts)
	ret.inputDataType = DataTypeFloat
	ret.outputDataType = DataTypeBytes
	ret.fbWorker = worker
	return ret
}

func NewDSPWorkerBB(name string, inputRate, outputRate int, worker BBWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := baseWorker(name, inputRate, outputRate, opts)
	ret.inputDataType = DataTypeBytes
	ret.outputDataType = DataTypeBytes
	ret.bbWorker = worker
	return ret
}

func NewDSPWorkerFC(name string, inputRate, outputRate int, worker FCWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := baseWorker(name, inputRate, outputRate, opts)
	ret.inputDataType = DataTypeFloat
	ret.outputDataType = DataTypeComplex
	ret.fcWorker = worker
	return ret
}

func NewDSPWorkerCC(name string, inputRate, outputRate int, worker CCWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := baseWorker(name, inputRate, outputRate, opts)
	ret.inputDataType = DataTypeComplex
	ret.outputDataType = DataTypeComplex
	ret.ccWorker = worker
	return ret
}

func NewDSPWorkerCF(name string, inputRate, outputRate int, worker CFWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := baseWorker(name, inputRate, outputRate, opts)
	ret.inputDataType = DataTypeComplex
	ret.outputDataType = DataTypeFloat
	ret.cfWorker = worker
	return ret
}

// Binary bytes (1 bit per byte) in, float out
type BFWorker interface {
	WorkBuffer([]byte, []float32) int
	PredictOutputSize(int) int
}

// Float in, binary bytes out (1 symbol per byte)
type FBWorker interface {
	WorkBuffer([]float32, []byte) int
	PredictOutputSize(int) int
}

type FFWorker interface {
	WorkBuffer([]float32, []float32) int
	PredictOutputSize(int) int
}

type BBWorker interface {
	WorkBuffer([]byte, []byte) int
	PredictOutputSize(int) int
}

type FCWorker interface {
	WorkBuffer([]float32, []complex64) int
	PredictOutputSize(int) int
}

type CCWorker interface {
	WorkBuffer([]complex64, []complex64) int
	PredictOutputSize(int) int
}

type CFWorker interface {
	WorkBuffer([]complex64, []float32) int
	PredictOutputSize(int) int
}
