package nrz

// Mapper turns unpacked bits into non-return-to-zero levels: a 1 becomes +amplitude and
// a 0 becomes -amplitude, each held for samplesPerSymbol samples.
type Mapper struct {
	samplesPerSymbol int
	amplitude        float32
}

func NewMapper(samplesPerSymbol int, amplitude float32) *Mapper {
	if samplesPerSymbol < 1 {
		samplesPerSymbol = 1
	}
	return &Mapper{
		samplesPerSymbol: samplesPerSymbol,
		amplitude:        amplitude,
	}
}

func (m *Mapper) SamplesPerSymbol() int {
	return m.samplesPerSymbol
}

func (m *Mapper) PredictOutputSize(inputSize int) int {
	return inputSize * m.samplesPerSymbol
}

func (m *Mapper) WorkBuffer(input []byte, output []float32) int {
	n := 0
	for _, bit := range input {
		level := -m.amplitude
		if bit&1 == 1 {
			level = m.amplitude
		}
		for i := 0; i < m.samplesPerSymbol; i++ {
			output[n] = level
			n++
		}
	}
	return n
}

func (m *Mapper) Work(bits []byte) []float32 {
	ret := make([]float32, m.PredictOutputSize(len(bits)))
	m.WorkBuffer(bits, ret)
	return ret
}
