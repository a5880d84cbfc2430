package slicer

// BinarySlicer takes input float32 data and returns a byte
// with value 0 or 1 depending on which side of the threshold it falls.
type BinarySlicer struct {
	threshold float32
	invert    bool
}

type Option func(b *BinarySlicer)

// WithThreshold moves the decision point away from zero.
func WithThreshold(threshold float32) Option {
	return func(b *BinarySlicer) {
		b.threshold = threshold
	}
}

// WithInvert flips every decision, for links whose sign is reversed somewhere upstream.
func WithInvert() Option {
	return func(b *BinarySlicer) {
		b.invert = true
	}
}

func NewBinarySlicer(opts ...Option) *BinarySlicer {
	b := &BinarySlicer{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *BinarySlicer) slice(f float32) byte {
	var bit byte
	if f >= b.threshold {
		bit = 1
	}
	if b.invert {
		bit ^= 1
	}
	return bit
}

func (b *BinarySlicer) WorkBuffer(input []float32, output []byte) int {
	for i := 0; i < len(input); i++ {
		output[i] = b.slice(input[i])
	}
	return len(input)
}

func (b *BinarySlicer) Work(items []float32) []byte {
	ret := make([]byte, len(items))
	b.WorkBuffer(items, ret)
	return ret
}

func (b *BinarySlicer) PredictOutputSize(inputSize int) int {
	return inputSize
}
