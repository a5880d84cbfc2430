package intdump

// IntegrateAndDump sums every run of decimation samples and emits the mean, the matched
// filter for rectangular NRZ pulses. Partial runs carry over between buffers.
type IntegrateAndDump struct {
	decimation int
	acc        float32
	count      int

	skip    int
	skipped int
}

type Option func(d *IntegrateAndDump)

// WithSkip drops the first n input samples so integration windows line up with symbol
// boundaries after a filter with n samples of delay.
func WithSkip(n int) Option {
	return func(d *IntegrateAndDump) {
		if n > 0 {
			d.skip = n
		}
	}
}

func NewIntegrateAndDump(decimation int, opts ...Option) *IntegrateAndDump {
	if decimation < 1 {
		decimation = 1
	}
	d := &IntegrateAndDump{
		decimation: decimation,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *IntegrateAndDump) PredictOutputSize(inputSize int) int {
	return (d.count+inputSize)/d.decimation + 1
}

func (d *IntegrateAndDump) WorkBuffer(input, output []float32) int {
	if d.skipped < d.skip {
		drop := d.skip - d.skipped
		if drop > len(input) {
			drop = len(input)
		}
		d.skipped += drop
		input = input[drop:]
	}

	n := 0
	for _, s := range input {
		d.acc += s
		d.count++
		if d.count == d.decimation {
			output[n] = d.acc / float32(d.decimation)
			n++
			d.acc = 0
			d.count = 0
		}
	}
	return n
}

// Reset clears the running window and rearms the skip.
func (d *IntegrateAndDump) Reset() {
	d.acc = 0
	d.count = 0
	d.skipped = 0
}
