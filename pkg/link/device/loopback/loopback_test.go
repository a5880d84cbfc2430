package loopback

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/norasector/pktlink/pkg/dsp/viz"
	"github.com/norasector/pktlink/pkg/frame/correlator"
	"github.com/norasector/pktlink/pkg/packet"
	"github.com/norasector/pktlink/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLoopback(t *testing.T, opts Options, payloads [][]byte, lopts ...LoopbackOption) []packet.RawPacket {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	codec, err := packet.NewCodec(packet.Options{SamplesPerSymbol: opts.SamplesPerSymbol})
	require.NoError(t, err)

	source := make(chan packet.Message, len(payloads))
	for _, p := range payloads {
		source <- packet.PayloadMessage(p)
	}
	close(source)
	enc := packet.NewEncoder(codec, source, packet.WithWhitenerRotation(true))

	q := queue.New[packet.RawPacket](len(payloads) + 1)
	corr := correlator.New(ctx, codec.AccessCode(), correlator.DefaultThreshold, q)

	dev, err := NewLoopbackDevice(opts, lopts...)
	require.NoError(t, err)
	require.NoError(t, dev.Start(ctx, enc.Reader(ctx), corr))

	var raws []packet.RawPacket
	for q.Len() > 0 {
		raw, err := q.Dequeue(ctx)
		require.NoError(t, err)
		got, err := codec.Decode(raw.Data, raw.Length)
		require.NoError(t, err)
		raws = append(raws, packet.RawPacket{Data: got, Length: len(got)})
	}
	return raws
}

func TestLoopbackClean(t *testing.T) {
	var payloads [][]byte
	for i := 0; i < 20; i++ {
		payloads = append(payloads, []byte(fmt.Sprintf("packet %d", i)))
	}

	got := runLoopback(t, Options{SamplesPerSymbol: 2, ChunkSize: 37}, payloads)
	require.Len(t, got, len(payloads))
	for i := range payloads {
		assert.Equal(t, payloads[i], got[i].Data)
	}
}

func TestLoopbackNoisy(t *testing.T) {
	payloads := [][]byte{
		[]byte("through the noise"),
		make([]byte, 300),
		[]byte("last"),
	}

	got := runLoopback(t, Options{SamplesPerSymbol: 4, NoiseSigma: 0.3, NoiseSeed: 11}, payloads)
	require.Len(t, got, len(payloads))
	for i := range payloads {
		assert.Equal(t, payloads[i], got[i].Data)
	}
}

type plotRegistry map[string][]viz.Producer

func (r plotRegistry) RegisterPlot(bucket string, p viz.Producer) {
	r[bucket] = append(r[bucket], p)
}

func TestLoopbackBandLimited(t *testing.T) {
	var payloads [][]byte
	for i := 0; i < 8; i++ {
		payloads = append(payloads, []byte(fmt.Sprintf("filtered %d", i)))
	}

	reg := plotRegistry{}
	opts := Options{SamplesPerSymbol: 4, SymbolRate: 9600, ChannelCutoff: 9600, NoiseSigma: 0.1, NoiseSeed: 5, ChunkSize: 64}
	got := runLoopback(t, opts, payloads, WithPlots(reg))
	require.Len(t, got, len(payloads))
	for i := range payloads {
		assert.Equal(t, payloads[i], got[i].Data)
	}

	var names []string
	for _, p := range reg["loopback"] {
		names = append(names, p.Name())
	}
	assert.Contains(t, names, "04. channel_filter")
	assert.Contains(t, names, "05. channel_filter (FFT)")

	img, err := reg["loopback"][0].GetImage()
	require.NoError(t, err)
	assert.NotEmpty(t, img.Data())
}

func TestLoopbackFSK(t *testing.T) {
	payloads := [][]byte{
		[]byte("frequency shift keyed"),
		make([]byte, 200),
		[]byte("tail"),
	}

	tests := []struct {
		name string
		opts Options
	}{
		{"clean", Options{SamplesPerSymbol: 4, Modulation: ModulationFSK}},
		{"mistuned noisy", Options{SamplesPerSymbol: 4, Modulation: ModulationFSK, FrequencyOffset: 300, NoiseSigma: 0.1, NoiseSeed: 3}},
		{"filtered", Options{SamplesPerSymbol: 4, Modulation: ModulationFSK, ChannelCutoff: 7200, ChunkSize: 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := runLoopback(t, tt.opts, payloads)
			require.Len(t, got, len(payloads))
			for i := range payloads {
				assert.Equal(t, payloads[i], got[i].Data)
			}
		})
	}
}

func TestLoopbackRejectsUnknownModulation(t *testing.T) {
	_, err := NewLoopbackDevice(Options{Modulation: "qam"})
	assert.Error(t, err)
}

func TestLoopbackRejectsCutoffAboveNyquist(t *testing.T) {
	_, err := NewLoopbackDevice(Options{SamplesPerSymbol: 2, SymbolRate: 9600, ChannelCutoff: 9600})
	assert.Error(t, err)
}

func TestLoopbackStop(t *testing.T) {
	dev, err := NewLoopbackDevice(Options{})
	require.NoError(t, err)
	require.NoError(t, dev.Stop())
	require.NoError(t, dev.Stop())

	err = dev.Start(context.Background(), nil, nil)
	assert.NoError(t, err)
}
