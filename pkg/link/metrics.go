package link

import (
	"github.com/norasector/pktlink/pkg/link/status"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "pktlink"

func (l *Link) registerStatus(s *status.Server) {
	s.Register(status.ProducerFunc("stats", func() interface{} {
		return l.stats.Snapshot()
	}))
	s.Register(status.ProducerFunc("correlator", func() interface{} {
		return l.CorrelatorStats()
	}))
	s.Register(status.ProducerFunc("link", func() interface{} {
		return map[string]interface{}{
			"session_id":    l.sessionID.String(),
			"access_code":   l.codec.AccessCode().String(),
			"header_offset": l.codec.HeaderOffset(),
			"queue_len":     l.queue.Len(),
			"queue_cap":     l.queue.Cap(),
			"blobs_free":    l.pool.Free(),
			"blobs_total":   l.pool.Size(),
		}
	}))

	l.registerMetrics(s.Registry())
}

// registerMetrics labels every series with the session id so several links can share
// one registry.
func (l *Link) registerMetrics(reg prometheus.Registerer) {
	factory := promauto.With(reg)
	constLabels := prometheus.Labels{"session_id": l.sessionID.String()}

	counter := func(name, help string, fn func() uint64) {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, func() float64 { return float64(fn()) })
	}
	gauge := func(name, help string, fn func() int) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, func() float64 { return float64(fn()) })
	}

	counter("frames_encoded_total", "Frames produced by the encoder.", l.stats.FramesEncoded.Load)
	counter("bytes_encoded_total", "Bytes produced by the encoder.", l.stats.BytesEncoded.Load)
	counter("control_dropped_total", "Control messages discarded by the encoder.", l.stats.ControlDropped.Load)
	counter("encode_errors_total", "Payloads the encoder could not frame.", l.stats.EncodeErrors.Load)
	counter("packets_decoded_total", "Packets delivered with a valid payload.", l.stats.PacketsDecoded.Load)
	counter("packets_failed_total", "Packets that failed to decode.", l.stats.PacketsFailed.Load)
	counter("payload_bytes_total", "Payload bytes delivered.", l.stats.PayloadBytesOut.Load)
	counter("sync_hits_total", "Access code matches.", func() uint64 { return l.CorrelatorStats().SyncHits })
	counter("header_failures_total", "Sync matches followed by a bad header.", func() uint64 { return l.CorrelatorStats().HeaderFailures })

	gauge("queue_length", "Raw packets waiting for the decoder.", l.queue.Len)
	gauge("blobs_free", "Blobs available in the pool.", l.pool.Free)
}
