package link

import (
	"github.com/norasector/pktlink/pkg/link/config"
	"github.com/norasector/pktlink/pkg/packet"
)

type Options struct {
	Codec             packet.Options
	Threshold         int
	UseWhitenerOffset bool
	BlobPoolSize      int
	BlobCapacity      int
	QueueCapacity     int
}

func OptionsFromConfig(c *config.Config) Options {
	threshold := -1
	if c.Threshold != nil {
		threshold = *c.Threshold
	}
	return Options{
		Codec:             c.CodecOptions(),
		Threshold:         threshold,
		UseWhitenerOffset: c.UseWhitenerOffset,
		BlobPoolSize:      c.BlobPoolSize,
		BlobCapacity:      c.BlobCapacity,
		QueueCapacity:     c.QueueCapacity,
	}
}
