package correlator

import (
	"context"
	"encoding/binary"
	"sync/atomic"

	"github.com/norasector/pktlink/pkg/packet"
	"github.com/norasector/pktlink/pkg/queue"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultThreshold = 12

	headerBits = packet.HeaderLength * 8
)

type state int

const (
	stateSyncSearch state = iota
	stateHaveSync
	stateHaveHeader
)

type Stats struct {
	SyncHits       uint64 `json:"sync_hits"`
	HeaderFailures uint64 `json:"header_failures"`
	PacketsQueued  uint64 `json:"packets_queued"`
}

// Correlator watches a bit stream for the access code, reads the header that follows
// it and hands header+body to the queue as a RawPacket. Receive blocks while the queue
// is full.
type Correlator struct {
	accessCode packet.AccessCode
	threshold  int
	queue      *queue.Queue[packet.RawPacket]
	ctx        context.Context
	logger     zerolog.Logger

	state    state
	syncReg  uint64
	bitsSeen int

	// header candidate bits, and the offsets within them where a later sync matched
	pending []byte
	hits    []int

	buf      []byte
	bodyLen  int
	byteReg  byte
	bitCount int

	syncHits       atomic.Uint64
	headerFailures atomic.Uint64
	packetsQueued  atomic.Uint64
}

type Option func(c *Correlator)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Correlator) {
		c.logger = logger
	}
}

// New builds a correlator. A negative threshold selects DefaultThreshold.
func New(ctx context.Context, accessCode packet.AccessCode, threshold int, q *queue.Queue[packet.RawPacket], opts ...Option) *Correlator {
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	c := &Correlator{
		accessCode: accessCode,
		threshold:  threshold,
		queue:      q,
		ctx:        ctx,
		logger:     log.Logger,
		pending:    make([]byte, 0, headerBits),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Correlator) Threshold() int {
	return c.threshold
}

// Stats may be called from any goroutine.
func (c *Correlator) Stats() Stats {
	return Stats{
		SyncHits:       c.syncHits.Load(),
		HeaderFailures: c.headerFailures.Load(),
		PacketsQueued:  c.packetsQueued.Load(),
	}
}

func (c *Correlator) syncDetected(bit byte) bool {
	c.syncReg = c.syncReg<<1 | uint64(bit&1)
	c.bitsSeen++
	return c.bitsSeen >= c.accessCode.Len() && c.accessCode.Distance(c.syncReg) <= c.threshold
}

func (c *Correlator) enterSearch() {
	c.state = stateSyncSearch
	c.pending = c.pending[:0]
	c.hits = c.hits[:0]
}

func (c *Correlator) receiveBit(bit byte) error {
	bit &= 1
	hit := c.syncDetected(bit)

	switch c.state {
	case stateSyncSearch:
		if hit {
			c.syncHits.Add(1)
			c.state = stateHaveSync
			c.pending = c.pending[:0]
			c.hits = c.hits[:0]
		}

	case stateHaveSync:
		c.pending = append(c.pending, bit)
		if hit {
			c.hits = append(c.hits, len(c.pending))
		}
		for len(c.pending) == headerBits {
			if c.tryHeader() {
				return nil
			}
			c.headerFailures.Add(1)
			if len(c.hits) == 0 {
				c.enterSearch()
				return nil
			}
			// fall back to the next sync candidate inside the bits already read
			next := c.hits[0]
			c.pending = append(c.pending[:0], c.pending[next:]...)
			rest := c.hits[:0]
			for _, h := range c.hits[1:] {
				rest = append(rest, h-next)
			}
			c.hits = rest
		}

	case stateHaveHeader:
		c.byteReg = c.byteReg<<1 | bit
		c.bitCount++
		if c.bitCount < 8 {
			return nil
		}
		c.buf = append(c.buf, c.byteReg)
		c.byteReg = 0
		c.bitCount = 0
		if len(c.buf) == packet.HeaderLength+c.bodyLen {
			return c.deliver()
		}
	}
	return nil
}

func (c *Correlator) tryHeader() bool {
	var word uint32
	for _, b := range c.pending {
		word = word<<1 | uint32(b)
	}
	hb := make([]byte, packet.HeaderLength)
	binary.BigEndian.PutUint32(hb, word)

	h, ok := packet.ParseHeader(hb)
	if !ok {
		return false
	}

	c.bodyLen = h.BodyLength
	c.buf = make([]byte, 0, packet.HeaderLength+h.BodyLength)
	c.buf = append(c.buf, hb...)
	c.byteReg = 0
	c.bitCount = 0
	c.state = stateHaveHeader
	c.pending = c.pending[:0]
	c.hits = c.hits[:0]
	return true
}

func (c *Correlator) deliver() error {
	pkt := packet.RawPacket{Data: c.buf, Length: len(c.buf)}
	c.buf = nil
	c.enterSearch()

	if err := c.queue.Enqueue(c.ctx, pkt); err != nil {
		return err
	}
	c.packetsQueued.Add(1)
	c.logger.Debug().Int("length", pkt.Length).Msg("queued raw packet")
	return nil
}

// Receive implements frame.Assembler.
func (c *Correlator) Receive(bits []byte) error {
	for i := 0; i < len(bits); i++ {
		if err := c.receiveBit(bits[i]); err != nil {
			return err
		}
	}
	return nil
}
