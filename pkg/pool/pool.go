package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

const (
	DefaultSize     = 64
	DefaultCapacity = 10000
)

var (
	ErrEmpty           = errors.New("pool: no free blob")
	ErrPoolClosed      = errors.New("pool: closed")
	ErrNotHeld         = errors.New("pool: blob not held")
	ErrDoubleRelease   = fmt.Errorf("%w: released twice", ErrNotHeld)
	ErrForeignBlob     = errors.New("pool: blob belongs to another pool")
	ErrPayloadTooLarge = errors.New("pool: payload exceeds blob capacity")
)

// Blob is a fixed capacity buffer owned by a Pool. A blob is held by at most one
// caller between Acquire and Release.
type Blob struct {
	pool  *Pool
	id    int
	buf   []byte
	n     int
	inUse bool
}

func (b *Blob) ID() int {
	return b.id
}

// Bytes is valid until the blob is released.
func (b *Blob) Bytes() []byte {
	return b.buf[:b.n]
}

func (b *Blob) Len() int {
	return b.n
}

func (b *Blob) Cap() int {
	return len(b.buf)
}

// Set copies p into the blob. p is never truncated, and a released blob is not
// written.
func (b *Blob) Set(p []byte) error {
	b.pool.mu.Lock()
	inUse := b.inUse
	b.pool.mu.Unlock()
	if !inUse {
		return fmt.Errorf("%w: set on released blob %d", ErrNotHeld, b.id)
	}
	if len(p) > len(b.buf) {
		return fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(p), len(b.buf))
	}
	b.n = copy(b.buf, p)
	return nil
}

func (b *Blob) Release() error {
	return b.pool.Release(b)
}

// Pool hands out a fixed set of preallocated blobs.
type Pool struct {
	mu       sync.Mutex
	blobs    []*Blob
	free     chan *Blob
	done     chan struct{}
	closed   bool
	capacity int
}

func New(size, capacity int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	p := &Pool{
		blobs:    make([]*Blob, size),
		free:     make(chan *Blob, size),
		done:     make(chan struct{}),
		capacity: capacity,
	}
	for i := range p.blobs {
		b := &Blob{pool: p, id: i, buf: make([]byte, capacity)}
		p.blobs[i] = b
		p.free <- b
	}
	return p
}

func (p *Pool) Size() int {
	return len(p.blobs)
}

func (p *Pool) Capacity() int {
	return p.capacity
}

// Free is the number of blobs not currently held.
func (p *Pool) Free() int {
	return len(p.free)
}

// Acquire takes a free blob. With block false it returns ErrEmpty instead of waiting.
// Closing the pool wakes every waiter with ErrPoolClosed.
func (p *Pool) Acquire(ctx context.Context, block bool) (*Blob, error) {
	select {
	case <-p.done:
		return nil, ErrPoolClosed
	default:
	}

	var b *Blob
	if block {
		select {
		case <-p.done:
			return nil, ErrPoolClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		case b = <-p.free:
		}
	} else {
		select {
		case b = <-p.free:
		default:
			return nil, ErrEmpty
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.free <- b
		return nil, ErrPoolClosed
	}
	b.inUse = true
	b.n = 0
	return b, nil
}

// Release returns b to the free set. Releasing a blob that is not held is an error.
func (p *Pool) Release(b *Blob) error {
	if b == nil || b.pool != p {
		return ErrForeignBlob
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !b.inUse {
		return fmt.Errorf("%w: blob %d", ErrDoubleRelease, b.id)
	}
	b.inUse = false
	b.n = 0
	p.free <- b
	return nil
}

func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.done)
}
