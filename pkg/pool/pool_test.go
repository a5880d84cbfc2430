package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	p := New(2, 16)
	ctx := context.Background()

	a, err := p.Acquire(ctx, false)
	require.NoError(t, err)
	b, err := p.Acquire(ctx, false)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, 0, p.Free())

	_, err = p.Acquire(ctx, false)
	assert.ErrorIs(t, err, ErrEmpty)

	require.NoError(t, a.Set([]byte("hello")))
	assert.Equal(t, []byte("hello"), a.Bytes())
	require.NoError(t, a.Release())
	assert.Equal(t, 0, a.Len(), "release resets length")
	assert.Equal(t, 1, p.Free())

	require.NoError(t, p.Release(b))
	assert.Equal(t, 2, p.Free())
}

func TestDoubleRelease(t *testing.T) {
	p := New(1, 8)
	b, err := p.Acquire(context.Background(), false)
	require.NoError(t, err)
	require.NoError(t, b.Release())
	assert.ErrorIs(t, b.Release(), ErrDoubleRelease)
	assert.Equal(t, 1, p.Free(), "a double release must not duplicate the blob")
}

func TestSetOnReleasedBlob(t *testing.T) {
	p := New(1, 8)
	b, err := p.Acquire(context.Background(), false)
	require.NoError(t, err)
	require.NoError(t, b.Set([]byte("held")))
	require.NoError(t, b.Release())

	err = b.Set([]byte("stale"))
	assert.ErrorIs(t, err, ErrNotHeld)
	assert.NotErrorIs(t, err, ErrDoubleRelease)

	again, err := p.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.Same(t, b, again)
	assert.Empty(t, again.Bytes(), "a released blob is not written")
	require.NoError(t, b.Release())
	assert.ErrorIs(t, b.Release(), ErrNotHeld)
}

func TestForeignBlob(t *testing.T) {
	p1 := New(1, 8)
	p2 := New(1, 8)
	b, err := p1.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.ErrorIs(t, p2.Release(b), ErrForeignBlob)
	assert.ErrorIs(t, p2.Release(nil), ErrForeignBlob)
}

func TestSetRejectsOversize(t *testing.T) {
	p := New(1, 4)
	b, err := p.Acquire(context.Background(), false)
	require.NoError(t, err)
	require.NoError(t, b.Set([]byte("abcd")))
	assert.ErrorIs(t, b.Set([]byte("abcde")), ErrPayloadTooLarge)
	assert.Equal(t, []byte("abcd"), b.Bytes(), "rejected Set leaves contents alone")
}

func TestBlockingAcquireWaitsForRelease(t *testing.T) {
	p := New(1, 8)
	ctx := context.Background()

	first, err := p.Acquire(ctx, true)
	require.NoError(t, err)

	got := make(chan *Blob, 1)
	go func() {
		b, err := p.Acquire(ctx, true)
		if err != nil {
			t.Errorf("second acquire: %v", err)
		}
		got <- b
	}()

	select {
	case <-got:
		t.Fatal("second acquire completed before release")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Release())

	select {
	case b := <-got:
		assert.Same(t, first, b)
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed")
	}
}

func TestCloseWakesAllWaiters(t *testing.T) {
	p := New(1, 8)
	ctx := context.Background()
	_, err := p.Acquire(ctx, true)
	require.NoError(t, err)

	const waiters = 5
	var wg sync.WaitGroup
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Acquire(ctx, true)
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	p.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiters still blocked after Close")
	}
	close(errs)
	for err := range errs {
		assert.ErrorIs(t, err, ErrPoolClosed)
	}

	_, err = p.Acquire(ctx, false)
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestAcquireHonoursContext(t *testing.T) {
	p := New(1, 8)
	_, err := p.Acquire(context.Background(), true)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx, true)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConcurrentAcquireReleaseNeverSharesBlob(t *testing.T) {
	p := New(4, 8)
	ctx := context.Background()

	var mu sync.Mutex
	held := make(map[*Blob]bool)

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				b, err := p.Acquire(ctx, true)
				if err != nil {
					t.Errorf("acquire: %v", err)
					return
				}
				mu.Lock()
				if held[b] {
					t.Errorf("blob %d held twice", b.ID())
				}
				held[b] = true
				mu.Unlock()

				mu.Lock()
				delete(held, b)
				mu.Unlock()
				if err := b.Release(); err != nil {
					t.Errorf("release: %v", err)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 4, p.Free())
	assert.Equal(t, 4, p.Size())
}
