package queue

import (
	"context"
	"errors"
	"sync"
)

const DefaultCapacity = 4

var ErrQueueClosed = errors.New("queue: closed")

// Queue is a bounded FIFO. Producers block while it is full; consumers block while
// it is empty. Close wakes everyone: producers fail, consumers drain what is left and
// then fail.
type Queue[T any] struct {
	items chan T
	done  chan struct{}
	once  sync.Once
}

func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue[T]{
		items: make(chan T, capacity),
		done:  make(chan struct{}),
	}
}

func (q *Queue[T]) Len() int {
	return len(q.items)
}

func (q *Queue[T]) Cap() int {
	return cap(q.items)
}

func (q *Queue[T]) closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

func (q *Queue[T]) Enqueue(ctx context.Context, v T) error {
	if q.closed() {
		return ErrQueueClosed
	}
	select {
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	case q.items <- v:
		return nil
	}
}

// TryEnqueue reports false when the queue is full or closed.
func (q *Queue[T]) TryEnqueue(v T) bool {
	if q.closed() {
		return false
	}
	select {
	case q.items <- v:
		return true
	default:
		return false
	}
}

func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T

	select {
	case v := <-q.items:
		return v, nil
	default:
	}

	select {
	case v := <-q.items:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-q.done:
		select {
		case v := <-q.items:
			return v, nil
		default:
			return zero, ErrQueueClosed
		}
	}
}

func (q *Queue[T]) Close() {
	q.once.Do(func() {
		close(q.done)
	})
}
