// Package watch provides an observable value with a single writer and any
// number of passive readers.
package watch

import (
	"context"
	"sync"
)

// Value holds the latest T. Subscribers always see the most recent value;
// intermediate values may be skipped when a subscriber falls behind.
type Value[T any] struct {
	mu   sync.Mutex
	v    T
	subs map[chan T]struct{}
}

func New[T any](initial T) *Value[T] {
	return &Value[T]{v: initial, subs: make(map[chan T]struct{})}
}

func (w *Value[T]) Get() T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.v
}

func (w *Value[T]) Set(v T) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.v = v
	w.publish()
}

// Update applies fn to the current value under the write lock and publishes the result.
func (w *Value[T]) Update(fn func(T) T) T {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.v = fn(w.v)
	w.publish()
	return w.v
}

// Subscribe returns a channel that receives the current value immediately and
// then every later value. It is closed once ctx is done.
func (w *Value[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	w.mu.Lock()
	ch <- w.v
	w.subs[ch] = struct{}{}
	w.mu.Unlock()

	go func() {
		<-ctx.Done()
		w.mu.Lock()
		delete(w.subs, ch)
		close(ch)
		w.mu.Unlock()
	}()
	return ch
}

// Subscribers reports how many subscriptions are live.
func (w *Value[T]) Subscribers() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subs)
}

// publish must be called with mu held.
func (w *Value[T]) publish() {
	for ch := range w.subs {
		select {
		case ch <- w.v:
		default:
			// drop the stale value, keep the newest
			select {
			case <-ch:
			default:
			}
			ch <- w.v
		}
	}
}

// Map forwards fn(v) for every value received on in, until in is closed or ctx is done.
func Map[T, U any](ctx context.Context, in <-chan T, fn func(T) U) <-chan U {
	out := make(chan U, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- fn(v):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
