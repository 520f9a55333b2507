// Package tick runs periodic work that can be halted synchronously.
package tick

import (
	"sync"
	"time"
)

// Source produces ticks every d until stop is called.
type Source func(d time.Duration) (ticks <-chan time.Time, stop func())

// Real is a Source backed by time.Ticker.
func Real(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Loop is one running periodic goroutine.
type Loop struct {
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// Run calls fn on every tick until fn returns false or the loop is halted.
// A nil src means Real.
func Run(src Source, d time.Duration, fn func(time.Time) bool) *Loop {
	if src == nil {
		src = Real
	}
	ticks, stop := src(d)
	l := &Loop{quit: make(chan struct{}), done: make(chan struct{})}

	go func() {
		defer close(l.done)
		defer stop()
		for {
			select {
			case <-l.quit:
				return
			case t := <-ticks:
				// a halt racing a tick wins
				select {
				case <-l.quit:
					return
				default:
				}
				if !fn(t) {
					return
				}
			}
		}
	}()
	return l
}

// Halt stops the loop and waits for its goroutine to exit, so no tick runs
// after Halt returns. It must not be called from inside fn.
func (l *Loop) Halt() {
	if l == nil {
		return
	}
	l.once.Do(func() { close(l.quit) })
	<-l.done
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Manual is a Source driven by tests.
type Manual struct {
	ch chan time.Time
}

func NewManual() *Manual {
	return &Manual{ch: make(chan time.Time)}
}

func (m *Manual) Source(time.Duration) (<-chan time.Time, func()) {
	return m.ch, func() {}
}

// Fire delivers one tick. It reports false when no loop picked it up within 50ms.
func (m *Manual) Fire() bool {
	select {
	case m.ch <- time.Now():
		return true
	case <-time.After(50 * time.Millisecond):
		return false
	}
}
