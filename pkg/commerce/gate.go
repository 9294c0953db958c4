package commerce

import (
	"context"
	"sync"
	"time"
)

const DefaultMinGap = 400 * time.Millisecond

// Gate serializes callers in arrival order and spaces dispatches so that
// each one starts at least minGap after the previous holder released it.
// One Gate is shared by every caller of the commerce API in the process.
type Gate struct {
	minGap time.Duration
	nowFn  func() time.Time

	mu   sync.Mutex
	tail chan struct{}
	// readyAt is only touched by the current holder.
	readyAt time.Time
}

func NewGate(minGap time.Duration) *Gate {
	if minGap < 0 {
		minGap = 0
	}
	tail := make(chan struct{})
	close(tail)
	return &Gate{
		minGap: minGap,
		nowFn:  time.Now,
		tail:   tail,
	}
}

func (g *Gate) MinGap() time.Duration {
	return g.minGap
}

// Acquire blocks until it is this caller's turn and the gap has elapsed.
// The returned release func must be called exactly once when the call
// completes. If ctx ends while waiting, the slot is passed on and the
// context error is returned.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	g.mu.Lock()
	prev := g.tail
	next := make(chan struct{})
	g.tail = next
	g.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.readyAt = g.nowFn().Add(g.minGap)
			close(next)
		})
	}

	select {
	case <-prev:
	case <-ctx.Done():
		// Hand the turn over once our predecessor is done so the chain
		// never stalls on an abandoned slot.
		go func() {
			<-prev
			close(next)
		}()
		return nil, ctx.Err()
	}

	if wait := g.readyAt.Sub(g.nowFn()); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			close(next)
			return nil, ctx.Err()
		}
	}

	return release, nil
}
