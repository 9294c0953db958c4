package commerce

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestGateSpacesConsecutiveCalls(t *testing.T) {
	const gap = 30 * time.Millisecond
	g := NewGate(gap)
	ctx := context.Background()

	var starts []time.Time
	for i := 0; i < 6; i++ {
		release, err := g.Acquire(ctx)
		if err != nil {
			t.Fatalf("Acquire #%d: %v", i, err)
		}
		starts = append(starts, time.Now())
		release()
	}

	for i := 1; i < len(starts); i++ {
		if d := starts[i].Sub(starts[i-1]); d < gap {
			t.Fatalf("dispatch %d started %v after previous, want >= %v", i, d, gap)
		}
	}
}

func TestGateFirstCallIsImmediate(t *testing.T) {
	g := NewGate(time.Second)
	start := time.Now()
	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	release()
	if d := time.Since(start); d > 200*time.Millisecond {
		t.Fatalf("first acquire took %v", d)
	}
}

func TestGateServesCallersInArrivalOrder(t *testing.T) {
	g := NewGate(0)
	ctx := context.Background()

	hold, err := g.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			release, err := g.Acquire(ctx)
			if err != nil {
				t.Errorf("Acquire %d: %v", id, err)
				return
			}
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			release()
		}(i)
		// Let each goroutine enqueue before the next one starts.
		time.Sleep(20 * time.Millisecond)
	}

	hold()
	wg.Wait()

	for i, id := range order {
		if id != i {
			t.Fatalf("order = %v, want 0..3 in sequence", order)
		}
	}
}

func TestGateCancelledWaiterDoesNotStallQueue(t *testing.T) {
	g := NewGate(0)
	hold, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := g.Acquire(ctx)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled Acquire error = %v", err)
	}

	hold()

	done := make(chan struct{})
	go func() {
		release, err := g.Acquire(context.Background())
		if err == nil {
			release()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queue stalled behind cancelled waiter")
	}
}

func TestGateReleaseIsIdempotent(t *testing.T) {
	g := NewGate(0)
	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	release()
	release()
}
