// Package bus queues sync requests from chat channels and the scheduler to
// the gateway.
package bus

import (
	"context"
	"errors"
	"sync/atomic"
)

var ErrBusClosed = errors.New("message bus closed")

const defaultQueueSize = 32

// SchedulerSender is the SenderID of requests raised by the cron schedule.
const SchedulerSender = "cron"

// SyncRequest asks for one sync run. Replies go to ChatID on Channel.
type SyncRequest struct {
	Channel  string
	ChatID   string
	SenderID string
	// Trigger names what started the run, e.g. "slack:/syncorders" or "cron".
	Trigger string
}

type MessageBus struct {
	requests chan SyncRequest
	done     chan struct{}
	closed   atomic.Bool
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		requests: make(chan SyncRequest, defaultQueueSize),
		done:     make(chan struct{}),
	}
}

func (mb *MessageBus) Publish(ctx context.Context, req SyncRequest) error {
	if mb.closed.Load() {
		return ErrBusClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-mb.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	case mb.requests <- req:
		return nil
	}
}

// Consume blocks for the next request. It returns false once the bus is
// closed or ctx ends.
func (mb *MessageBus) Consume(ctx context.Context) (SyncRequest, bool) {
	select {
	case req, ok := <-mb.requests:
		return req, ok
	case <-mb.done:
		return SyncRequest{}, false
	case <-ctx.Done():
		return SyncRequest{}, false
	}
}

func (mb *MessageBus) Close() {
	if mb.closed.CompareAndSwap(false, true) {
		close(mb.done)
	}
}
