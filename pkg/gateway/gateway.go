// Package gateway turns sync requests from chat channels and the scheduler
// into sync runs and reports the outcome back in the requesting chat.
package gateway

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sipeed/ordersync/pkg/bus"
	"github.com/sipeed/ordersync/pkg/channels"
	"github.com/sipeed/ordersync/pkg/logger"
	"github.com/sipeed/ordersync/pkg/syncer"
)

const (
	StartingNotice = ":arrows_counterclockwise: Starting order sync…"

	replyTimeout = 15 * time.Second
)

type Runner interface {
	Run(ctx context.Context, trigger string) (*syncer.Result, error)
}

type ChannelLookup interface {
	Get(name string) (channels.Channel, bool)
}

// TargetRecorder remembers the chat of the last chat-triggered run.
type TargetRecorder interface {
	SetLastTarget(channel, chatID string) error
}

type Gateway struct {
	bus      *bus.MessageBus
	channels ChannelLookup
	runner   Runner
	recorder TargetRecorder
	wg       sync.WaitGroup
}

func New(messageBus *bus.MessageBus, lookup ChannelLookup, runner Runner) *Gateway {
	return &Gateway{
		bus:      messageBus,
		channels: lookup,
		runner:   runner,
	}
}

func (g *Gateway) SetTargetRecorder(r TargetRecorder) {
	g.recorder = r
}

// Run dispatches queued requests, one goroutine per run, until the bus is
// closed or ctx ends. It waits for in-flight runs before returning.
func (g *Gateway) Run(ctx context.Context) error {
	defer g.wg.Wait()
	for {
		req, ok := g.bus.Consume(ctx)
		if !ok {
			return nil
		}
		g.wg.Add(1)
		go func(req bus.SyncRequest) {
			defer g.wg.Done()
			g.Trigger(ctx, req)
		}(req)
	}
}

// Trigger runs one sync for req and posts the starting notice, then the
// summary or failure as a threaded reply. The returned error is the run's.
func (g *Gateway) Trigger(ctx context.Context, req bus.SyncRequest) error {
	ch, ok := g.channels.Get(req.Channel)
	if !ok {
		logger.ErrorCF("gateway", "Sync request for unknown channel", map[string]any{
			"channel": req.Channel,
			"chat_id": req.ChatID,
		})
		return fmt.Errorf("unknown channel %q", req.Channel)
	}

	fields := map[string]any{
		"channel":   req.Channel,
		"chat_id":   req.ChatID,
		"sender_id": req.SenderID,
		"trigger":   req.Trigger,
	}
	logger.InfoCF("gateway", "Sync triggered", fields)
	g.recordTarget(req)

	ref, err := ch.Post(ctx, req.ChatID, StartingNotice)
	if err != nil {
		logger.WarnCF("gateway", "Failed to post starting notice", map[string]any{
			"channel": req.Channel,
			"chat_id": req.ChatID,
			"error":   err.Error(),
		})
	}

	result, runErr := g.runSafely(ctx, req.Trigger)
	text := ""
	if runErr != nil {
		text = "Order sync failed: " + runErr.Error()
		logger.ErrorCF("gateway", "Sync run failed", map[string]any{
			"channel": req.Channel,
			"chat_id": req.ChatID,
			"error":   runErr.Error(),
		})
	} else {
		text = result.Summary()
	}

	replyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replyTimeout)
	defer cancel()
	if err := ch.Reply(replyCtx, req.ChatID, ref, text); err != nil {
		logger.ErrorCF("gateway", "Failed to post sync summary", map[string]any{
			"channel": req.Channel,
			"chat_id": req.ChatID,
			"error":   err.Error(),
		})
	}
	return runErr
}

func (g *Gateway) runSafely(ctx context.Context, trigger string) (result *syncer.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("gateway", "Sync run panicked", map[string]any{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			})
			result, err = nil, fmt.Errorf("internal error: %v", r)
		}
	}()
	return g.runner.Run(ctx, trigger)
}

func (g *Gateway) recordTarget(req bus.SyncRequest) {
	if g.recorder == nil || req.SenderID == bus.SchedulerSender {
		return
	}
	if err := g.recorder.SetLastTarget(req.Channel, req.ChatID); err != nil {
		logger.WarnCF("gateway", "Failed to record last chat", map[string]any{
			"error": err.Error(),
		})
	}
}
