// Package cron triggers sync runs on a cron schedule.
package cron

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/sipeed/ordersync/pkg/bus"
	"github.com/sipeed/ordersync/pkg/logger"
)

type TriggerFunc func(ctx context.Context, req bus.SyncRequest) error

// FallbackFunc supplies a target when none is configured, typically the
// last chat that ran a sync.
type FallbackFunc func() (channel, chatID string, ok bool)

type Scheduler struct {
	expr     string
	channel  string
	chatID   string
	trigger  TriggerFunc
	fallback FallbackFunc

	nowFn   func() time.Time
	afterFn func(d time.Duration) <-chan time.Time
}

// ParseTarget splits a "channel:chat" target such as "slack:C0123ABC".
func ParseTarget(target string) (channel, chatID string, err error) {
	channel, chatID, ok := strings.Cut(strings.TrimSpace(target), ":")
	channel = strings.ToLower(strings.TrimSpace(channel))
	chatID = strings.TrimSpace(chatID)
	if !ok || channel == "" || chatID == "" {
		return "", "", fmt.Errorf("schedule target %q must look like channel:chat_id", target)
	}
	return channel, chatID, nil
}

// New validates expr. An empty target defers to the fallback set with
// SetFallback.
func New(expr, target string, trigger TriggerFunc) (*Scheduler, error) {
	expr = strings.TrimSpace(expr)
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("invalid cron expression %q", expr)
	}
	s := &Scheduler{
		expr:    expr,
		trigger: trigger,
		nowFn:   time.Now,
		afterFn: time.After,
	}
	if strings.TrimSpace(target) != "" {
		channel, chatID, err := ParseTarget(target)
		if err != nil {
			return nil, err
		}
		s.channel, s.chatID = channel, chatID
	}
	return s, nil
}

func (s *Scheduler) SetFallback(fn FallbackFunc) {
	s.fallback = fn
}

func (s *Scheduler) Next(after time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.expr, after, false)
}

func (s *Scheduler) request() (bus.SyncRequest, bool) {
	channel, chatID := s.channel, s.chatID
	if channel == "" && s.fallback != nil {
		var ok bool
		if channel, chatID, ok = s.fallback(); !ok {
			return bus.SyncRequest{}, false
		}
	}
	if channel == "" {
		return bus.SyncRequest{}, false
	}
	return bus.SyncRequest{
		Channel:  channel,
		ChatID:   chatID,
		SenderID: bus.SchedulerSender,
		Trigger:  "cron:" + s.expr,
	}, true
}

// Run fires the trigger at every tick until ctx ends. Runs never overlap: a
// tick that passes while a run is in progress is skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	logger.InfoCF("cron", "Schedule started", map[string]any{
		"expr":    s.expr,
		"channel": s.channel,
		"chat_id": s.chatID,
	})
	for {
		now := s.nowFn()
		next, err := s.Next(now)
		if err != nil {
			return fmt.Errorf("compute next run for %q: %w", s.expr, err)
		}
		logger.DebugCF("cron", "Next scheduled run", map[string]any{
			"at": next.Format(time.RFC3339),
		})

		select {
		case <-ctx.Done():
			return nil
		case <-s.afterFn(next.Sub(now)):
		}
		if ctx.Err() != nil {
			return nil
		}

		req, ok := s.request()
		if !ok {
			logger.WarnCF("cron", "Skipping scheduled run: no chat to report to", map[string]any{
				"expr": s.expr,
			})
			continue
		}
		if err := s.trigger(ctx, req); err != nil {
			logger.WarnCF("cron", "Scheduled run failed", map[string]any{
				"error": err.Error(),
			})
		}
	}
}
