// Package channels connects chat platforms to the sync gateway. Each channel
// turns its platform's trigger command into a bus.SyncRequest and knows how
// to post a message and reply to it in a thread.
package channels

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/sipeed/ordersync/pkg/bus"
	"github.com/sipeed/ordersync/pkg/logger"
)

// Channel is one chat platform. Post returns a reference that Reply uses to
// thread its message under the posted one.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
	Post(ctx context.Context, chatID, text string) (string, error)
	Reply(ctx context.Context, chatID, ref, text string) error
}

type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowList []string
	running   atomic.Bool
}

func NewBaseChannel(name string, messageBus *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		bus:       messageBus,
		allowList: allowList,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) setRunning(running bool) {
	c.running.Store(running)
}

// IsAllowed checks senderID against the allowlist. Senders may be compound
// "id|username" values; an entry matches on the id, on "@username", or on
// the full compound form.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	id, username := splitSender(senderID)
	for _, allowed := range c.allowList {
		allowed = strings.TrimSpace(allowed)
		if allowed == "" {
			continue
		}
		if name, ok := strings.CutPrefix(allowed, "@"); ok {
			if username != "" && strings.EqualFold(name, username) {
				return true
			}
			continue
		}
		if allowedID, _ := splitSender(allowed); allowedID == id {
			return true
		}
	}
	return false
}

func splitSender(sender string) (id, username string) {
	id, username, _ = strings.Cut(sender, "|")
	return id, username
}

// RequestSync publishes a sync request for chatID when senderID is allowed.
func (c *BaseChannel) RequestSync(ctx context.Context, senderID, chatID, trigger string) bool {
	if !c.IsAllowed(senderID) {
		logger.WarnCF(c.name, "Sync request rejected by allowlist", map[string]any{
			"sender_id": senderID,
			"chat_id":   chatID,
		})
		return false
	}
	if c.bus == nil {
		return false
	}

	req := bus.SyncRequest{
		Channel:  c.name,
		ChatID:   chatID,
		SenderID: senderID,
		Trigger:  trigger,
	}
	if err := c.bus.Publish(ctx, req); err != nil {
		logger.ErrorCF(c.name, "Failed to queue sync request", map[string]any{
			"chat_id": chatID,
			"error":   err.Error(),
		})
		return false
	}
	logger.InfoCF(c.name, "Sync requested", map[string]any{
		"sender_id": senderID,
		"chat_id":   chatID,
		"trigger":   trigger,
	})
	return true
}
