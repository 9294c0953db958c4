package channels

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sipeed/ordersync/pkg/bus"
	"github.com/sipeed/ordersync/pkg/config"
	"github.com/sipeed/ordersync/pkg/logger"
)

// Manager owns the enabled chat channels.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

func NewManager() *Manager {
	return &Manager{channels: make(map[string]Channel)}
}

// NewManagerFromConfig builds Slack plus whichever optional channels have
// tokens configured.
func NewManagerFromConfig(cfg *config.Config, messageBus *bus.MessageBus) (*Manager, error) {
	m := NewManager()

	slackCh, err := NewSlackChannel(cfg.Slack, messageBus)
	if err != nil {
		return nil, err
	}
	m.Register(slackCh)

	if cfg.Discord.Enabled() {
		discordCh, err := NewDiscordChannel(cfg.Discord, messageBus)
		if err != nil {
			return nil, err
		}
		m.Register(discordCh)
	}
	if cfg.Telegram.Enabled() {
		telegramCh, err := NewTelegramChannel(cfg.Telegram, messageBus)
		if err != nil {
			return nil, err
		}
		m.Register(telegramCh)
	}
	return m, nil
}

func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// Names returns the registered channel names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartAll starts every channel. A failing channel stops the ones already
// started.
func (m *Manager) StartAll(ctx context.Context) error {
	var started []Channel
	for _, name := range m.Names() {
		ch, _ := m.Get(name)
		if err := ch.Start(ctx); err != nil {
			for _, s := range started {
				s.Stop(context.WithoutCancel(ctx))
			}
			return fmt.Errorf("failed to start %s channel: %w", name, err)
		}
		started = append(started, ch)
	}
	logger.InfoCF("channels", "Channels started", map[string]any{
		"channels": m.Names(),
	})
	return nil
}

func (m *Manager) StopAll(ctx context.Context) {
	for _, name := range m.Names() {
		ch, _ := m.Get(name)
		if err := ch.Stop(ctx); err != nil {
			logger.WarnCF("channels", "Failed to stop channel", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}
}
