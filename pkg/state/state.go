// Package state remembers the last chat that asked for a sync. Scheduled
// runs report there when no explicit target is configured.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sipeed/ordersync/pkg/logger"
)

type State struct {
	LastChannel string    `json:"last_channel,omitempty"`
	LastChatID  string    `json:"last_chat_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type Manager struct {
	path  string
	mu    sync.RWMutex
	state State
	nowFn func() time.Time
}

// NewManager loads the state file at path. A missing or unreadable file
// starts from an empty state.
func NewManager(path string) *Manager {
	m := &Manager{path: path, nowFn: time.Now}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		logger.WarnCF("state", "Ignoring unreadable state file", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
	default:
		if err := json.Unmarshal(data, &m.state); err != nil {
			logger.WarnCF("state", "Ignoring corrupt state file", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
			m.state = State{}
		}
	}
	return m
}

// SetLastTarget records channel and chatID and saves the state atomically.
func (m *Manager) SetLastTarget(channel, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.LastChannel = channel
	m.state.LastChatID = chatID
	m.state.Timestamp = m.nowFn().UTC()

	if err := m.saveAtomic(); err != nil {
		return fmt.Errorf("failed to save state atomically: %w", err)
	}
	return nil
}

// LastTarget returns the last recorded chat, if any.
func (m *Manager) LastTarget() (channel, chatID string, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.LastChannel == "" || m.state.LastChatID == "" {
		return "", "", false
	}
	return m.state.LastChannel, m.state.LastChatID, true
}

func (m *Manager) Timestamp() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Timestamp
}

// saveAtomic must be called with the lock held.
func (m *Manager) saveAtomic() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tempFile := m.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, m.path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
