package history

import (
	"sync"
	"time"
)

// Manager remembers per-channel clear points. Scrollback at or before a
// channel's clear point is not replayed to the model.
type Manager struct {
	mu      sync.RWMutex
	now     func() time.Time
	cleared map[string]time.Time
}

func NewManager() *Manager {
	return &Manager{now: time.Now, cleared: make(map[string]time.Time)}
}

// Reset marks everything posted in channelID so far as forgotten.
func (m *Manager) Reset(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared[channelID] = m.now()
}

func (m *Manager) ClearedAt(channelID string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.cleared[channelID]
	return t, ok
}

// Visible drops messages posted at or before the channel's clear point.
func (m *Manager) Visible(channelID string, msgs []ChannelMessage) []ChannelMessage {
	cut, ok := m.ClearedAt(channelID)
	if !ok {
		return msgs
	}
	out := make([]ChannelMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Timestamp.After(cut) {
			out = append(out, msg)
		}
	}
	return out
}
