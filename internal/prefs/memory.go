package prefs

import (
	"context"
	"sync"

	"voxmail/internal/domain"
)

type Memory struct {
	mu       sync.RWMutex
	defaults Defaults
	users    map[domain.UserID]domain.Preferences
}

func NewMemory(defaults Defaults) *Memory {
	return &Memory{
		defaults: defaults,
		users:    make(map[domain.UserID]domain.Preferences),
	}
}

func (m *Memory) Get(_ context.Context, id domain.UserID) (domain.Preferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.users[id]; ok {
		return p, nil
	}
	return m.defaults.For(id), nil
}

func (m *Memory) SetLanguage(_ context.Context, id domain.UserID, lang domain.Language) error {
	m.update(id, func(p *domain.Preferences) { p.Language = lang })
	return nil
}

func (m *Memory) SetTone(_ context.Context, id domain.UserID, tone domain.Tone) error {
	m.update(id, func(p *domain.Preferences) { p.Tone = tone })
	return nil
}

// Len reports how many users have stored preferences.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}

func (m *Memory) Close() error { return nil }

func (m *Memory) update(id domain.UserID, fn func(*domain.Preferences)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.users[id]
	if !ok {
		p = m.defaults.For(id)
	}
	fn(&p)
	m.users[id] = p
}
