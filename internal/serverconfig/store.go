package serverconfig

import (
	"sync"
)

// Repository persists the whole guild -> config snapshot.
type Repository interface {
	// LoadAll returns stored entries with unset fields taken from defaults.
	// It may return usable entries together with an error.
	LoadAll(defaults ServerConfig) (map[string]ServerConfig, error)
	SaveAll(configs map[string]ServerConfig) error
}

// Store is the in-memory authority for guild settings.
type Store struct {
	mu       sync.RWMutex
	repo     Repository
	defaults ServerConfig
	configs  map[string]ServerConfig
	dirty    bool
}

// NewWithRepo loads the stored snapshot. On a load error the returned store
// still holds whatever entries were readable.
func NewWithRepo(repo Repository, defaults ServerConfig) (*Store, error) {
	s := &Store{repo: repo, defaults: defaults, configs: make(map[string]ServerConfig)}
	if repo == nil {
		return s, nil
	}
	loaded, err := repo.LoadAll(defaults)
	for id, c := range loaded {
		s.configs[id] = normalize(c, defaults)
	}
	return s, err
}

// Get returns the stored config for guildID.
func (s *Store) Get(guildID string) (ServerConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configs[guildID]
	return c, ok
}

// Lookup returns the stored config or the defaults.
func (s *Store) Lookup(guildID string) ServerConfig {
	if c, ok := s.Get(guildID); ok {
		return c
	}
	return s.defaults
}

// Update creates the entry from defaults when missing, applies fn and
// returns the new value.
func (s *Store) Update(guildID string, fn func(*ServerConfig)) ServerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.configs[guildID]
	if !ok {
		c = s.defaults
	}
	fn(&c)
	s.configs[guildID] = c
	s.dirty = true
	return c
}

func (s *Store) Snapshot() map[string]ServerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

func (s *Store) copyLocked() map[string]ServerConfig {
	out := make(map[string]ServerConfig, len(s.configs))
	for id, c := range s.configs {
		out[id] = c
	}
	return out
}

// Persist writes the full snapshot through the repository.
func (s *Store) Persist() error {
	if s.repo == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.SaveAll(s.copyLocked()); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Flush persists only when an update happened since the last save, so an
// untouched store never rewrites the file it was loaded from.
func (s *Store) Flush() (bool, error) {
	s.mu.RLock()
	dirty := s.dirty
	s.mu.RUnlock()
	if !dirty {
		return false, nil
	}
	return true, s.Persist()
}
