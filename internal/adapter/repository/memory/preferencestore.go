package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/strogmv/notifyd/internal/domain"
	"github.com/strogmv/notifyd/internal/port"
)

type PreferenceStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Preference
}

func NewPreferenceStore() *PreferenceStore {
	return &PreferenceStore{data: make(map[string]*domain.Preference)}
}

// Get returns nil, nil for users without a record.
func (s *PreferenceStore) Get(ctx context.Context, userID string) (*domain.Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data[userID]
	if !ok {
		return nil, nil
	}
	return clonePreference(p), nil
}

func (s *PreferenceStore) Save(ctx context.Context, p *domain.Preference) error {
	if p == nil || p.UserID == "" {
		return fmt.Errorf("preference user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[p.UserID] = clonePreference(p)
	return nil
}

func clonePreference(p *domain.Preference) *domain.Preference {
	c := *p
	if p.PerTypeOverrides != nil {
		c.PerTypeOverrides = make(map[string]map[string]bool, len(p.PerTypeOverrides))
		for k, v := range p.PerTypeOverrides {
			c.PerTypeOverrides[k] = maps.Clone(v)
		}
	}
	return &c
}

var _ port.PreferenceStore = (*PreferenceStore)(nil)
