package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/strogmv/notifyd/internal/domain"
	"github.com/strogmv/notifyd/internal/port"
)

type TemplateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Template
}

func NewTemplateStore(seed ...*domain.Template) *TemplateStore {
	s := &TemplateStore{data: make(map[string]*domain.Template)}
	for _, t := range seed {
		s.data[t.Name] = cloneTemplate(t)
	}
	return s
}

func (s *TemplateStore) Get(ctx context.Context, name string) (*domain.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.data[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, domain.ErrTemplateNotFound)
	}
	return cloneTemplate(t), nil
}

func (s *TemplateStore) Save(ctx context.Context, t *domain.Template) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("template name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[t.Name] = cloneTemplate(t)
	return nil
}

func cloneTemplate(t *domain.Template) *domain.Template {
	c := *t
	c.RequiredVariables = slices.Clone(t.RequiredVariables)
	return &c
}

var _ port.TemplateStore = (*TemplateStore)(nil)
