package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"dexindexer/internal/domain"
)

// Session is the unit of work of one event: entities are loaded once, mutated in
// place by the handlers and written back together by Commit.
type Session struct {
	backend Backend

	cache    map[string]domain.Entity
	missing  map[string]struct{}
	dirty    []string
	dirtySet map[string]struct{}
}

func NewSession(backend Backend) *Session {
	return &Session{
		backend:  backend,
		cache:    make(map[string]domain.Entity, 32),
		missing:  make(map[string]struct{}),
		dirtySet: make(map[string]struct{}, 32),
	}
}

// Load returns the entity of type T with the given id, or nil when it does not exist.
// Repeated loads inside one session return the same pointer.
func Load[T any, PT interface {
	*T
	domain.Entity
}](ctx context.Context, s *Session, id string) (PT, error) {
	kind := PT(new(T)).EntityKind()
	key := domain.StoreKey(kind, id)

	if e, ok := s.cache[key]; ok {
		typed, ok := e.(PT)
		if !ok {
			return nil, fmt.Errorf("%w: cached %s has type %T", ErrInvalidInput, key, e)
		}
		return typed, nil
	}
	if _, ok := s.missing[key]; ok {
		return nil, nil
	}

	raw, err := s.backend.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		s.missing[key] = struct{}{}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}

	out := PT(new(T))
	if err = json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	s.cache[key] = out

	return out, nil
}

// Save marks the entity as changed; the pointer is kept so later loads see it
func (s *Session) Save(e domain.Entity) {
	key := domain.StoreKey(e.EntityKind(), e.EntityID())
	s.cache[key] = e
	delete(s.missing, key)

	if _, ok := s.dirtySet[key]; ok {
		return
	}
	s.dirtySet[key] = struct{}{}
	s.dirty = append(s.dirty, key)
}

// Dirty returns the changed entities in first-save order
func (s *Session) Dirty() []domain.Entity {
	out := make([]domain.Entity, 0, len(s.dirty))
	for _, key := range s.dirty {
		out = append(out, s.cache[key])
	}
	return out
}

// Commit writes every changed entity in one backend call and returns them
func (s *Session) Commit(ctx context.Context) ([]domain.Entity, error) {
	if len(s.dirty) == 0 {
		return nil, nil
	}

	items := make(map[string][]byte, len(s.dirty))
	changed := s.Dirty()
	for i, e := range changed {
		b, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", s.dirty[i], err)
		}
		items[s.dirty[i]] = b
	}

	if err := s.backend.PutMany(ctx, items); err != nil {
		return nil, fmt.Errorf("failed to commit %d entities: %w", len(items), err)
	}

	s.dirty = s.dirty[:0]
	clear(s.dirtySet)

	return changed, nil
}
