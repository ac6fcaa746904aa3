package cards

import (
	"context"
	"sort"
	"sync"

	"todolist/cmd/internal/filestore"
)

// MemoryStore keeps cards in process memory. When built with NewFileStore
// every successful write is flushed to a JSON file.
type MemoryStore struct {
	mu    sync.RWMutex
	cards map[string]*Card
	file  *filestore.File[[]Card]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cards: make(map[string]*Card)}
}

// NewFileStore loads cards from path (if present) and persists changes back.
func NewFileStore(path string) (*MemoryStore, error) {
	f := filestore.New[[]Card](path)
	recs, err := f.Load()
	if err != nil {
		return nil, err
	}
	s := NewMemoryStore()
	for i := range recs {
		c := recs[i].clone()
		s.cards[c.ID] = &c
	}
	s.file = f
	return s, nil
}

func (s *MemoryStore) Insert(ctx context.Context, c Card) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c = c.clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[c.ID] = &c
	if err := s.flushLocked(); err != nil {
		delete(s.cards, c.ID)
		return err
	}
	return nil
}

func (s *MemoryStore) ListByOwner(ctx context.Context, ownerID string) ([]Card, error) {
	return s.list(ctx, func(c *Card) bool { return c.OwnerID == ownerID })
}

func (s *MemoryStore) ListPublicExcept(ctx context.Context, ownerID string) ([]Card, error) {
	return s.list(ctx, func(c *Card) bool { return c.Public && c.OwnerID != ownerID })
}

func (s *MemoryStore) list(ctx context.Context, keep func(*Card) bool) ([]Card, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]Card, 0, len(s.cards))
	for _, c := range s.cards {
		if keep(c) {
			out = append(out, c.clone())
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) UpdateOwned(ctx context.Context, id, ownerID string, p Patch) (Card, error) {
	if err := ctx.Err(); err != nil {
		return Card{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cards[id]
	if !ok || c.OwnerID != ownerID {
		return Card{}, ErrNotFound
	}
	prev := c.clone()
	p.apply(c)
	if err := s.flushLocked(); err != nil {
		*c = prev
		return Card{}, err
	}
	return c.clone(), nil
}

func (s *MemoryStore) DeleteOwned(ctx context.Context, id, ownerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cards[id]
	if !ok || c.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(s.cards, id)
	if err := s.flushLocked(); err != nil {
		s.cards[id] = c
		return err
	}
	return nil
}

func (s *MemoryStore) CompletionStats(ctx context.Context) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int)
	for _, c := range s.cards {
		if c.Public && c.OwnerHandle != "" && c.FullyCompleted() {
			stats[c.OwnerHandle]++
		}
	}
	return stats, nil
}

func (s *MemoryStore) flushLocked() error {
	if s.file == nil {
		return nil
	}
	recs := make([]Card, 0, len(s.cards))
	for _, c := range s.cards {
		recs = append(recs, *c)
	}
	sortNewestFirst(recs)
	return s.file.Save(recs)
}

// sortNewestFirst orders by created_at desc, then id desc so the order is
// deterministic for cards created within the same second.
func sortNewestFirst(cs []Card) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].CreatedAt != cs[j].CreatedAt {
			return cs[i].CreatedAt > cs[j].CreatedAt
		}
		return cs[i].ID > cs[j].ID
	})
}
