package session

import (
	"context"
	"sync"
	"time"

	"todolist/cmd/internal/filestore"
)

// MemoryStore keeps sessions in process memory. Built with NewFileStore it
// rewrites a JSON file after every change.
type MemoryStore struct {
	mu     sync.Mutex
	byKey  map[string]*Record
	byUser map[string]map[string]struct{}
	file   *filestore.File[[]Record]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byKey:  make(map[string]*Record),
		byUser: make(map[string]map[string]struct{}),
	}
}

// NewFileStore loads sessions from path (if present) and persists changes.
func NewFileStore(path string) (*MemoryStore, error) {
	f := filestore.New[[]Record](path)
	recs, err := f.Load()
	if err != nil {
		return nil, err
	}
	s := NewMemoryStore()
	for i := range recs {
		s.indexLocked(&recs[i])
	}
	s.file = f
	return s, nil
}

func (s *MemoryStore) Put(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r := rec
	s.indexLocked(&r)
	return s.flushLocked()
}

func (s *MemoryStore) Get(ctx context.Context, key string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byKey[key]
	if !ok {
		return Record{}, ErrSessionNotFound
	}
	return *r, nil
}

func (s *MemoryStore) UpdateFields(ctx context.Context, key string, f Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byKey[key]
	if !ok || !r.Active {
		return ErrSessionNotFound
	}
	f.apply(r)
	return s.flushLocked()
}

func (s *MemoryStore) Deactivate(ctx context.Context, key string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byKey[key]
	if !ok || !r.deactivate(now) {
		return nil
	}
	return s.flushLocked()
}

func (s *MemoryStore) DeactivateAll(ctx context.Context, userID, exceptKey string, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.byUser[userID] {
		if key == exceptKey {
			continue
		}
		if s.byKey[key].deactivate(now) {
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, s.flushLocked()
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, r := range s.byKey {
		if r.ExpiresAt.After(now) {
			continue
		}
		delete(s.byKey, key)
		if keys := s.byUser[r.UserID]; keys != nil {
			delete(keys, key)
			if len(keys) == 0 {
				delete(s.byUser, r.UserID)
			}
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return n, s.flushLocked()
}

// Len returns the number of stored records, active or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}

func (s *MemoryStore) indexLocked(r *Record) {
	s.byKey[r.TokenHash] = r
	keys := s.byUser[r.UserID]
	if keys == nil {
		keys = make(map[string]struct{})
		s.byUser[r.UserID] = keys
	}
	keys[r.TokenHash] = struct{}{}
}

func (s *MemoryStore) flushLocked() error {
	if s.file == nil {
		return nil
	}
	recs := make([]Record, 0, len(s.byKey))
	for _, r := range s.byKey {
		recs = append(recs, *r)
	}
	return s.file.Save(recs)
}
