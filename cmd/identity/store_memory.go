package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"todolist/cmd/internal/filestore"
)

type userRecord struct {
	User
	PasswordHash string `json:"password_hash"`
}

// MemoryStore keeps users in process memory. When built with NewFileStore
// every successful write is flushed to a JSON file.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*userRecord
	byNorm map[string]*userRecord
	file   *filestore.File[[]userRecord]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*userRecord),
		byNorm: make(map[string]*userRecord),
	}
}

// NewFileStore loads users from path (if present) and persists changes back.
func NewFileStore(path string) (*MemoryStore, error) {
	f := filestore.New[[]userRecord](path)
	recs, err := f.Load()
	if err != nil {
		return nil, err
	}
	s := NewMemoryStore()
	for i := range recs {
		r := recs[i]
		s.byID[r.ID] = &r
		s.byNorm[r.UsernameNorm] = &r
	}
	s.file = f
	return s, nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	username := strings.TrimSpace(in.Username)
	if username == "" || in.PasswordHash == "" {
		return User{}, invalid(op, "username and password hash are required")
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	norm := NormalizeUsername(username)
	rec := &userRecord{
		User:         User{ID: id, Username: username, UsernameNorm: norm, CreatedAt: now},
		PasswordHash: in.PasswordHash,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byNorm[norm]; ok {
		return User{}, ConflictError{Op: op, Field: "username"}
	}
	s.byID[id] = rec
	s.byNorm[norm] = rec
	if err := s.flushLocked(); err != nil {
		delete(s.byID, id)
		delete(s.byNorm, norm)
		return User{}, err
	}
	return rec.User, nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUserByID", Resource: "user"}
	}
	return r.User, nil
}

func (s *MemoryStore) GetUserAuthByUsername(ctx context.Context, usernameNorm string) (UserAuth, error) {
	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byNorm[usernameNorm]
	if !ok {
		return UserAuth{}, NotFoundError{Op: "identity.GetUserAuthByUsername", Resource: "user"}
	}
	return UserAuth{User: r.User, PasswordHash: r.PasswordHash}, nil
}

func (s *MemoryStore) UsernameExists(ctx context.Context, usernameNorm string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byNorm[usernameNorm]
	return ok, nil
}

func (s *MemoryStore) flushLocked() error {
	if s.file == nil {
		return nil
	}
	recs := make([]userRecord, 0, len(s.byID))
	for _, r := range s.byID {
		recs = append(recs, *r)
	}
	return s.file.Save(recs)
}
