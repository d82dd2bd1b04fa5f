package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memLock struct {
	token     string
	expiresAt time.Time
}

type memoryLockStore struct {
	mu    sync.Mutex
	locks map[string]memLock
	now   func() time.Time
}

func NewMemoryLockStore() LockStore {
	return &memoryLockStore{
		locks: make(map[string]memLock),
		now:   time.Now,
	}
}

func (s *memoryLockStore) TryLock(_ context.Context, key string, ttl time.Duration) (Unlock, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if held, ok := s.locks[key]; ok && now.Before(held.expiresAt) {
		return nil, false, nil
	}

	token := uuid.NewString()
	s.locks[key] = memLock{token: token, expiresAt: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if held, ok := s.locks[key]; ok && held.token == token {
				delete(s.locks, key)
			}
		})
	}, true, nil
}
