package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"denoise-bench/internal/logger"
	"denoise-bench/internal/models"
)

type memoryEntry struct {
	session   *models.Session
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. Each entry is an immutable
// snapshot; updates build a new snapshot and swap it in under the lock.
type MemoryStore struct {
	mu            sync.RWMutex
	entries       map[string]*memoryEntry
	ttl           time.Duration
	sweepInterval time.Duration
	now           Clock
	logger        logger.Logger

	done     chan struct{}
	doneOnce sync.Once
}

// MemoryOption customises a MemoryStore
type MemoryOption func(*MemoryStore)

// WithClock replaces the wall clock, mainly for tests
func WithClock(clock Clock) MemoryOption {
	return func(s *MemoryStore) {
		s.now = clock
	}
}

// WithSweepInterval sets how often Run evicts expired sessions
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.sweepInterval = d
	}
}

// WithLogger attaches a logger for janitor activity
func WithLogger(log logger.Logger) MemoryOption {
	return func(s *MemoryStore) {
		s.logger = log
	}
}

// NewMemoryStore creates an in-memory store with the given retention window
func NewMemoryStore(ttl time.Duration, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries:       make(map[string]*memoryEntry),
		ttl:           ttl,
		sweepInterval: time.Minute,
		now:           time.Now,
		logger:        logger.Nop(),
		done:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.sweepInterval <= 0 {
		s.sweepInterval = time.Minute
	}

	return s
}

func (s *MemoryStore) Create(ctx context.Context, original *models.Image, filename string) (string, error) {
	if err := original.Validate(); err != nil {
		return "", fmt.Errorf("original image: %w", err)
	}

	now := s.now()
	id := NewID()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[id] = &memoryEntry{
		session: &models.Session{
			ID:        id,
			Filename:  filename,
			Original:  original,
			CreatedAt: now,
			UpdatedAt: now,
		},
		expiresAt: now.Add(s.ttl),
	}

	return id, nil
}

func (s *MemoryStore) lookup(id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.entries[id]
	if !exists || !s.now().Before(entry.expiresAt) {
		return nil, notFound(id)
	}

	return entry.session, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Session, error) {
	return s.lookup(id)
}

func (s *MemoryStore) GetOriginal(ctx context.Context, id string) (*models.Image, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return sess.Original, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, spec models.NoiseSpec, noisy *models.Image, results *models.ResultSet) error {
	if err := validateUpdate(noisy, results); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, exists := s.entries[id]
	if !exists || !now.Before(entry.expiresAt) {
		return notFound(id)
	}

	prev := entry.session
	s.entries[id] = &memoryEntry{
		session: &models.Session{
			ID:        prev.ID,
			Filename:  prev.Filename,
			Original:  prev.Original,
			Noise:     &spec,
			Noisy:     noisy,
			Results:   results,
			CreatedAt: prev.CreatedAt,
			UpdatedAt: now,
		},
		expiresAt: now.Add(s.ttl),
	}

	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, id)
	return nil
}

// Len returns the number of stored sessions, including expired ones not yet
// swept
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep removes expired sessions and returns how many were evicted
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	evicted := 0
	for id, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, id)
			evicted++
		}
	}

	return evicted
}

// Run sweeps expired sessions until ctx is cancelled or Shutdown is called
func (s *MemoryStore) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("SessionStore", "expired sessions evicted", map[string]interface{}{
					"evicted":   n,
					"remaining": s.Len(),
				})
			}
		}
	}
}

// Shutdown stops the janitor started by Run
func (s *MemoryStore) Shutdown() {
	s.doneOnce.Do(func() {
		close(s.done)
	})
}
