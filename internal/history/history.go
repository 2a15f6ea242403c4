// Package history keeps the bounded, most-recent-first list of identified
// tracks, optionally mirrored into a persistent repository.
package history

import (
	"context"
	"slices"
	"sync"

	"github.com/tphakala/trackid-go/internal/logger"
	"github.com/tphakala/trackid-go/internal/track"
)

const DefaultCapacity = 50

// Repository persists accepted tracks.
type Repository interface {
	SaveTrack(ctx context.Context, t track.Track) error
	RecentTracks(ctx context.Context, limit int) ([]track.Track, error)
	ClearTracks(ctx context.Context) error
}

// Store is safe for concurrent use. Entries are ordered newest first and
// the oldest entries are evicted beyond capacity.
type Store struct {
	mu       sync.RWMutex
	entries  []track.Track
	capacity int
	repo     Repository
	log      logger.Logger
}

// NewStore creates a store. repo may be nil for an in-memory history.
func NewStore(capacity int, repo Repository, log logger.Logger) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = GetLogger()
	}
	return &Store{
		entries:  make([]track.Track, 0, capacity),
		capacity: capacity,
		repo:     repo,
		log:      log,
	}
}

// Load replaces the in-memory entries with the most recent persisted tracks.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	tracks, err := s.repo.RecentTracks(ctx, s.capacity)
	if err != nil {
		return err
	}
	slices.SortStableFunc(tracks, func(a, b track.Track) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if len(tracks) > s.capacity {
		tracks = tracks[:s.capacity]
	}

	s.mu.Lock()
	s.entries = append(s.entries[:0], tracks...)
	s.mu.Unlock()

	s.log.Info("history loaded", logger.Int("entries", len(tracks)))
	return nil
}

// Add prepends t and returns the number of evicted entries. Persistence
// failures are logged and do not reject the entry.
func (s *Store) Add(ctx context.Context, t track.Track) int {
	s.mu.Lock()
	s.entries = slices.Insert(s.entries, 0, t)
	evicted := 0
	if len(s.entries) > s.capacity {
		evicted = len(s.entries) - s.capacity
		clear(s.entries[s.capacity:])
		s.entries = s.entries[:s.capacity]
	}
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.SaveTrack(ctx, t); err != nil {
			s.log.Warn("failed to persist history entry",
				logger.String("id", t.ID),
				logger.Error(err))
		}
	}
	return evicted
}

// List returns a copy of the entries, newest first.
func (s *Store) List() []track.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries)
}

// Get returns the entry with the given id.
func (s *Store) Get(id string) (track.Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.entries {
		if t.ID == id {
			return t, true
		}
	}
	return track.Track{}, false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) Capacity() int { return s.capacity }

// Clear empties the history and the repository.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	clear(s.entries)
	s.entries = s.entries[:0]
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.ClearTracks(ctx); err != nil {
			return err
		}
	}
	s.log.Info("history cleared")
	return nil
}
