package stats

import (
	"context"
	"maps"
	"sync"

	"media-pool/internal/mediapool"
)

// Counters holds per-kind event counts.
type Counters = mediapool.Counters

// MemoryStore is an in-memory event store. Per-container counters live until
// the container's closed event; totals and per-type counters are kept for
// the life of the process.
type MemoryStore struct {
	mu          sync.Mutex
	total       Counters
	byContainer map[mediapool.ContainerID]Counters
	byType      map[mediapool.MediaType]Counters
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		total:       make(Counters),
		byContainer: make(map[mediapool.ContainerID]Counters),
		byType:      make(map[mediapool.MediaType]Counters),
	}
}

// Record implements mediapool.Recorder.
func (s *MemoryStore) Record(_ context.Context, ev mediapool.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total[ev.Kind]++

	if ev.Kind == mediapool.EventClosed {
		delete(s.byContainer, ev.Container)
		return nil
	}

	c, ok := s.byContainer[ev.Container]
	if !ok {
		c = make(Counters)
		s.byContainer[ev.Container] = c
	}
	c[ev.Kind]++

	if ev.Kind != mediapool.EventBlessed {
		t, ok := s.byType[ev.Type]
		if !ok {
			t = make(Counters)
			s.byType[ev.Type] = t
		}
		t[ev.Kind]++
	}
	return nil
}

// Total returns a copy of the overall counters.
func (s *MemoryStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.total)
}

// Container returns a copy of the counters of one container.
func (s *MemoryStore) Container(id mediapool.ContainerID) Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.byContainer[id])
}

// Type returns a copy of the counters of one media type.
func (s *MemoryStore) Type(t mediapool.MediaType) Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.byType[t])
}

// Containers returns how many containers currently have counters.
func (s *MemoryStore) Containers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byContainer)
}

// TotalCounts implements mediapool.EventCounters.
func (s *MemoryStore) TotalCounts(context.Context) (Counters, error) {
	return s.Total(), nil
}

// ContainerCounts implements mediapool.EventCounters.
func (s *MemoryStore) ContainerCounts(_ context.Context, id mediapool.ContainerID) (Counters, error) {
	return s.Container(id), nil
}

func copyCounters(c Counters) Counters {
	out := make(Counters, len(c))
	maps.Copy(out, c)
	return out
}
