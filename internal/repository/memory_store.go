package repository

import (
	"context"
	"sync"

	"penalty-service/internal/domain/penalty"
)

// MemoryStore keeps everything in process memory. The mutex only protects the
// maps; it does not serialize read-then-write sequences made by callers.
type MemoryStore struct {
	mu      sync.RWMutex
	drivers map[string]penalty.Driver
	events  []penalty.ViolationEvent
	rewards []penalty.RewardSubmission
	nextID  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drivers: make(map[string]penalty.Driver)}
}

func (m *MemoryStore) FindDriver(_ context.Context, plateNo string) (*penalty.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.drivers[plateNo]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *MemoryStore) InsertDriver(_ context.Context, driver *penalty.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.drivers[driver.PlateNo]; ok {
		return ErrDuplicate
	}
	m.drivers[driver.PlateNo] = *driver
	return nil
}

func (m *MemoryStore) CountEvents(_ context.Context, plateNo, code string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, e := range m.events {
		if e.PlateNo == plateNo && e.Type == code {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) InsertEvent(_ context.Context, event *penalty.ViolationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	event.ID = m.nextID
	m.events = append(m.events, *event)
	return nil
}

func (m *MemoryStore) FindEventsByPlate(_ context.Context, plateNo string) ([]penalty.ViolationEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]penalty.ViolationEvent, 0)
	for _, e := range m.events {
		if e.PlateNo == plateNo {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) FindEventByReference(_ context.Context, reference string) (*penalty.ViolationEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.events {
		if e.Reference == reference {
			return &e, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) FindRewardsByPlate(_ context.Context, plateNo string) ([]penalty.RewardSubmission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]penalty.RewardSubmission, 0)
	for _, r := range m.rewards {
		if r.PlateNo == plateNo {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) InsertReward(_ context.Context, reward *penalty.RewardSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	reward.ID = m.nextID
	m.rewards = append(m.rewards, *reward)
	return nil
}
