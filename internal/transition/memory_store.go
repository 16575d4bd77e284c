package transition

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the log in process. Used for local runs without Postgres.
type MemoryStore struct {
	mu     sync.RWMutex
	rows   []Transition
	nextID int64
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) Append(_ context.Context, t Transition) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	t.ID = s.nextID
	t.CreatedAt = s.now()
	s.rows = append(s.rows, t)
	return t.ID, nil
}

func (s *MemoryStore) Query(_ context.Context, appointmentIDs []int64) ([]Transition, error) {
	if len(appointmentIDs) == 0 {
		return nil, nil
	}

	wanted := make(map[int64]struct{}, len(appointmentIDs))
	for _, id := range appointmentIDs {
		wanted[id] = struct{}{}
	}

	s.mu.RLock()
	var result []Transition
	for _, t := range s.rows {
		if _, ok := wanted[t.AppointmentID]; ok {
			result = append(result, t)
		}
	}
	s.mu.RUnlock()

	sortByAppointment(result)
	return result, nil
}

func (s *MemoryStore) AverageArrivedToSeenMinutes(_ context.Context) (float64, error) {
	return AverageWait(s.snapshot()), nil
}

func (s *MemoryStore) FirstMatchArrivedToSeenMinutes(_ context.Context) (float64, error) {
	return FirstMatchWait(s.snapshot()), nil
}

// Len reports how many rows were appended.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *MemoryStore) snapshot() []Transition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transition, len(s.rows))
	copy(out, s.rows)
	return out
}
