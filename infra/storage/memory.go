package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/paysettle/provider"
)

// MemoryStore keeps pending notifications in process memory. Used by tests and by
// STORAGE_DRIVER=memory for local runs.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]*provider.PendingNotification
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[int64]*provider.PendingNotification),
		now:  time.Now,
	}
}

func (s *MemoryStore) Insert(_ context.Context, n *provider.PendingNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n.CorrelationID = canonicalCorrelation(n.CorrelationID)
	if s.findLocked(n.CorrelationID, 0) != nil {
		return provider.ErrDuplicateCorrelation
	}

	s.nextID++
	now := s.now().UTC()
	n.ID = s.nextID
	n.CreatedAt = now
	n.UpdatedAt = now
	s.rows[n.ID] = n.Clone()
	return nil
}

func (s *MemoryStore) Update(_ context.Context, n *provider.PendingNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rows[n.ID]
	if !ok {
		return provider.ErrNotificationNotFound
	}
	n.CorrelationID = canonicalCorrelation(n.CorrelationID)
	if s.findLocked(n.CorrelationID, n.ID) != nil {
		return provider.ErrDuplicateCorrelation
	}

	n.CreatedAt = existing.CreatedAt
	n.UpdatedAt = s.now().UTC()
	s.rows[n.ID] = n.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, n *provider.PendingNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[n.ID]; !ok {
		return provider.ErrNotificationNotFound
	}
	delete(s.rows, n.ID)
	return nil
}

func (s *MemoryStore) GetAll(_ context.Context) ([]*provider.PendingNotification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*provider.PendingNotification, 0, len(s.rows))
	for _, row := range s.rows {
		all = append(all, row.Clone())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return all, nil
}

func (s *MemoryStore) GetByCorrelationID(_ context.Context, correlationID string) (*provider.PendingNotification, error) {
	id, err := uuid.Parse(correlationID)
	if err != nil {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(id.String(), 0).Clone(), nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// Len returns the number of stored records
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *MemoryStore) findLocked(correlationID string, excludeID int64) *provider.PendingNotification {
	for id, row := range s.rows {
		if id != excludeID && row.CorrelationID == correlationID {
			return row
		}
	}
	return nil
}
