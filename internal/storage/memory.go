package storage

import (
	"context"
	"sync"
	"time"

	"drumbot/internal/domain"
)

type subKey struct{ owner, dest int64 }

// Memory is an in-process Store. Data is lost on exit.
type Memory struct {
	mu        sync.RWMutex
	subs      map[subKey]domain.Subscription
	announced map[int64]string
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{subs: map[subKey]domain.Subscription{}, announced: map[int64]string{}}
}

func (m *Memory) Upsert(_ context.Context, sub domain.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now()
	}
	m.mu.Lock()
	m.subs[subKey{sub.OwnerID, sub.DestinationID}] = sub
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, ownerID, destID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := subKey{ownerID, destID}
	_, ok := m.subs[k]
	delete(m.subs, k)
	return ok, nil
}

func (m *Memory) DeleteByDestination(_ context.Context, destID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.subs {
		if k.dest == destID {
			delete(m.subs, k)
			n++
		}
	}
	delete(m.announced, destID)
	return n, nil
}

func (m *Memory) Get(_ context.Context, ownerID, destID int64) (domain.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subs[subKey{ownerID, destID}]
	if !ok {
		return domain.Subscription{}, domain.ErrNotFound
	}
	return sub, nil
}

func (m *Memory) ListByOwner(_ context.Context, ownerID int64) ([]domain.Subscription, error) {
	return m.filter(func(s domain.Subscription) bool { return s.OwnerID == ownerID }), nil
}

func (m *Memory) ListAll(_ context.Context) ([]domain.Subscription, error) {
	return m.filter(func(domain.Subscription) bool { return true }), nil
}

func (m *Memory) ListByPolicy(_ context.Context, p domain.Policy) ([]domain.Subscription, error) {
	return m.filter(func(s domain.Subscription) bool { return s.Policy == p }), nil
}

func (m *Memory) filter(keep func(domain.Subscription) bool) []domain.Subscription {
	m.mu.RLock()
	var out []domain.Subscription
	for _, s := range m.subs {
		if keep(s) {
			out = append(out, s)
		}
	}
	m.mu.RUnlock()
	sortSubs(out)
	return out
}

func (m *Memory) PutAnnounced(_ context.Context, destID int64, filePath string) error {
	m.mu.Lock()
	m.announced[destID] = filePath
	m.mu.Unlock()
	return nil
}

func (m *Memory) LoadAnnounced(_ context.Context) (map[int64]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]string, len(m.announced))
	for k, v := range m.announced {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
