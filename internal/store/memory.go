package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/exactauth/internal/providers"
)

// Memory is an in-process IdentityStore.
type Memory struct {
	mu     sync.RWMutex
	byKey  map[string]*Identity
	byUser map[string]*Identity
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		byKey:  make(map[string]*Identity),
		byUser: make(map[string]*Identity),
		now:    time.Now,
	}
}

func (m *Memory) Resolve(_ context.Context, profile *providers.UserProfile, provider string) (*Identity, error) {
	if err := validate(profile, provider); err != nil {
		return nil, err
	}
	key := provider + ":" + profile.ProviderID
	now := m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byKey[key]
	if !ok {
		id = &Identity{
			UserID:         uuid.NewString(),
			Provider:       provider,
			ProviderUserID: profile.ProviderID,
			CreatedAt:      now,
		}
		m.byKey[key] = id
	}
	id.Email = profile.Email
	id.DisplayName = profile.Name
	id.LastLoginAt = now
	m.byUser[id.UserID] = id

	cp := *id
	return &cp, nil
}

func (m *Memory) Get(_ context.Context, userID string) (*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byUser[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *id
	return &cp, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() {}
