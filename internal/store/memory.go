package store

import (
	"context"
	"sync"
	"time"

	"github.com/TimurManjosov/cclengine/internal/rules"
)

// MemoryStore keeps configurations in a map guarded by an RWMutex. It
// backs the bundled store type and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// NewBundledStore returns a memory store seeded with the configurations
// compiled into the binary.
func NewBundledStore() (*MemoryStore, error) {
	configs, err := rules.Bundled()
	if err != nil {
		return nil, err
	}
	m := NewMemoryStore()
	for _, c := range configs {
		if err := m.UpsertConfiguration(context.Background(), c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *MemoryStore) ListConfigurations(ctx context.Context) ([]rules.Configuration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]rules.Configuration, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Configuration)
	}
	sortConfigurations(out)
	return out, nil
}

func (m *MemoryStore) GetConfiguration(ctx context.Context, country, version string) (*rules.Configuration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[Key(country, version)]
	if !ok {
		return nil, ErrNotFound
	}
	c := e.Configuration
	return &c, nil
}

func (m *MemoryStore) UpsertConfiguration(ctx context.Context, c rules.Configuration) error {
	if err := rules.Validate(c); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[Key(c.Country, c.Version)] = Entry{Configuration: c, UpdatedAt: m.now().UTC()}
	return nil
}

func (m *MemoryStore) DeleteConfiguration(ctx context.Context, country, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, Key(country, version))
	return nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}
