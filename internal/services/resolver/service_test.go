package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mileslinfeng/MilesRI/internal/common"
)

// --- mocks ---

type mockRegistryStorage struct {
	mu       sync.Mutex
	snapshot map[string]string
	loadErr  error
	saved    map[string]string
	saves    int
}

func (m *mockRegistryStorage) LoadRegistry(_ context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.snapshot == nil {
		return nil, fmt.Errorf("registry: %w", common.ErrNotFound)
	}
	return m.snapshot, nil
}

func (m *mockRegistryStorage) SaveRegistry(_ context.Context, registry map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = registry
	m.saves++
	return nil
}

type mockRegistrySource struct {
	registry map[string]string
	err      error
	calls    atomic.Int32
}

func (m *mockRegistrySource) FetchTickerRegistry(_ context.Context) (map[string]string, error) {
	m.calls.Add(1)
	return m.registry, m.err
}

// --- tests ---

func TestResolve_FromSnapshot(t *testing.T) {
	store := &mockRegistryStorage{snapshot: map[string]string{"AAPL": "0000320193"}}
	source := &mockRegistrySource{}
	svc := NewService(store, source, common.NewSilentLogger())

	id, ok := svc.Resolve(context.Background(), "aapl")
	assert.True(t, ok)
	assert.Equal(t, "0000320193", id)
	assert.Equal(t, int32(0), source.calls.Load(), "snapshot present, no remote fetch")
}

func TestResolve_FetchesOnceAndPersists(t *testing.T) {
	store := &mockRegistryStorage{}
	source := &mockRegistrySource{registry: map[string]string{"MSFT": "0000789019", "BRK-B": "0001067983"}}
	svc := NewService(store, source, common.NewSilentLogger())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Resolve(context.Background(), "MSFT")
		}()
	}
	wg.Wait()

	id, ok := svc.Resolve(context.Background(), "BRK.B")
	assert.True(t, ok)
	assert.Equal(t, "0001067983", id)

	assert.Equal(t, int32(1), source.calls.Load())
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, source.registry, store.saved)
}

func TestResolve_UnknownSymbolIsNotAnError(t *testing.T) {
	store := &mockRegistryStorage{snapshot: map[string]string{"AAPL": "0000320193"}}
	svc := NewService(store, &mockRegistrySource{}, common.NewSilentLogger())

	id, ok := svc.Resolve(context.Background(), "ZZZZ")
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestResolve_FailedFetchStaysEmpty(t *testing.T) {
	store := &mockRegistryStorage{}
	source := &mockRegistrySource{err: errors.New("403 forbidden")}
	svc := NewService(store, source, common.NewSilentLogger())

	_, ok := svc.Resolve(context.Background(), "AAPL")
	assert.False(t, ok)
	_, ok = svc.Resolve(context.Background(), "MSFT")
	assert.False(t, ok)

	assert.Equal(t, int32(1), source.calls.Load(), "no retry within the process")
	assert.Equal(t, 0, store.saves)
	assert.Equal(t, 0, svc.Size(context.Background()))
}

func TestResolve_CorruptSnapshotFallsBackToRemote(t *testing.T) {
	store := &mockRegistryStorage{loadErr: errors.New("unexpected end of JSON input")}
	source := &mockRegistrySource{registry: map[string]string{"NVDA": "0001045810"}}
	svc := NewService(store, source, common.NewSilentLogger())

	id, ok := svc.Resolve(context.Background(), "NVDA")
	assert.True(t, ok)
	assert.Equal(t, "0001045810", id)
}

func TestResolve_CancelledCallerDoesNotPoisonTable(t *testing.T) {
	store := &mockRegistryStorage{}
	source := &mockRegistrySource{registry: map[string]string{"AAPL": "0000320193"}}
	svc := NewService(store, source, common.NewSilentLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := svc.Resolve(ctx, "AAPL")
	assert.True(t, ok)
}
