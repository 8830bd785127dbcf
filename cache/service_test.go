package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type mockCacheService struct {
	mu      sync.Mutex
	result  any
	err     error
	fetch   bool
	keys    []string
	fetched int
}

func (m *mockCacheService) GetOrFetch(ctx context.Context, key string, fetchFn func(context.Context) (any, error)) (any, error) {
	m.mu.Lock()
	m.keys = append(m.keys, key)
	m.mu.Unlock()

	if m.fetch {
		m.fetched++
		return fetchFn(ctx)
	}
	return m.result, m.err
}

func (m *mockCacheService) Delete(ctx context.Context, key string) error { return nil }

func (m *mockCacheService) DeleteByPrefix(ctx context.Context, prefix string) error { return nil }

func (m *mockCacheService) InvalidateKeys(ctx context.Context, keys []string) error { return nil }

func TestGetOrFetch_NilInterface(t *testing.T) {
	mock := &mockCacheService{}

	type finder interface{ Find() []string }

	result, err := GetOrFetch[finder](context.Background(), mock, "test-key", func(ctx context.Context) (finder, error) {
		return nil, nil
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != nil {
		t.Errorf("expected nil result, got %v", result)
	}
}

func TestGetOrFetch_NilSlice(t *testing.T) {
	mock := &mockCacheService{result: []string(nil)}

	result, err := GetOrFetch[[]string](context.Background(), mock, "test-key", func(ctx context.Context) ([]string, error) {
		return nil, nil
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != nil {
		t.Errorf("expected nil result, got %v", result)
	}
}

func TestGetOrFetch_TypeMismatch(t *testing.T) {
	mock := &mockCacheService{result: "wrong-type"}

	result, err := GetOrFetch[int](context.Background(), mock, "test-key", func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if !errors.Is(err, ErrInvalidResultType) {
		t.Errorf("expected ErrInvalidResultType, got %v", err)
	}
	if result != 0 {
		t.Errorf("expected zero value, got %v", result)
	}
}

func TestGetOrFetch_ErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	mock := &mockCacheService{err: boom}

	_, err := GetOrFetch[string](context.Background(), mock, "test-key", func(ctx context.Context) (string, error) {
		return "unused", nil
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestGetOrFetch_CallsFetchThroughService(t *testing.T) {
	mock := &mockCacheService{fetch: true}

	result, err := GetOrFetch(context.Background(), mock, "things", func(ctx context.Context) ([]string, error) {
		return []string{"1", "2"}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 2 || result[0] != "1" {
		t.Errorf("expected [1 2], got %v", result)
	}
	if mock.fetched != 1 || len(mock.keys) != 1 || mock.keys[0] != "things" {
		t.Errorf("expected one fetch under key %q, got %d fetches and keys %v", "things", mock.fetched, mock.keys)
	}
}
