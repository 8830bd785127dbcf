package cacheinfra

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		Capacity:           100,
		NumShards:          2,
		TTL:                time.Minute,
		EvictionPercentage: 10,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Capacity != 2000 {
		t.Errorf("expected Capacity 2000, got %d", cfg.Capacity)
	}
	if cfg.NumShards != 16 {
		t.Errorf("expected NumShards 16, got %d", cfg.NumShards)
	}
	if cfg.TTL != 30*time.Second {
		t.Errorf("expected TTL 30s, got %v", cfg.TTL)
	}
	if cfg.EvictionPercentage != 10 {
		t.Errorf("expected EvictionPercentage 10, got %d", cfg.EvictionPercentage)
	}
	if cfg.EarlyRefresh != nil {
		t.Error("expected early refresh to be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected default config to validate, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero capacity", mutate: func(c *Config) { c.Capacity = 0 }, field: "Capacity"},
		{name: "zero shards", mutate: func(c *Config) { c.NumShards = 0 }, field: "NumShards"},
		{name: "zero ttl", mutate: func(c *Config) { c.TTL = 0 }, field: "TTL"},
		{name: "eviction zero", mutate: func(c *Config) { c.EvictionPercentage = 0 }, field: "EvictionPercentage"},
		{name: "eviction above 100", mutate: func(c *Config) { c.EvictionPercentage = 101 }, field: "EvictionPercentage"},
		{name: "negative early refresh", mutate: func(c *Config) {
			c.EarlyRefresh = &EarlyRefreshConfig{MinAsyncRefreshTime: -time.Second}
		}, field: "EarlyRefresh"},
		{name: "inverted early refresh window", mutate: func(c *Config) {
			c.EarlyRefresh = &EarlyRefreshConfig{MinAsyncRefreshTime: 2 * time.Second, MaxAsyncRefreshTime: time.Second}
		}, field: "EarlyRefresh.MaxAsyncRefreshTime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, cfgErr.Field)
			}
		})
	}
}

func TestConfig_ToSturdycOptions(t *testing.T) {
	if n := len(testConfig().ToSturdycOptions()); n != 0 {
		t.Errorf("expected no options for minimal config, got %d", n)
	}

	cfg := testConfig()
	cfg.EarlyRefresh = &EarlyRefreshConfig{
		MinAsyncRefreshTime: time.Second,
		MaxAsyncRefreshTime: 2 * time.Second,
		SyncRefreshTime:     5 * time.Second,
		RetryBaseDelay:      10 * time.Millisecond,
	}
	cfg.EvictionInterval = time.Minute
	if n := len(cfg.ToSturdycOptions()); n != 2 {
		t.Errorf("expected 2 options, got %d", n)
	}
}

func TestConfigError_Error(t *testing.T) {
	err := &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	if want := "config error in field TTL: must be greater than 0"; err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestNewSturdycService_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Capacity = 0

	service, err := NewSturdycService(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if service != nil {
		t.Error("expected nil service on error")
	}
}

func TestSturdycService_GetOrFetch(t *testing.T) {
	service, err := NewSturdycService(testConfig())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	ctx := context.Background()

	var calls int32
	fetch := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return []string{"1", "2"}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := service.GetOrFetch(ctx, "Find::a", fetch)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ids, ok := got.([]string); !ok || len(ids) != 2 {
			t.Fatalf("expected cached []string, got %#v", got)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected a single fetch, got %d", n)
	}
}

func TestSturdycService_GetOrFetch_ErrorsAreNotCached(t *testing.T) {
	service, err := NewSturdycService(testConfig())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	ctx := context.Background()

	boom := errors.New("database unavailable")
	if _, err := service.GetOrFetch(ctx, "Find::a", func(ctx context.Context) (any, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}

	got, err := service.GetOrFetch(ctx, "Find::a", func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Errorf("expected retry to fetch again, got %v, %v", got, err)
	}
}

func TestSturdycService_GetOrFetch_NilFetch(t *testing.T) {
	service, err := NewSturdycService(testConfig())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	var cfgErr *ConfigError
	if _, err := service.GetOrFetch(context.Background(), "k", nil); !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigError, got %v", err)
	}
}

func TestSturdycService_ConcurrentReadsShareFetch(t *testing.T) {
	service, err := NewSturdycService(testConfig())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	var calls int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "value", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.GetOrFetch(context.Background(), "Find::shared", fetch); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n < 1 || n > 5 {
		t.Errorf("expected between 1 and 5 fetches, got %d", n)
	}
}

func TestSturdycService_Delete(t *testing.T) {
	service, err := NewSturdycService(testConfig())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	ctx := context.Background()

	var calls int32
	fetch := func(ctx context.Context) (any, error) {
		return atomic.AddInt32(&calls, 1), nil
	}

	_, _ = service.GetOrFetch(ctx, "Get::1", fetch)
	if err := service.Delete(ctx, "Get::1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := service.GetOrFetch(ctx, "Get::1", fetch)
	if got != int32(2) {
		t.Errorf("expected refetch after delete, got %v", got)
	}
}

func TestSturdycService_DeleteByPrefix(t *testing.T) {
	service, err := NewSturdycService(testConfig())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	ctx := context.Background()

	for _, key := range []string{"Find::a", "Find::b", "Get::1"} {
		k := key
		_, _ = service.GetOrFetch(ctx, k, func(ctx context.Context) (any, error) { return k, nil })
	}

	if err := service.DeleteByPrefix(ctx, "Find"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	keys := service.client.ScanKeys()
	sort.Strings(keys)
	if len(keys) != 1 || keys[0] != "Get::1" {
		t.Errorf("expected only Get::1 to remain, got %v", keys)
	}
}

func TestSturdycService_InvalidateKeys(t *testing.T) {
	service, err := NewSturdycService(testConfig())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	ctx := context.Background()

	for _, key := range []string{"Get::1", "Get::2", "Get::3"} {
		k := key
		_, _ = service.GetOrFetch(ctx, k, func(ctx context.Context) (any, error) { return k, nil })
	}

	if err := service.InvalidateKeys(ctx, []string{"Get::1", "Get::3", "Get::missing"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	keys := service.client.ScanKeys()
	if len(keys) != 1 || keys[0] != "Get::2" {
		t.Errorf("expected only Get::2 to remain, got %v", keys)
	}
}
