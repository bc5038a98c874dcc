package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func storesUnderTest(t *testing.T) map[string]Store {
	redisStore, _ := setupTestRedis(t)
	t.Cleanup(func() { _ = redisStore.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
	}
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url"); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestSaveGetDelete(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Second)
			rec := Record{
				ID:              "1700000000000-abc",
				UserID:          "user-1",
				IsAuthenticated: true,
				Roles:           []string{"editor"},
				Permissions:     []string{"documents:write"},
				CreatedAt:       now,
				LastActivity:    now,
			}
			if err := store.Save(ctx, rec); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			got, err := store.Get(ctx, rec.ID)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got.UserID != "user-1" || !got.IsAuthenticated {
				t.Errorf("unexpected record: %+v", got)
			}
			if len(got.Roles) != 1 || got.Roles[0] != "editor" {
				t.Errorf("expected editor role, got %v", got.Roles)
			}

			if err := store.Delete(ctx, rec.ID); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if _, err := store.Get(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestTouchUpdatesLastActivity(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			start := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
			if err := store.Save(ctx, Record{ID: "s1", LastActivity: start}); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			later := start.Add(30 * time.Minute)
			if err := store.Touch(ctx, "s1", later); err != nil {
				t.Fatalf("Touch failed: %v", err)
			}
			got, err := store.Get(ctx, "s1")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if !got.LastActivity.Equal(later) {
				t.Errorf("expected last activity %v, got %v", later, got.LastActivity)
			}

			if err := store.Touch(ctx, "missing", later); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound touching missing session, got %v", err)
			}
		})
	}
}

func TestPurgeIdle(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()
			_ = store.Save(ctx, Record{ID: "stale", LastActivity: now.Add(-25 * time.Hour)})
			_ = store.Save(ctx, Record{ID: "fresh", LastActivity: now.Add(-time.Minute)})

			purged, err := store.PurgeIdle(ctx, now.Add(-MaxIdle))
			if err != nil {
				t.Fatalf("PurgeIdle failed: %v", err)
			}
			if purged != 1 {
				t.Errorf("expected 1 purged session, got %d", purged)
			}
			if _, err := store.Get(ctx, "stale"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected stale session to be gone, got %v", err)
			}
			if _, err := store.Get(ctx, "fresh"); err != nil {
				t.Errorf("expected fresh session to remain, got %v", err)
			}
		})
	}
}

func TestRedisSessionExpires(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, Record{ID: "short", LastActivity: time.Now()}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	s.FastForward(MaxIdle + time.Second)

	if _, err := store.Get(ctx, "short"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected expired session, got %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Save(ctx, Record{ID: "s1", Roles: []string{"viewer"}})

	got, _ := store.Get(ctx, "s1")
	got.Roles[0] = "admin"

	again, _ := store.Get(ctx, "s1")
	if again.Roles[0] != "viewer" {
		t.Errorf("stored record was mutated through a returned copy: %v", again.Roles)
	}
	if ids := store.IDs(); len(ids) != 1 || ids[0] != "s1" {
		t.Errorf("unexpected ids %v", ids)
	}
}
