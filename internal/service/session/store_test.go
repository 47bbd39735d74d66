package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/hirestream/backend/internal/model/chat"
	"github.com/zhouzirui/hirestream/backend/internal/service/session"
)

func TestMemoryStorePutAndGet(t *testing.T) {
	store := session.NewMemoryStore(session.Options{})
	ctx := context.Background()

	created, err := store.Put(ctx, chat.Payload{Prompt: "Write a backend engineer job post"})
	if err != nil {
		t.Fatalf("Put err: %v", err)
	}

	got, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if got.Payload.Prompt != "Write a backend engineer job post" {
		t.Fatalf("unexpected prompt: %q", got.Payload.Prompt)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be set")
	}
}

func TestMemoryStoreRejectsEmptyPayload(t *testing.T) {
	store := session.NewMemoryStore(session.Options{})
	ctx := context.Background()

	cases := []chat.Payload{
		{},
		{Prompt: "   "},
		{Messages: []chat.Message{{Role: chat.RoleUser, Content: ""}}},
	}
	for _, payload := range cases {
		if _, err := store.Put(ctx, payload); !errors.Is(err, session.ErrEmptyPayload) {
			t.Fatalf("expected ErrEmptyPayload for %+v, got %v", payload, err)
		}
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d", store.Len())
	}
}

func TestMemoryStoreIssuesUniqueIDs(t *testing.T) {
	store := session.NewMemoryStore(session.Options{})
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		created, err := store.Put(ctx, chat.Payload{Prompt: "p"})
		if err != nil {
			t.Fatalf("Put err: %v", err)
		}
		if _, dup := seen[created.ID]; dup {
			t.Fatalf("duplicate id %s", created.ID)
		}
		seen[created.ID] = struct{}{}
	}
}

func TestMemoryStoreTakeOnce(t *testing.T) {
	store := session.NewMemoryStore(session.Options{})
	ctx := context.Background()

	first, _ := store.Put(ctx, chat.Payload{Prompt: "first"})
	second, _ := store.Put(ctx, chat.Payload{Prompt: "second"})

	if _, err := store.Take(ctx, first.ID); err != nil {
		t.Fatalf("Take first err: %v", err)
	}
	if _, err := store.Take(ctx, first.ID); !errors.Is(err, session.ErrConsumed) {
		t.Fatalf("expected ErrConsumed on second take, got %v", err)
	}
	if _, err := store.Take(ctx, second.ID); err != nil {
		t.Fatalf("Take second err: %v", err)
	}
	// an older id must stay consumed after a different session was streamed
	if _, err := store.Take(ctx, first.ID); !errors.Is(err, session.ErrConsumed) {
		t.Fatalf("expected stale id to stay consumed, got %v", err)
	}
	if _, err := store.Get(ctx, first.ID); !errors.Is(err, session.ErrConsumed) {
		t.Fatalf("expected Get on consumed id to fail, got %v", err)
	}
}

func TestMemoryStoreTakeConcurrent(t *testing.T) {
	store := session.NewMemoryStore(session.Options{})
	ctx := context.Background()
	created, _ := store.Put(ctx, chat.Payload{Prompt: "race"})

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  int
		total = 32
	)
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Take(ctx, created.ID); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestMemoryStoreRelease(t *testing.T) {
	store := session.NewMemoryStore(session.Options{})
	ctx := context.Background()
	created, _ := store.Put(ctx, chat.Payload{Prompt: "retry me"})

	if _, err := store.Take(ctx, created.ID); err != nil {
		t.Fatalf("Take err: %v", err)
	}
	if err := store.Release(ctx, created.ID); err != nil {
		t.Fatalf("Release err: %v", err)
	}
	if _, err := store.Take(ctx, created.ID); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if err := store.Release(ctx, "missing"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreGetNotFound(t *testing.T) {
	store := session.NewMemoryStore(session.Options{})
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreReset(t *testing.T) {
	store := session.NewMemoryStore(session.Options{})
	ctx := context.Background()

	a, _ := store.Put(ctx, chat.Payload{Prompt: "a"})
	b, _ := store.Put(ctx, chat.Payload{Prompt: "b"})

	if removed := store.Reset(ctx); removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	for _, id := range []string{a.ID, b.ID} {
		if _, err := store.Get(ctx, id); !errors.Is(err, session.ErrNotFound) {
			t.Fatalf("expected %s gone after reset, got %v", id, err)
		}
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := session.NewMemoryStore(session.Options{TTL: time.Hour, SweepInterval: time.Hour})
	defer store.Close()
	ctx := context.Background()

	created, _ := store.Put(ctx, chat.Payload{Prompt: "old"})

	session.SetClock(store, func() time.Time { return created.CreatedAt.Add(2 * time.Hour) })

	if _, err := store.Take(ctx, created.ID); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected expired session to be missing, got %v", err)
	}
	if removed := store.Sweep(); removed != 1 {
		t.Fatalf("expected sweep to remove 1, got %d", removed)
	}
	store.Close()
}
