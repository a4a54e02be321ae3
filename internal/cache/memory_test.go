package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/voyatech/ticketcheck/models"
)

func ticketWithName(name string) models.ExtractedTicket {
	return models.ExtractedTicket{PassengerName: models.StringPtr(name)}
}

func TestMemoryPutGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour, 10)

	if _, err := m.Get(ctx, "fp1"); !errors.Is(err, models.ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
	if err := m.Put(ctx, "fp1", ticketWithName("DOE/John")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := m.Get(ctx, "fp1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if models.Deref(got.PassengerName) != "DOE/John" {
		t.Fatalf("unexpected ticket: %+v", got)
	}
}

func TestMemoryPutIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour, 10)

	for i := 0; i < 3; i++ {
		if err := m.Put(ctx, "fp1", ticketWithName("DOE/John")); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 entry after repeated puts, got %d", m.Len())
	}
}

func TestMemoryClear(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour, 10)

	_ = m.Put(ctx, "fp1", ticketWithName("A/Aa"))
	_ = m.Put(ctx, "fp2", ticketWithName("B/Bb"))
	if err := m.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := m.Get(ctx, "fp1"); !errors.Is(err, models.ErrCacheMiss) {
		t.Fatalf("expected miss after clear, got %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("expected empty cache, got %d entries", m.Len())
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour, 10)
	now := time.Now()
	m.now = func() time.Time { return now }

	_ = m.Put(ctx, "fp1", ticketWithName("DOE/John"))
	if _, err := m.Get(ctx, "fp1"); err != nil {
		t.Fatalf("fresh entry should hit: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := m.Get(ctx, "fp1"); !errors.Is(err, models.ErrCacheMiss) {
		t.Fatalf("expected expired entry to miss, got %v", err)
	}
}

func TestMemoryLRUBound(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour, 3)

	for i := 0; i < 4; i++ {
		_ = m.Put(ctx, fmt.Sprintf("fp%d", i), ticketWithName("X/Yz"))
	}
	if m.Len() != 3 {
		t.Fatalf("expected LRU bound of 3, got %d", m.Len())
	}
	// fp0 was the oldest and should have been evicted.
	if _, err := m.Get(ctx, "fp0"); !errors.Is(err, models.ErrCacheMiss) {
		t.Fatalf("expected oldest entry evicted, got %v", err)
	}
	if _, err := m.Get(ctx, "fp3"); err != nil {
		t.Fatalf("newest entry should survive: %v", err)
	}
}

func TestMemoryLRUTouchOnGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour, 2)

	_ = m.Put(ctx, "fp0", ticketWithName("A/Aa"))
	_ = m.Put(ctx, "fp1", ticketWithName("B/Bb"))
	if _, err := m.Get(ctx, "fp0"); err != nil {
		t.Fatalf("get fp0: %v", err)
	}
	_ = m.Put(ctx, "fp2", ticketWithName("C/Cc"))

	// fp1 is now least recently used and should be the eviction victim.
	if _, err := m.Get(ctx, "fp1"); !errors.Is(err, models.ErrCacheMiss) {
		t.Fatalf("expected fp1 evicted, got %v", err)
	}
	if _, err := m.Get(ctx, "fp0"); err != nil {
		t.Fatalf("recently used fp0 should survive: %v", err)
	}
}

func TestMemorySweep(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour, 10)
	now := time.Now()
	m.now = func() time.Time { return now }

	_ = m.Put(ctx, "old", ticketWithName("A/Aa"))
	now = now.Add(30 * time.Minute)
	_ = m.Put(ctx, "fresh", ticketWithName("B/Bb"))
	now = now.Add(45 * time.Minute)

	if removed := m.Sweep(); removed != 1 {
		t.Fatalf("expected 1 swept entry, got %d", removed)
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 surviving entry, got %d", m.Len())
	}
	if _, err := m.Get(ctx, "fresh"); err != nil {
		t.Fatalf("fresh entry should survive sweep: %v", err)
	}
}
