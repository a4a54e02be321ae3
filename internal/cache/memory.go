package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/voyatech/ticketcheck/models"
)

// Memory is an in-process Cache with per-entry TTL and an LRU bound.
// The zero value is not usable; construct with NewMemory.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type memoryEntry struct {
	fingerprint string
	ticket      models.ExtractedTicket
	expiresAt   time.Time
}

// NewMemory builds an in-memory cache. ttl <= 0 disables expiry,
// maxEntries <= 0 disables the LRU bound.
func NewMemory(ttl time.Duration, maxEntries int) *Memory {
	return &Memory{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (m *Memory) Get(_ context.Context, fingerprint string) (models.ExtractedTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[fingerprint]
	if !ok {
		return models.ExtractedTicket{}, models.ErrCacheMiss
	}
	ent := el.Value.(*memoryEntry)
	if m.ttl > 0 && m.now().After(ent.expiresAt) {
		m.order.Remove(el)
		delete(m.entries, fingerprint)
		return models.ExtractedTicket{}, models.ErrCacheMiss
	}
	m.order.MoveToFront(el)
	return ent.ticket, nil
}

func (m *Memory) Put(_ context.Context, fingerprint string, ticket models.ExtractedTicket) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[fingerprint]; ok {
		ent := el.Value.(*memoryEntry)
		ent.ticket = ticket
		ent.expiresAt = m.now().Add(m.ttl)
		m.order.MoveToFront(el)
		return nil
	}
	el := m.order.PushFront(&memoryEntry{
		fingerprint: fingerprint,
		ticket:      ticket,
		expiresAt:   m.now().Add(m.ttl),
	})
	m.entries[fingerprint] = el

	if m.maxEntries > 0 && m.order.Len() > m.maxEntries {
		oldest := m.order.Back()
		if oldest != nil {
			m.order.Remove(oldest)
			delete(m.entries, oldest.Value.(*memoryEntry).fingerprint)
		}
	}
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*list.Element)
	m.order.Init()
	return nil
}

// Sweep drops expired entries and reports how many were removed. The janitor
// calls this periodically so idle caches do not hold dead entries until the
// next Get touches them.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ttl <= 0 {
		return 0
	}
	now := m.now()
	removed := 0
	for el := m.order.Back(); el != nil; {
		prev := el.Prev()
		ent := el.Value.(*memoryEntry)
		if now.After(ent.expiresAt) {
			m.order.Remove(el)
			delete(m.entries, ent.fingerprint)
			removed++
		}
		el = prev
	}
	return removed
}

// Len reports the number of live entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
