package store

import (
	"sort"
	"sync"
)

const subscriberBuffer = 100

// MemoryStore is an in-memory [Store].
//
// Subscribers receive updates via buffered channels (buffer size 100). Sends
// are non-blocking; when a subscriber's buffer is full the update is dropped
// for that subscriber only.
type MemoryStore struct {
	mu          sync.RWMutex
	records     map[string]Record
	subscribers map[chan Record]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:     make(map[string]Record),
		subscribers: make(map[chan Record]struct{}),
	}
}

// Update stores rec under rec.Resource and notifies all subscribers.
//
// A record with a lower cycle than the stored one for the same poller is
// ignored, so a late delivery never overwrites a newer result.
func (m *MemoryStore) Update(rec Record) {
	m.mu.Lock()
	if prev, ok := m.records[rec.Resource]; ok && prev.PollerID == rec.PollerID && rec.Cycle < prev.Cycle {
		m.mu.Unlock()
		return
	}
	m.records[rec.Resource] = rec
	m.mu.Unlock()

	m.notifySubscribers(rec)
}

// Get returns the stored record for resource.
func (m *MemoryStore) Get(resource string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[resource]
	return rec, ok
}

// GetAll returns a snapshot of all records, sorted by resource name.
func (m *MemoryStore) GetAll() []Record {
	m.mu.RLock()
	records := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		records = append(records, rec)
	}
	m.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].Resource < records[j].Resource
	})
	return records
}

// Subscribe creates a subscription with a buffer of 100 records.
//
// Caller must call [MemoryStore.Unsubscribe] when done.
func (m *MemoryStore) Subscribe() <-chan Record {
	ch := make(chan Record, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Record) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

func (m *MemoryStore) notifySubscribers(rec Record) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- rec:
		default:
			// slow subscriber, drop
		}
	}
}
