package repository

import (
	"context"
	"sync"
	"time"

	"turfbook/internal/models"

	"github.com/google/uuid"
)

type memoryEntry struct {
	snap      *models.DaySnapshot
	expiresAt time.Time
}

// MemoryAvailabilityCache запасной кэш в памяти процесса для RedisAvailabilityCache.
type MemoryAvailabilityCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryAvailabilityCache(ttl time.Duration) *MemoryAvailabilityCache {
	return &MemoryAvailabilityCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (r *MemoryAvailabilityCache) GetDay(ctx context.Context, venueID int64, date time.Time) (*models.DaySnapshot, error) {
	r.mu.RLock()
	e, ok := r.entries[dayKey(venueID, date)]
	r.mu.RUnlock()
	if !ok || r.now().After(e.expiresAt) {
		return nil, nil
	}
	return e.snap, nil
}

func (r *MemoryAvailabilityCache) SetDay(ctx context.Context, snap *models.DaySnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[dayKey(snap.VenueID, snap.Date)] = memoryEntry{snap: snap, expiresAt: r.now().Add(r.ttl)}
	return nil
}

func (r *MemoryAvailabilityCache) InvalidateDay(ctx context.Context, venueID int64, date time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, dayKey(venueID, date))
	return nil
}

func (r *MemoryAvailabilityCache) InvalidateVenue(ctx context.Context, venueID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, e := range r.entries {
		if e.snap.VenueID == venueID {
			delete(r.entries, key)
		}
	}
	return nil
}

type hold struct {
	token     string
	expiresAt time.Time
}

// MemorySlotLocker держит захваты в map, истекшие заменяются при Acquire.
type MemorySlotLocker struct {
	mu    sync.Mutex
	holds map[string]hold
	now   func() time.Time
}

func NewMemorySlotLocker() *MemorySlotLocker {
	return &MemorySlotLocker{holds: make(map[string]hold), now: time.Now}
}

func (l *MemorySlotLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.holds[key]; ok && now.Before(h.expiresAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.holds[key] = hold{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (l *MemorySlotLocker) Release(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.holds[key]; ok && h.token == token {
		delete(l.holds, key)
	}
	return nil
}
