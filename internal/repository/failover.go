package repository

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"turfbook/internal/domain"
	"turfbook/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// failover помнит, считается ли основной бэкенд недоступным.
// Через recoveryInterval основной пробуется снова.
type failover struct {
	name      string
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func (f *failover) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, f.lastCheck.Load())) > recoveryInterval
}

func (f *failover) report(err error) {
	if err == nil {
		if f.isDown.Swap(false) {
			f.logger.Info().Str("backend", f.name).Msg("Primary repository recovered")
		}
		return
	}
	if !f.isDown.Swap(true) {
		f.logger.Error().Err(err).Str("backend", f.name).Msg("Primary repository failed, falling back to memory")
	}
	f.lastCheck.Store(time.Now().UnixNano())
}

func newFailover(name string, logger *zerolog.Logger) *failover {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &failover{name: name, logger: logger}
}

type FailoverAvailabilityCache struct {
	*failover
	primary  domain.AvailabilityCache
	fallback domain.AvailabilityCache
}

func NewFailoverAvailabilityCache(primary, fallback domain.AvailabilityCache, logger *zerolog.Logger) *FailoverAvailabilityCache {
	return &FailoverAvailabilityCache{
		failover: newFailover("availability_cache", logger),
		primary:  primary,
		fallback: fallback,
	}
}

func (r *FailoverAvailabilityCache) GetDay(ctx context.Context, venueID int64, date time.Time) (*models.DaySnapshot, error) {
	if r.usePrimary() {
		snap, err := r.primary.GetDay(ctx, venueID, date)
		r.report(err)
		if err == nil {
			return snap, nil
		}
	}
	return r.fallback.GetDay(ctx, venueID, date)
}

func (r *FailoverAvailabilityCache) SetDay(ctx context.Context, snap *models.DaySnapshot) error {
	if r.usePrimary() {
		err := r.primary.SetDay(ctx, snap)
		r.report(err)
		if err == nil {
			return nil
		}
	}
	return r.fallback.SetDay(ctx, snap)
}

// InvalidateDay чистит оба слоя: в запасном могли остаться записи, пока основной лежал.
func (r *FailoverAvailabilityCache) InvalidateDay(ctx context.Context, venueID int64, date time.Time) error {
	if r.usePrimary() {
		r.report(r.primary.InvalidateDay(ctx, venueID, date))
	}
	return r.fallback.InvalidateDay(ctx, venueID, date)
}

func (r *FailoverAvailabilityCache) InvalidateVenue(ctx context.Context, venueID int64) error {
	if r.usePrimary() {
		r.report(r.primary.InvalidateVenue(ctx, venueID))
	}
	return r.fallback.InvalidateVenue(ctx, venueID)
}

// FailoverSlotLocker запоминает, какой бэкенд выдал токен, чтобы Release ушел туда же.
type FailoverSlotLocker struct {
	*failover
	primary  domain.SlotLocker
	fallback domain.SlotLocker
}

func NewFailoverSlotLocker(primary, fallback domain.SlotLocker, logger *zerolog.Logger) *FailoverSlotLocker {
	return &FailoverSlotLocker{
		failover: newFailover("slot_locker", logger),
		primary:  primary,
		fallback: fallback,
	}
}

const fallbackTokenPrefix = "mem:"

func (l *FailoverSlotLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l.usePrimary() {
		token, ok, err := l.primary.Acquire(ctx, key, ttl)
		l.report(err)
		if err == nil {
			return token, ok, nil
		}
	}
	token, ok, err := l.fallback.Acquire(ctx, key, ttl)
	if !ok || err != nil {
		return "", ok, err
	}
	return fallbackTokenPrefix + token, true, nil
}

func (l *FailoverSlotLocker) Release(ctx context.Context, key, token string) error {
	if memToken, ok := strings.CutPrefix(token, fallbackTokenPrefix); ok {
		return l.fallback.Release(ctx, key, memToken)
	}
	err := l.primary.Release(ctx, key, token)
	l.report(err)
	return err
}
