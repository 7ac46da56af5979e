package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PendingExpirer освобождает неоплаченные брони с истекшим удержанием.
type PendingExpirer interface {
	ExpirePending(ctx context.Context) (int, error)
}

// ExpiryWorker периодически снимает просроченные ожидающие брони.
type ExpiryWorker struct {
	expirer  PendingExpirer
	interval time.Duration
	logger   *zerolog.Logger
}

func NewExpiryWorker(expirer PendingExpirer, interval time.Duration, logger *zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ExpiryWorker{expirer: expirer, interval: interval, logger: logger}
}

// Start делает проход сразу и затем каждые interval, пока ctx не завершён.
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.logger.Info().Dur("interval", w.interval).Msg("expiry worker started")
	defer w.logger.Info().Msg("expiry worker stopped")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	n, err := w.expirer.ExpirePending(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("expire pending bookings")
		}
		return
	}
	if n > 0 {
		w.logger.Info().Int("count", n).Msg("pending bookings expired")
	}
}
