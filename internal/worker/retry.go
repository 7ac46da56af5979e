package worker

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy задает параметры экспоненциальной задержки.
// Jitter доля случайного разброса задержки, например 0.2 дает ±20%.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        float64
}

// NextDelay возвращает задержку для попытки (с 1) с ограничением сверху.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1))
	d := time.Duration(delay)
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}

// JitteredDelay это NextDelay со случайным разбросом Jitter, чтобы задачи,
// упавшие вместе, не повторялись вместе.
func (r RetryPolicy) JitteredDelay(attempt int) time.Duration {
	d := r.NextDelay(attempt)
	if r.Jitter <= 0 {
		return d
	}
	j := math.Min(r.Jitter, 1)
	factor := 1 + j*(2*rand.Float64()-1)
	if jittered := time.Duration(float64(d) * factor); jittered > 0 {
		return jittered
	}
	return d
}
