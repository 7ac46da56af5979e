package api

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"turfbook/internal/config"

	"golang.org/x/time/rate"
)

const defaultBurst = 5

// rateLimiter держит по корзине токенов на ключ клиента.
type rateLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rps      float64
	burst    int
}

func newRateLimiter(cfg config.APIRateLimitConfig) *rateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &rateLimiter{rps: cfg.RPS, burst: burst}
}

func (l *rateLimiter) enabled() bool {
	return l != nil && l.rps > 0
}

// Allow берет токен из корзины key. При выключенном лимите всегда true.
func (l *rateLimiter) Allow(key string) bool {
	if !l.enabled() {
		return true
	}
	return l.getLimiter(key).Allow()
}

func (l *rateLimiter) getLimiter(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		if lim, ok := v.(*rate.Limiter); ok {
			return lim
		}
	}

	lim := rate.NewLimiter(rate.Limit(l.rps), l.burst)
	actual, loaded := l.limiters.LoadOrStore(key, lim)
	if loaded {
		if actualLim, ok := actual.(*rate.Limiter); ok {
			return actualLim
		}
	}
	return lim
}

// bucketKey выбирает корзину: имя клиента для валидного ключа, иначе адрес хоста.
// Неизвестный ключ своей корзины не получает.
func bucketKey(keys *keyring, apiKey, extra, host string) string {
	if apiKey != "" {
		if client, err := keys.authenticate(apiKey, extra); err == nil {
			return "client:" + client.Name
		}
	}
	if host != "" {
		return host
	}
	return clientKeyUnknown
}

func httpClientKey(r *http.Request, keys *keyring) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = ""
	}
	return bucketKey(keys,
		strings.TrimSpace(r.Header.Get(keys.apiKeyHeader)),
		strings.TrimSpace(r.Header.Get(keys.extraHeader)),
		host)
}
