package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/pkg/logger"
	"golang.org/x/time/rate"
)

// idleLimiterTTL бакеты ключей, не видевших запросов дольше этого срока, удаляются
const idleLimiterTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyRateLimiter token bucket на каждый ключ API (анонимные вызовы - на IP)
type KeyRateLimiter struct {
	mutex    sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// NewKeyRateLimiter perMinute запросов в минуту с всплеском того же размера.
// perMinute <= 0 отключает ограничение.
func NewKeyRateLimiter(perMinute int) *KeyRateLimiter {
	l := &KeyRateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Inf,
		now:      time.Now,
	}
	if perMinute > 0 {
		l.limit = rate.Every(time.Minute / time.Duration(perMinute))
		l.burst = perMinute
	}
	return l
}

// Allow расходует один токен ключа
func (l *KeyRateLimiter) Allow(key string) bool {
	if l.limit == rate.Inf {
		return true
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := l.now()
	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
		l.evict(now)
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// evict вызывается под мьютексом при появлении нового ключа
func (l *KeyRateLimiter) evict(now time.Time) {
	for key, entry := range l.limiters {
		if !entry.lastSeen.IsZero() && now.Sub(entry.lastSeen) > idleLimiterTTL {
			delete(l.limiters, key)
		}
	}
}

// Middleware ставится после Authenticate: ключ берется из принципала
func (l *KeyRateLimiter) Middleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if p := PrincipalFrom(c); p.APIKeyID != nil {
			key = "key:" + p.APIKeyID.String()
		}

		if !l.Allow(key) {
			c.Header("Retry-After", strconv.Itoa(l.retryAfterSeconds()))
			abort(c, domain.E(domain.KindRateLimited, "rate limit exceeded", domain.ErrRateLimited), log)
			return
		}
		c.Next()
	}
}

func (l *KeyRateLimiter) retryAfterSeconds() int {
	seconds := int(time.Duration(float64(time.Second) / float64(l.limit)).Seconds())
	if seconds < 1 {
		return 1
	}
	return seconds
}
