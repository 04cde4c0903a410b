package middleware

import (
	"sync"
	"time"

	"github.com/kataras/iris/v12"
	"golang.org/x/time/rate"
)

// KeyedLimiter 按调用方分别限流的令牌桶集合
type KeyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
	idle     time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter perMinute 为每个 key 每分钟可用次数，同时作为桶容量
func NewKeyedLimiter(perMinute int) *KeyedLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &KeyedLimiter{
		limiters: make(map[string]*entry),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    perMinute,
		idle:     10 * time.Minute,
	}
}

// Allow 检查 key 是否还有令牌
func (l *KeyedLimiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	e, ok := l.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
		// 顺带清理长时间不活跃的 key
		if len(l.limiters) > 1024 {
			for k, v := range l.limiters {
				if now.Sub(v.lastSeen) > l.idle {
					delete(l.limiters, k)
				}
			}
		}
	}
	e.lastSeen = now
	l.mu.Unlock()
	return e.limiter.AllowN(now, 1)
}

// RateLimit 限流中间件，key 由 keyFn 从请求上下文中取出
func RateLimit(l *KeyedLimiter, keyFn func(ctx iris.Context) string) iris.Handler {
	return func(ctx iris.Context) {
		if !l.Allow(keyFn(ctx)) {
			ctx.StopWithJSON(iris.StatusTooManyRequests, iris.Map{
				"code": iris.StatusTooManyRequests,
				"msg":  "too many requests, please retry later",
			})
			return
		}
		ctx.Next()
	}
}
