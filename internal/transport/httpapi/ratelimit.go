package httpapi

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/tickets/internal/auth"
)

var errRateLimited = errors.New("rate limit exceeded")

// tokenBucketScript атомарно пополняет и списывает токены ведра, хранящегося в hash.
// Возвращает {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local interval_ms = tonumber(ARGV[3])
local ttl_seconds = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if tokens == nil or last_refill == nil then
	tokens = capacity
	last_refill = now_ms
end

if interval_ms > 0 then
	local elapsed = math.max(0, now_ms - last_refill)
	local intervals = math.floor(elapsed / interval_ms)
	if intervals > 0 then
		tokens = math.min(capacity, tokens + intervals)
		last_refill = last_refill + (intervals * interval_ms)
	end
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
	allowed = 1
	tokens = tokens - 1
else
	retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)

return { allowed, tokens, retry_after_ms }
`)

// RateLimitConfig: параметры token bucket.
type RateLimitConfig struct {
	Capacity       int
	RefillInterval time.Duration
	Prefix         string
}

// RateLimiter ограничивает частоту изменяющих запросов по ключу (вызывающий, маршрут).
// Ошибки redis не блокируют запросы.
type RateLimiter struct {
	client redis.Scripter
	cfg    RateLimitConfig
	logger *log.Entry
	now    func() time.Time
}

// NewRateLimiter возвращает nil, если клиент не задан: лимит выключен.
func NewRateLimiter(client redis.Scripter, cfg RateLimitConfig, logger *log.Entry) *RateLimiter {
	if client == nil {
		return nil
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 20
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "tickets:ratelimit"
	}
	if logger == nil {
		logger = log.WithField("component", "rate-limiter")
	}
	return &RateLimiter{client: client, cfg: cfg, logger: logger, now: time.Now}
}

// Middleware возвращает echo-middleware; для nil-лимитера это сквозной вызов.
func (l *RateLimiter) Middleware() echo.MiddlewareFunc {
	if l == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := l.key(c)
			ttl := l.cfg.RefillInterval * time.Duration(l.cfg.Capacity)
			args := []any{
				l.now().UnixMilli(),
				l.cfg.Capacity,
				l.cfg.RefillInterval.Milliseconds(),
				max(int64(ttl/time.Second), 1),
			}

			raw, err := tokenBucketScript.Run(c.Request().Context(), l.client, []string{key}, args...).Result()
			if err != nil {
				l.logger.WithError(err).WithField("key", key).Warn("rate limiter unavailable, allowing request")
				return next(c)
			}
			decision, err := parseDecision(raw)
			if err != nil {
				l.logger.WithError(err).WithField("key", key).Warn("unexpected rate limiter result, allowing request")
				return next(c)
			}

			header := c.Response().Header()
			header.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Capacity))
			header.Set("X-RateLimit-Remaining", strconv.FormatInt(decision.remaining, 10))
			if !decision.allowed {
				retryAfter := int(math.Ceil(float64(decision.retryAfterMs) / 1000.0))
				header.Set("Retry-After", strconv.Itoa(retryAfter))
				return fmt.Errorf("%w: retry after %ds", errRateLimited, retryAfter)
			}
			return next(c)
		}
	}
}

func (l *RateLimiter) key(c echo.Context) string {
	caller := c.RealIP()
	if identity, ok := auth.FromContext(c.Request().Context()); ok {
		caller = "user:" + identity.Username
	}
	if caller == "" {
		caller = "unknown"
	}
	return strings.Join([]string{l.cfg.Prefix, caller, c.Request().Method + " " + c.Path()}, ":")
}

type limitDecision struct {
	allowed      bool
	remaining    int64
	retryAfterMs int64
}

func parseDecision(raw any) (limitDecision, error) {
	values, ok := raw.([]any)
	if !ok || len(values) != 3 {
		return limitDecision{}, fmt.Errorf("unexpected script result %#v", raw)
	}
	allowed, ok := values[0].(int64)
	if !ok {
		return limitDecision{}, fmt.Errorf("unexpected allowed flag %#v", values[0])
	}
	remaining, _ := values[1].(int64)
	retryAfter, _ := values[2].(int64)
	return limitDecision{allowed: allowed == 1, remaining: remaining, retryAfterMs: retryAfter}, nil
}
