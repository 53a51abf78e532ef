package http

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"chatapp/infrastructure/cache"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RateLimiter allows each author limit posts per fixed window. An author who
// goes over is refused for one full window from that point, after which the
// count starts again. A limit of zero disables it.
type RateLimiter struct {
	counters *cache.MemCache
	limit    int64
	window   time.Duration
	log      *zap.Logger
}

func NewRateLimiter(counters *cache.MemCache, limit int, window time.Duration, log *zap.Logger) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &RateLimiter{
		counters: counters,
		limit:    int64(limit),
		window:   window,
		log:      log,
	}
}

func countKey(userId uuid.UUID) string {
	return "post:" + userId.String()
}

func blockKey(userId uuid.UUID) string {
	return "post-blocked:" + userId.String()
}

// Allow counts one post for userId. When it refuses, retryAfter says how long
// the author has to wait.
func (l *RateLimiter) Allow(userId uuid.UUID) (ok bool, retryAfter time.Duration, err error) {
	if l.limit <= 0 {
		return true, 0, nil
	}

	if v, blocked := l.counters.Get(blockKey(userId)); blocked {
		if until, isTime := v.(time.Time); isTime {
			return false, time.Until(until), nil
		}
	}

	n, err := l.counters.Increment(countKey(userId), 1, l.window)
	if err != nil {
		return false, 0, err
	}
	if n <= l.limit {
		return true, 0, nil
	}

	until := time.Now().Add(l.window)
	l.counters.Set(blockKey(userId), until, l.window)
	l.counters.Delete(countKey(userId))
	l.log.Info("rate_limited", zap.String("user_id", userId.String()), zap.Time("until", until))
	return false, l.window, nil
}

// retryAfterSeconds rounds up so that clients never see Retry-After: 0.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func (l *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			writeResponse(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}

		allowed, retryAfter, err := l.Allow(claims.UserId)
		if err != nil {
			l.log.Error("rate_limit_failed", zap.String("user_id", claims.UserId.String()), zap.Error(err))
			writeResponse(w, http.StatusInternalServerError, "internal server error", nil)
			return
		}
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
			writeResponse(w, http.StatusTooManyRequests, "too many messages, slow down", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
