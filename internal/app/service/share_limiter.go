package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/sifan077/PowerShare/internal/app/cache"
	"github.com/sifan077/PowerShare/internal/app/hooks"
	"go.uber.org/zap"
)

const (
	defaultSharesPerHour = 20
	shareLimitWindow     = time.Hour
	shareLimitPrefix     = "share_rl:"
)

// ShareLimiter caps accepted shares per (actor, IP) bucket within a fixed hour window.
// Counting is approximate: concurrent requests may both pass the check.
type ShareLimiter struct {
	cache  cache.Store
	bus    hooks.Bus
	limit  int
	window time.Duration
	logger *zap.Logger
}

// NewShareLimiter creates a limiter allowing limit shares per hour; limit <= 0 uses 20.
func NewShareLimiter(store cache.Store, bus hooks.Bus, limit int, logger *zap.Logger) *ShareLimiter {
	if limit <= 0 {
		limit = defaultSharesPerHour
	}
	if bus == nil {
		bus = hooks.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShareLimiter{cache: store, bus: bus, limit: limit, window: shareLimitWindow, logger: logger}
}

// BucketKey hashes actor and IP together; anonymous callers share a bucket per IP.
func BucketKey(actorID int64, ip string) string {
	sum := sha256.Sum256([]byte(strconv.FormatInt(actorID, 10) + "|" + ip))
	return shareLimitPrefix + hex.EncodeToString(sum[:16])
}

// Threshold returns the effective per-hour limit after the rate_limit_threshold filter.
func (l *ShareLimiter) Threshold(ctx context.Context, actorID int64) int {
	return hooks.FilterInt(ctx, l.bus, hooks.RateLimitThreshold, l.limit, actorID)
}

// Allow reports whether another share fits in the bucket. Counter errors fail open.
func (l *ShareLimiter) Allow(ctx context.Context, actorID int64, ip string) bool {
	threshold := l.Threshold(ctx, actorID)
	if threshold <= 0 {
		return true
	}
	n, err := l.cache.Count(ctx, BucketKey(actorID, ip))
	if err != nil {
		l.logger.Warn("share limiter unavailable, allowing request", zap.Error(err))
		return true
	}
	return n < int64(threshold)
}

// Record counts one processed share against the bucket.
func (l *ShareLimiter) Record(ctx context.Context, actorID int64, ip string) {
	if _, err := l.cache.Incr(ctx, BucketKey(actorID, ip), l.window); err != nil {
		l.logger.Warn("failed to count share against limit", zap.Error(err))
	}
}
