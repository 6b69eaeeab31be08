package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lumeapp/agenda/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyWebhookProvider = "webhook:provider:%s"
	keySweepLock       = "sweep:lock:%s"
)

// WebhookLimiter throttles inbound gateway callbacks and hands out the
// advisory sweep lock. Disabled entirely when no redis address is set, in
// which case every call is allowed and every lock is granted.
type WebhookLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	rate  float64
	burst int
}

func NewWebhookLimiter(cfg config.Config) *WebhookLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return &WebhookLimiter{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	return &WebhookLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    cfg.WebhookRate,
		burst:   cfg.WebhookBurst,
	}
}

func (l *WebhookLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *WebhookLimiter) AllowProvider(ctx context.Context, provider string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyWebhookProvider, strings.TrimSpace(provider)), l.rate, l.burst)
}

func (l *WebhookLimiter) TryLockSweep(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keySweepLock, strings.TrimSpace(name)), ttl)
}

func (l *WebhookLimiter) ReleaseSweep(ctx context.Context, name, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keySweepLock, strings.TrimSpace(name)), token)
}
