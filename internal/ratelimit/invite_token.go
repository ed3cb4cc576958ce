package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tenantkit/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyInviteToken = "invite:token:%s:%s"

// InviteTokenLimiter throttles unauthenticated guessing against invitation tokens.
// A nil limiter allows everything.
type InviteTokenLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewInviteTokenLimiter(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*InviteTokenLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.InviteTokenRate <= 0 || limitCfg.InviteTokenBurst <= 0 {
		return nil, errors.New("invite token rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}
	log.Info("invite token rate limiting enabled",
		zap.Float64("rate", limitCfg.InviteTokenRate),
		zap.Int("burst", limitCfg.InviteTokenBurst),
	)

	return newInviteTokenLimiter(client, limitCfg.InviteTokenRate, limitCfg.InviteTokenBurst), nil
}

func newInviteTokenLimiter(client redis.Scripter, rate float64, burst int) *InviteTokenLimiter {
	return &InviteTokenLimiter{
		bucket: NewTokenBucket(client),
		rate:   rate,
		burst:  burst,
	}
}

func (l *InviteTokenLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow consumes one token from the bucket for clientKey on endpoint.
func (l *InviteTokenLimiter) Allow(ctx context.Context, endpoint, clientKey string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, inviteTokenKey(endpoint, clientKey), l.rate, l.burst)
}

func inviteTokenKey(endpoint, clientKey string) string {
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		clientKey = "unknown"
	}
	return fmt.Sprintf(keyInviteToken, strings.TrimSpace(endpoint), clientKey)
}
