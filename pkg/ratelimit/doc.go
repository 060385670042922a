// Package ratelimit throttles outbound item deliveries.
//
// TokenBucket is backed by golang.org/x/time/rate. A bucket built with
// NewTokenBucket(n, period) starts full and refills one token every
// period/n. PerMinute(0) yields Unlimited, which never blocks.
//
//	limiter := ratelimit.PerMinute(cfg.Delivery.RequestsPerMinute)
//	if err := limiter.Wait(ctx); err != nil {
//		return err
//	}
package ratelimit
