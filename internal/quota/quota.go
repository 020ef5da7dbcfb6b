package quota

import (
	"context"
	"time"

	libredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Result is the outcome of a quota check, with enough data to populate
// the standard rate-limit response headers.
type Result struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter int64 // seconds, > 0 only when rejected
}

// Guard enforces fixed-window request quotas per (subject, endpoint).
// The counter store is pluggable: process-local for single-instance
// deployments, redis when the quota must hold across instances.
//
// When the store is unreachable the guard fails open and allows the
// request. Blocking all traffic because the counter backend is down is
// a worse failure mode than briefly exceeding a quota.
type Guard struct {
	store limiter.Store
}

// NewGuard creates a guard backed by the given counter store.
func NewGuard(store limiter.Store) *Guard {
	return &Guard{store: store}
}

// NewMemoryStore returns a process-local counter store whose expired
// windows are swept on the given interval.
func NewMemoryStore(sweepInterval time.Duration) limiter.Store {
	return memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          "quota",
		CleanUpInterval: sweepInterval,
	})
}

// NewRedisStore returns a counter store shared across service instances.
func NewRedisStore(addr string) (limiter.Store, error) {
	client := libredis.NewClient(&libredis.Options{Addr: addr})
	return sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix: "quota",
	})
}

// Check records one request against the (subject, endpoint) window and
// reports whether it is allowed. A fresh or expired window starts at
// count 1 and always allows.
func (g *Guard) Check(ctx context.Context, subject, endpoint string, limit int64, window time.Duration) Result {
	instance := limiter.New(g.store, limiter.Rate{Period: window, Limit: limit})

	lctx, err := instance.Get(ctx, subject+":"+endpoint)
	if err != nil {
		log.Warn().
			Err(err).
			Str("subject", subject).
			Str("endpoint", endpoint).
			Msg("quota store unreachable, failing open")
		return Result{Allowed: true, Limit: limit, Remaining: limit - 1}
	}

	result := Result{
		Allowed:   !lctx.Reached,
		Limit:     lctx.Limit,
		Remaining: lctx.Remaining,
		ResetAt:   time.Unix(lctx.Reset, 0),
	}

	if lctx.Reached {
		retryAfter := lctx.Reset - time.Now().Unix()
		if retryAfter < 1 {
			retryAfter = 1
		}
		result.RetryAfter = retryAfter
	}

	return result
}
