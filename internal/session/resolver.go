package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/l0p7/authgate/internal/metrics"
)

// Resolver is the read-through composition of cache and identity client.
// Cache failures degrade to identity calls; identity failures propagate to
// the caller, which treats them as "not logged in".
type Resolver struct {
	cache   Cache
	client  *Client
	logger  *slog.Logger
	metrics *metrics.Recorder
	now     func() time.Time
}

// NewResolver wires the resolver. A nil cache disables caching outright.
func NewResolver(cache Cache, client *Client, logger *slog.Logger, rec *metrics.Recorder) *Resolver {
	if cache == nil {
		cache = Disabled{}
	}
	if client == nil {
		client = NewClient()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		cache:   cache,
		client:  client,
		logger:  logger.With(slog.String("agent", "session")),
		metrics: rec,
		now:     time.Now,
	}
}

// Resolve returns the principal for the token, consulting the cache first.
// A successful identity call is cached with a TTL derived from the token's
// exp claim; a cancelled request caches nothing.
func (r *Resolver) Resolve(ctx context.Context, sessionURL, token string) (*Session, error) {
	cached, err := r.cache.Get(ctx, token)
	if err != nil {
		r.metrics.ObserveCacheLookup(metrics.CacheLookupError)
		r.logger.Warn("session cache lookup failed, treating as miss", slog.Any("error", err))
	} else if cached != nil {
		r.metrics.ObserveCacheLookup(metrics.CacheLookupHit)
		return cached, nil
	} else {
		r.metrics.ObserveCacheLookup(metrics.CacheLookupMiss)
	}

	start := r.now()
	s, err := r.client.Resolve(ctx, sessionURL, token)
	if err != nil {
		r.metrics.ObserveIdentity(identityOutcome(err), r.now().Sub(start))
		return nil, err
	}
	r.metrics.ObserveIdentity(metrics.IdentityResolved, r.now().Sub(start))

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	ttl := TokenTTL(token, r.now())
	if err := r.cache.Put(ctx, token, s, ttl); err != nil {
		r.metrics.ObserveCacheStore(metrics.CacheStoreError)
		r.logger.Warn("session cache store failed", slog.Any("error", err))
	} else {
		r.metrics.ObserveCacheStore(metrics.CacheStoreStored)
	}

	return s, nil
}

// Evict drops the cached session for the token.
func (r *Resolver) Evict(ctx context.Context, token string) {
	if err := r.cache.Evict(ctx, token); err != nil {
		r.logger.Warn("session cache evict failed", slog.Any("error", err))
	}
}

// Close releases the cache backend.
func (r *Resolver) Close(ctx context.Context) error {
	return r.cache.Close(ctx)
}

func identityOutcome(err error) metrics.IdentityOutcome {
	if errors.Is(err, ErrRejected) {
		return metrics.IdentityRejected
	}
	return metrics.IdentityError
}
