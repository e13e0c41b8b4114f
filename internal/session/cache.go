package session

import (
	"context"
	"time"
)

// Cache maps tokens to TTL-bounded sessions. A stale entry is
// indistinguishable from absence: Get never returns an expired session.
//
// Cache failures never fail a request: the pipeline treats a Get error as a
// miss and logs a Put error while continuing with the freshly fetched
// session.
type Cache interface {
	// Get returns the cached session or nil on a miss.
	Get(ctx context.Context, token string) (*Session, error)
	// Put upserts the session with a positive ttl.
	Put(ctx context.Context, token string, s *Session, ttl time.Duration) error
	// Evict removes the token; a missing key is success.
	Evict(ctx context.Context, token string) error
	// Close releases backend resources.
	Close(ctx context.Context) error
}

// Disabled is the no-op cache used when caching is turned off. Every lookup
// misses, so each request resolves against the identity service; outcomes
// are unchanged, only latency differs.
type Disabled struct{}

func (Disabled) Get(context.Context, string) (*Session, error) { return nil, nil }

func (Disabled) Put(context.Context, string, *Session, time.Duration) error { return nil }

func (Disabled) Evict(context.Context, string) error { return nil }

func (Disabled) Close(context.Context) error { return nil }
