package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

const redisKeyPrefix = "authgate:session:"

type redisCache struct {
	client valkey.Client
}

// NewRedis connects the shared session cache. Keys are namespaced
// authgate:session:<token> and values are the JSON-serialized session with a
// native TTL set, so entries expire server-side and a restart of the gateway
// keeps warm sessions.
func NewRedis(url string) (Cache, error) {
	if url == "" {
		return nil, errors.New("session: redis url required")
	}

	option, err := valkey.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("session: redis url: %w", err)
	}
	option.AlwaysRESP2 = true
	option.ForceSingleClient = true
	option.DisableCache = true

	client, err := valkey.NewClient(option)
	if err != nil {
		return nil, fmt.Errorf("session: redis client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("session: redis ping: %w", err)
	}

	return &redisCache{client: client}, nil
}

func (c *redisCache) Get(ctx context.Context, token string) (*Session, error) {
	resp := c.client.Do(ctx, c.client.B().Get().Key(redisKeyPrefix+token).Build())
	if err := resp.Error(); err != nil {
		if errors.Is(err, valkey.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: redis get: %w", err)
	}
	payload, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("session: redis get bytes: %w", err)
	}
	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("session: redis unmarshal: %w", err)
	}
	return &s, nil
}

func (c *redisCache) Put(ctx context.Context, token string, s *Session, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: redis marshal: %w", err)
	}
	cmd := c.client.B().Set().Key(redisKeyPrefix + token).Value(string(payload)).Px(ttl).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

func (c *redisCache) Evict(ctx context.Context, token string) error {
	if err := c.client.Do(ctx, c.client.B().Del().Key(redisKeyPrefix+token).Build()).Error(); err != nil {
		return fmt.Errorf("session: redis del: %w", err)
	}
	return nil
}

func (c *redisCache) Close(context.Context) error {
	c.client.Close()
	return nil
}
