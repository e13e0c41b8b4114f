package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// identityCookieName is fixed by the external identity service's contract
// and is independent of the gateway's configured request-cookie name.
const identityCookieName = "session"

var (
	// ErrRejected marks a non-2xx answer from the identity service.
	ErrRejected = errors.New("session: identity service rejected token")

	// ErrUnreachable marks transport failures reaching the identity service.
	ErrUnreachable = errors.New("session: identity service unreachable")
)

// Client resolves tokens against the external identity endpoint. It is
// stateless across calls and safe for concurrent use.
type Client struct {
	httpClient *http.Client
}

// NewClient builds a client with the fixed 10 second identity deadline.
func NewClient() *Client {
	return &Client{httpClient: &http.Client{Timeout: 10 * time.Second}}
}

// Resolve issues a single GET to sessionURL with the token in the identity
// service's session cookie and parses the principal from the response body.
func (c *Client) Resolve(ctx context.Context, sessionURL, token string) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sessionURL, nil)
	if err != nil {
		return nil, fmt.Errorf("session: build identity request: %w", err)
	}
	req.AddCookie(&http.Cookie{Name: identityCookieName, Value: token})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	var s Session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrRejected, err)
	}
	return &s, nil
}
