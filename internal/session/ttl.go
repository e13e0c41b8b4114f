package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL bounds cache entries for tokens without a usable expiry claim.
const DefaultTTL = 5 * time.Minute

// TokenTTL derives a cache TTL from the token. If the token is a JWT its
// claims are decoded without signature verification (validity is the
// identity service's concern, not ours) and a future exp claim yields
// exp-now. Opaque tokens, absent claims, and already-expired tokens fall
// back to DefaultTTL.
func TokenTTL(token string, now time.Time) time.Duration {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return DefaultTTL
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return DefaultTTL
	}
	if remaining := exp.Time.Sub(now); remaining > 0 {
		return remaining
	}
	return DefaultTTL
}
