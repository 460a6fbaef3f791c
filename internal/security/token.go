package security

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry reads the exp claim of a bearer token without verifying its
// signature. The gateway never holds the identity service's signing key; the
// claim is only used to bound storage lifetimes and to skip verifying tokens
// that are already dead. The boolean is false for opaque tokens and for JWTs
// without an exp claim.
func TokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// TokenExpired reports whether token carries an exp claim at or before now.
func TokenExpired(token string, now time.Time) bool {
	exp, ok := TokenExpiry(token)
	if !ok {
		return false
	}
	return !exp.After(now)
}

// StorageTTL returns how long a session holding token may stay persisted:
// the time left until the token's expiry, capped by fallback. Opaque tokens
// get fallback. An expired token yields 0, which storage backends read as
// "no expiry", so callers check TokenExpired before persisting.
func StorageTTL(token string, fallback time.Duration, now time.Time) time.Duration {
	exp, ok := TokenExpiry(token)
	if !ok {
		return fallback
	}
	ttl := exp.Sub(now)
	if ttl <= 0 {
		return 0
	}
	if fallback > 0 && ttl > fallback {
		return fallback
	}
	return ttl
}
