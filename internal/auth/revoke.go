package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Token revocation denylist. Entries expire with the token, so the set
// stays small. A nil Redis client disables revocation checks.

const revokedPrefix = "revoked:"

func RevokeToken(ctx context.Context, rdb *redis.Client, jti string, ttl time.Duration) error {
	if rdb == nil || jti == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return rdb.Set(ctx, revokedPrefix+jti, "1", ttl).Err()
}

func IsTokenRevoked(ctx context.Context, rdb *redis.Client, jti string) bool {
	if rdb == nil || jti == "" {
		return false
	}
	n, err := rdb.Exists(ctx, revokedPrefix+jti).Result()
	if err != nil {
		// Fail open - Redis being down must not lock everyone out.
		return false
	}
	return n > 0
}
