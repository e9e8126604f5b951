package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mfa-service/internal/client"
	"mfa-service/internal/otpcode"
	"mfa-service/internal/util"
)

// compareAndDeleteScript deletes the key only when the stored hash
// matches the candidate. Running inside Redis makes the check-and-
// consume a single step, so concurrent verifiers cannot both win.
// Returns 1 on delete, 0 on mismatch, -1 when the key is gone.
const compareAndDeleteScript = `
local v = redis.call("GET", KEYS[1])
if v == false then
  return -1
end
if v == ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`

// CodeCache is the TTL-native store for sms-login codes. Only sha256
// hashes of codes are stored, never plaintext, which also keeps the
// Lua string comparison timing-safe.
type CodeCache struct {
	client    *client.RedisClient
	keyPrefix string
}

func NewCodeCache(redisClient *client.RedisClient, keyPrefix string) *CodeCache {
	return &CodeCache{
		client:    redisClient,
		keyPrefix: keyPrefix,
	}
}

var _ otpcode.TTLStore = (*CodeCache)(nil)

func (c *CodeCache) key(identity string, purpose otpcode.Purpose) string {
	return c.keyPrefix + string(purpose) + ":" + identity
}

func (c *CodeCache) Set(ctx context.Context, identity string, purpose otpcode.Purpose, codeHash string, ttl time.Duration) error {
	key := c.key(identity, purpose)
	if err := c.client.Set(ctx, key, codeHash, ttl); err != nil {
		util.Error("failed to cache login code",
			zap.String("purpose", string(purpose)),
			zap.Error(err))
		return fmt.Errorf("failed to cache login code: %w", err)
	}
	util.Debug("login code cached",
		zap.String("purpose", string(purpose)),
		zap.Duration("ttl", ttl))
	return nil
}

func (c *CodeCache) CompareAndDelete(ctx context.Context, identity string, purpose otpcode.Purpose, codeHash string) (otpcode.CompareResult, error) {
	key := c.key(identity, purpose)
	res, err := c.client.Eval(ctx, compareAndDeleteScript, []string{key}, codeHash)
	if err != nil {
		return otpcode.CompareNotFound, fmt.Errorf("compare-and-delete failed: %w", err)
	}

	n, ok := res.(int64)
	if !ok {
		return otpcode.CompareNotFound, fmt.Errorf("compare-and-delete returned unexpected %T", res)
	}
	switch n {
	case 1:
		return otpcode.CompareDeleted, nil
	case 0:
		return otpcode.CompareMismatch, nil
	default:
		return otpcode.CompareNotFound, nil
	}
}

func (c *CodeCache) Delete(ctx context.Context, identity string, purpose otpcode.Purpose) error {
	if err := c.client.Del(ctx, c.key(identity, purpose)); err != nil {
		return fmt.Errorf("failed to delete login code: %w", err)
	}
	return nil
}
