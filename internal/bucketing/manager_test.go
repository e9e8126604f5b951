package bucketing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"mfa-service/internal/config"
)

func TestUserBucket_Deterministic(t *testing.T) {
	m := NewManager(&config.Config{Bucketing: config.BucketingConfig{UserBuckets: 64}})

	a := m.UserBucket("alice")
	b := m.UserBucket("alice")
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, a, 0)
	assert.Less(t, a, 64)
}

func TestUserBucket_Spread(t *testing.T) {
	m := NewManager(&config.Config{Bucketing: config.BucketingConfig{UserBuckets: 16}})

	seen := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		seen[m.UserBucket(fmt.Sprintf("user%d", i))] = true
	}
	assert.Equal(t, 16, len(seen), "1000 users should touch every bucket")
}
