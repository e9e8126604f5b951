package bucketing

import (
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"

	"mfa-service/internal/config"
)

// Manager maps user identifiers to partition buckets so the profile
// table spreads evenly across the cluster. The bucket count must never
// change once data exists.
type Manager struct {
	userBuckets int
	hasherPool  sync.Pool
}

func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		userBuckets: cfg.Bucketing.UserBuckets,
		hasherPool: sync.Pool{
			New: func() interface{} {
				return murmur3.New64()
			},
		},
	}
}

// UserBucket returns the consistent bucket for an identifier, in
// [0, userBuckets).
func (m *Manager) UserBucket(id string) int {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(id))
	return int(hasher.Sum64() % uint64(m.userBuckets))
}

func (m *Manager) UserBuckets() int {
	return m.userBuckets
}
