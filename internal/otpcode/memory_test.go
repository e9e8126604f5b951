package otpcode

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_LazyExpiry(t *testing.T) {
	ctx := context.Background()
	current := time.Unix(1700000000, 0)
	s := NewMemoryStore()
	s.now = func() time.Time { return current }

	hash := HashCode("123456")
	require.NoError(t, s.Set(ctx, "+15551234567", PurposeSMSLogin, hash, 5*time.Minute))
	assert.Equal(t, 1, s.Len())

	current = current.Add(5*time.Minute + time.Second)
	result, err := s.CompareAndDelete(ctx, "+15551234567", PurposeSMSLogin, hash)
	require.NoError(t, err)
	assert.Equal(t, CompareNotFound, result)
	assert.Equal(t, 0, s.Len(), "expired entry is swept on read")
}

func TestMemoryStore_CompareAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	hash := HashCode("123456")
	require.NoError(t, s.Set(ctx, "+15551234567", PurposeSMSLogin, hash, time.Minute))

	result, err := s.CompareAndDelete(ctx, "+15551234567", PurposeSMSLogin, HashCode("654321"))
	require.NoError(t, err)
	assert.Equal(t, CompareMismatch, result, "mismatch must not consume the entry")

	result, err = s.CompareAndDelete(ctx, "+15551234567", PurposeSMSLogin, hash)
	require.NoError(t, err)
	assert.Equal(t, CompareDeleted, result)

	result, err = s.CompareAndDelete(ctx, "+15551234567", PurposeSMSLogin, hash)
	require.NoError(t, err)
	assert.Equal(t, CompareNotFound, result)
}

func TestMemoryStore_SetOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "+15551234567", PurposeSMSLogin, HashCode("111111"), time.Minute))
	require.NoError(t, s.Set(ctx, "+15551234567", PurposeSMSLogin, HashCode("222222"), time.Minute))
	assert.Equal(t, 1, s.Len())

	result, err := s.CompareAndDelete(ctx, "+15551234567", PurposeSMSLogin, HashCode("111111"))
	require.NoError(t, err)
	assert.Equal(t, CompareMismatch, result)
}
