package otpcode

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDurableStore keeps the latest entry per (identity, purpose) and
// mimics the compare-and-set consumption of the real repository.
type fakeDurableStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
	putErr  error
}

func newFakeDurableStore() *fakeDurableStore {
	return &fakeDurableStore{entries: make(map[string]*Entry)}
}

func durableKey(identity string, purpose Purpose) string {
	return string(purpose) + ":" + identity
}

func (s *fakeDurableStore) Put(_ context.Context, e Entry) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[durableKey(e.Identity, e.Purpose)] = &e
	return nil
}

func (s *fakeDurableStore) GetActive(_ context.Context, identity string, purpose Purpose) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[durableKey(identity, purpose)]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return *e, nil
}

func (s *fakeDurableStore) Consume(_ context.Context, e Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.entries[durableKey(e.Identity, e.Purpose)]
	if !ok || stored.ID != e.ID || stored.Used {
		return false, nil
	}
	stored.Used = true
	return true, nil
}

func (s *fakeDurableStore) Invalidate(_ context.Context, identity string, purpose Purpose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, durableKey(identity, purpose))
	return nil
}

// failingTTLStore rejects reads and writes alike, like an unreachable
// redis.
type failingTTLStore struct{ err error }

func (s failingTTLStore) Set(context.Context, string, Purpose, string, time.Duration) error {
	return s.err
}

func (s failingTTLStore) CompareAndDelete(context.Context, string, Purpose, string) (CompareResult, error) {
	return CompareNotFound, s.err
}

func (s failingTTLStore) Delete(context.Context, string, Purpose) error { return nil }

func testClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestIssueAndVerify_Durable(t *testing.T) {
	ctx := context.Background()
	store := newFakeDurableStore()
	m := NewManager(store, NewMemoryStore())

	code, err := m.Issue(ctx, "alice@example.com", PurposeEmailVerify, 24*time.Hour)
	require.NoError(t, err)
	assert.Len(t, code, 43, "32 url-safe bytes")

	require.NoError(t, m.Verify(ctx, "alice@example.com", PurposeEmailVerify, code))
}

func TestIssue_CodeShapes(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newFakeDurableStore(), NewMemoryStore(), WithSMSCodeLength(8))

	phone, err := m.Issue(ctx, "+15551234567", PurposePhoneVerify, time.Hour)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), phone)

	sms, err := m.Issue(ctx, "+15551234567", PurposeSMSLogin, 5*time.Minute)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d{8}$`), sms)
}

func TestVerify_SingleUse_Durable(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newFakeDurableStore(), NewMemoryStore())

	code, err := m.Issue(ctx, "alice@example.com", PurposeEmailVerify, time.Hour)
	require.NoError(t, err)

	require.NoError(t, m.Verify(ctx, "alice@example.com", PurposeEmailVerify, code))
	err = m.Verify(ctx, "alice@example.com", PurposeEmailVerify, code)
	assert.ErrorIs(t, err, ErrAlreadyUsed)
}

func TestVerify_SingleUse_TTL(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newFakeDurableStore(), NewMemoryStore())

	code, err := m.Issue(ctx, "+15551234567", PurposeSMSLogin, 5*time.Minute)
	require.NoError(t, err)

	require.NoError(t, m.Verify(ctx, "+15551234567", PurposeSMSLogin, code))
	err = m.Verify(ctx, "+15551234567", PurposeSMSLogin, code)
	assert.ErrorIs(t, err, ErrNotFound, "ttl store forgets consumed codes entirely")
}

func TestIssue_SupersedesPreviousCode(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newFakeDurableStore(), NewMemoryStore())

	first, err := m.Issue(ctx, "alice@example.com", PurposeEmailVerify, time.Hour)
	require.NoError(t, err)
	second, err := m.Issue(ctx, "alice@example.com", PurposeEmailVerify, time.Hour)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	assert.ErrorIs(t, m.Verify(ctx, "alice@example.com", PurposeEmailVerify, first), ErrMismatch)
	require.NoError(t, m.Verify(ctx, "alice@example.com", PurposeEmailVerify, second))
}

func TestIssue_SupersedesPreviousCode_TTL(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newFakeDurableStore(), NewMemoryStore())

	first, err := m.Issue(ctx, "+15551234567", PurposeSMSLogin, 5*time.Minute)
	require.NoError(t, err)
	second, err := m.Issue(ctx, "+15551234567", PurposeSMSLogin, 5*time.Minute)
	require.NoError(t, err)

	if first != second {
		assert.ErrorIs(t, m.Verify(ctx, "+15551234567", PurposeSMSLogin, first), ErrMismatch)
	}
	require.NoError(t, m.Verify(ctx, "+15551234567", PurposeSMSLogin, second))
}

func TestVerify_Expired_Durable(t *testing.T) {
	ctx := context.Background()
	start := time.Unix(1700000000, 0)
	current := start
	m := NewManager(newFakeDurableStore(), NewMemoryStore(),
		WithClock(func() time.Time { return current }))

	code, err := m.Issue(ctx, "alice@example.com", PurposeEmailVerify, time.Hour)
	require.NoError(t, err)

	current = start.Add(time.Hour + time.Second)
	err = m.Verify(ctx, "alice@example.com", PurposeEmailVerify, code)
	assert.ErrorIs(t, err, ErrExpired)

	// Expiry checks run before the code comparison, so retrying
	// changes nothing.
	err = m.Verify(ctx, "alice@example.com", PurposeEmailVerify, code)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerify_Expired_MarksEntryUsed(t *testing.T) {
	ctx := context.Background()
	start := time.Unix(1700000000, 0)
	current := start
	store := newFakeDurableStore()
	m := NewManager(store, NewMemoryStore(),
		WithClock(func() time.Time { return current }))

	code, err := m.Issue(ctx, "alice@example.com", PurposeEmailVerify, time.Hour)
	require.NoError(t, err)

	current = start.Add(time.Hour + time.Second)
	err = m.Verify(ctx, "alice@example.com", PurposeEmailVerify, code)
	require.ErrorIs(t, err, ErrExpired)

	entry, err := store.GetActive(ctx, "alice@example.com", PurposeEmailVerify)
	require.NoError(t, err)
	assert.True(t, entry.Used, "detecting expiry must retire the stored entry")
}

func TestVerify_Mismatch(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newFakeDurableStore(), NewMemoryStore())

	code, err := m.Issue(ctx, "alice@example.com", PurposePhoneVerify, time.Hour)
	require.NoError(t, err)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	assert.ErrorIs(t, m.Verify(ctx, "alice@example.com", PurposePhoneVerify, wrong), ErrMismatch)

	// A mismatch does not consume the real code.
	require.NoError(t, m.Verify(ctx, "alice@example.com", PurposePhoneVerify, code))
}

func TestVerify_PurposeIsolation(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newFakeDurableStore(), NewMemoryStore())

	code, err := m.Issue(ctx, "alice@example.com", PurposePhoneVerify, time.Hour)
	require.NoError(t, err)

	assert.ErrorIs(t, m.Verify(ctx, "alice@example.com", PurposeEmailVerify, code), ErrNotFound)
	assert.ErrorIs(t, m.Verify(ctx, "alice@example.com", PurposeSMSLogin, code), ErrNotFound)
	require.NoError(t, m.Verify(ctx, "alice@example.com", PurposePhoneVerify, code))
}

func TestVerify_ConcurrentExactlyOnce(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newFakeDurableStore(), NewMemoryStore())

	code, err := m.Issue(ctx, "alice@example.com", PurposeEmailVerify, time.Hour)
	require.NoError(t, err)

	const n = 32
	results := make(chan error, n)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < n; i++ {
		go func() {
			start.Wait()
			results <- m.Verify(ctx, "alice@example.com", PurposeEmailVerify, code)
		}()
	}
	start.Done()

	var wins, losses int
	for i := 0; i < n; i++ {
		err := <-results
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, ErrAlreadyUsed)
		losses++
	}
	assert.Equal(t, 1, wins, "exactly one verifier may win")
	assert.Equal(t, n-1, losses)
}

func TestVerify_ConcurrentExactlyOnce_TTL(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newFakeDurableStore(), NewMemoryStore())

	code, err := m.Issue(ctx, "+15551234567", PurposeSMSLogin, 5*time.Minute)
	require.NoError(t, err)

	const n = 32
	results := make(chan error, n)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < n; i++ {
		go func() {
			start.Wait()
			results <- m.Verify(ctx, "+15551234567", PurposeSMSLogin, code)
		}()
	}
	start.Done()

	var wins int
	for i := 0; i < n; i++ {
		err := <-results
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, ErrNotFound)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestIssue_StorageFailureAborts(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("redis down")
	m := NewManager(newFakeDurableStore(), failingTTLStore{err: boom})

	_, err := m.Issue(ctx, "+15551234567", PurposeSMSLogin, 5*time.Minute)
	assert.ErrorIs(t, err, ErrStorage)
}

func TestIssue_FallbackOnStorageFailure(t *testing.T) {
	ctx := context.Background()
	fallback := NewMemoryStore()
	m := NewManager(newFakeDurableStore(), failingTTLStore{err: errors.New("redis down")},
		WithFallback(fallback))

	code, err := m.Issue(ctx, "+15551234567", PurposeSMSLogin, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, fallback.Len())

	require.NoError(t, m.Verify(ctx, "+15551234567", PurposeSMSLogin, code))
	assert.ErrorIs(t, m.Verify(ctx, "+15551234567", PurposeSMSLogin, code), ErrNotFound)
}

func TestVerify_FallbackWhenTTLStoreDown(t *testing.T) {
	ctx := context.Background()
	fallback := NewMemoryStore()
	m := NewManager(newFakeDurableStore(), failingTTLStore{err: errors.New("redis down")},
		WithFallback(fallback))

	code, err := m.Issue(ctx, "+15551234567", PurposeSMSLogin, 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, fallback.Len())

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	assert.ErrorIs(t, m.Verify(ctx, "+15551234567", PurposeSMSLogin, wrong), ErrMismatch,
		"the fallback must answer while the primary store is down")
	require.NoError(t, m.Verify(ctx, "+15551234567", PurposeSMSLogin, code))
	assert.ErrorIs(t, m.Verify(ctx, "+15551234567", PurposeSMSLogin, code), ErrNotFound)
}

func TestVerify_StorageFailureWithoutFallback(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newFakeDurableStore(), failingTTLStore{err: errors.New("redis down")})

	err := m.Verify(ctx, "+15551234567", PurposeSMSLogin, "123456")
	assert.ErrorIs(t, err, ErrStorage)
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newFakeDurableStore(), NewMemoryStore())

	code, err := m.Issue(ctx, "alice@example.com", PurposeEmailVerify, time.Hour)
	require.NoError(t, err)
	require.NoError(t, m.Invalidate(ctx, "alice@example.com", PurposeEmailVerify))
	assert.ErrorIs(t, m.Verify(ctx, "alice@example.com", PurposeEmailVerify, code), ErrNotFound)

	sms, err := m.Issue(ctx, "+15551234567", PurposeSMSLogin, 5*time.Minute)
	require.NoError(t, err)
	require.NoError(t, m.Invalidate(ctx, "+15551234567", PurposeSMSLogin))
	assert.ErrorIs(t, m.Verify(ctx, "+15551234567", PurposeSMSLogin, sms), ErrNotFound)
}

func TestIssueAndVerify_InvalidInput(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newFakeDurableStore(), NewMemoryStore())

	_, err := m.Issue(ctx, "", PurposeEmailVerify, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = m.Issue(ctx, "alice", Purpose("password-reset"), time.Hour)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = m.Issue(ctx, "alice", PurposeEmailVerify, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.ErrorIs(t, m.Verify(ctx, "alice", PurposeEmailVerify, ""), ErrInvalidInput)
	assert.ErrorIs(t, m.Verify(ctx, "", PurposeEmailVerify, "123456"), ErrInvalidInput)
	assert.ErrorIs(t, m.Verify(ctx, "alice", Purpose("bogus"), "123456"), ErrInvalidInput)
}
