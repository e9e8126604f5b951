package otpcode

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mfa-service/internal/util"
)

// DurableStore persists entries with explicit expiry metadata. The
// newest entry for an (identity, purpose) pair is the only active one;
// Consume must mark it used atomically so concurrent verifications
// admit exactly one winner.
type DurableStore interface {
	Put(ctx context.Context, e Entry) error
	GetActive(ctx context.Context, identity string, purpose Purpose) (Entry, error)
	Consume(ctx context.Context, e Entry) (bool, error)
	Invalidate(ctx context.Context, identity string, purpose Purpose) error
}

// CompareResult is the outcome of a TTLStore compare-and-delete.
type CompareResult int

const (
	CompareDeleted CompareResult = iota
	CompareMismatch
	CompareNotFound
)

// TTLStore holds one code hash per (identity, purpose) key and evicts
// it when the store-managed TTL lapses. CompareAndDelete must be
// atomic with respect to concurrent callers.
type TTLStore interface {
	Set(ctx context.Context, identity string, purpose Purpose, codeHash string, ttl time.Duration) error
	CompareAndDelete(ctx context.Context, identity string, purpose Purpose, codeHash string) (CompareResult, error)
	Delete(ctx context.Context, identity string, purpose Purpose) error
}

// Manager owns the one-time-code lifecycle: issuance, single-use
// consumption and invalidation, across the durable and TTL-native
// store shapes. Delivery is the caller's concern.
type Manager struct {
	durable       DurableStore
	ttl           TTLStore
	fallback      TTLStore
	smsCodeLength int
	now           func() time.Time
}

type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithSMSCodeLength sets the digit count for sms-login codes.
func WithSMSCodeLength(n int) Option {
	return func(m *Manager) { m.smsCodeLength = n }
}

// WithFallback installs an in-process store consulted for sms-login
// codes when the TTL store fails on issue or misses on verify. Opt-in
// only; without it a storage failure aborts issuance.
func WithFallback(store TTLStore) Option {
	return func(m *Manager) { m.fallback = store }
}

func NewManager(durable DurableStore, ttl TTLStore, opts ...Option) *Manager {
	m := &Manager{
		durable:       durable,
		ttl:           ttl,
		smsCodeLength: 6,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue generates a fresh code for (identity, purpose), supersedes any
// previously active code, and returns the plaintext for delivery. It
// never delivers anything itself.
func (m *Manager) Issue(ctx context.Context, identity string, purpose Purpose, ttl time.Duration) (string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", fmt.Errorf("%w: empty identity", ErrInvalidInput)
	}
	if !purpose.Valid() {
		return "", fmt.Errorf("%w: unknown purpose %q", ErrInvalidInput, purpose)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: non-positive ttl", ErrInvalidInput)
	}

	code, err := m.generate(purpose)
	if err != nil {
		return "", err
	}

	if purpose == PurposeSMSLogin {
		if err := m.issueTTL(ctx, identity, purpose, HashCode(code), ttl); err != nil {
			return "", err
		}
		return code, nil
	}

	if m.durable == nil {
		return "", fmt.Errorf("%w: no durable store configured", ErrStorage)
	}
	now := m.now()
	entry := Entry{
		ID:        uuid.New(),
		Identity:  identity,
		Purpose:   purpose,
		CodeHash:  HashCode(code),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := m.durable.Put(ctx, entry); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return code, nil
}

func (m *Manager) issueTTL(ctx context.Context, identity string, purpose Purpose, hash string, ttl time.Duration) error {
	if m.ttl == nil {
		if m.fallback == nil {
			return fmt.Errorf("%w: no ttl store configured", ErrStorage)
		}
		return m.fallback.Set(ctx, identity, purpose, hash, ttl)
	}
	err := m.ttl.Set(ctx, identity, purpose, hash, ttl)
	if err == nil {
		return nil
	}
	if m.fallback != nil {
		util.Warn("ttl store unavailable, using in-process fallback",
			util.String("purpose", string(purpose)), util.ErrorField(err))
		return m.fallback.Set(ctx, identity, purpose, hash, ttl)
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}

// Verify consumes the active code for (identity, purpose) if the
// candidate matches. Success terminates the code: a second call with
// the same candidate fails.
func (m *Manager) Verify(ctx context.Context, identity string, purpose Purpose, candidate string) error {
	identity = strings.TrimSpace(identity)
	candidate = strings.TrimSpace(candidate)
	if identity == "" || candidate == "" {
		return fmt.Errorf("%w: empty identity or code", ErrInvalidInput)
	}
	if !purpose.Valid() {
		return fmt.Errorf("%w: unknown purpose %q", ErrInvalidInput, purpose)
	}

	if purpose == PurposeSMSLogin {
		return m.verifyTTL(ctx, identity, purpose, HashCode(candidate))
	}
	return m.verifyDurable(ctx, identity, purpose, HashCode(candidate))
}

func (m *Manager) verifyDurable(ctx context.Context, identity string, purpose Purpose, hash string) error {
	if m.durable == nil {
		return fmt.Errorf("%w: no durable store configured", ErrStorage)
	}
	entry, err := m.durable.GetActive(ctx, identity, purpose)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if entry.ExpiredAt(m.now()) {
		// Retire the row eagerly so sweeps and later reads see a
		// terminal state. Best effort: the caller gets ErrExpired
		// either way.
		if !entry.Used {
			if _, err := m.durable.Consume(ctx, entry); err != nil {
				util.Warn("could not retire expired code",
					util.String("purpose", string(purpose)), util.ErrorField(err))
			}
		}
		return ErrExpired
	}
	if entry.Used {
		return ErrAlreadyUsed
	}
	if subtle.ConstantTimeCompare([]byte(entry.CodeHash), []byte(hash)) != 1 {
		return ErrMismatch
	}
	applied, err := m.durable.Consume(ctx, entry)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !applied {
		return ErrAlreadyUsed
	}
	return nil
}

func (m *Manager) verifyTTL(ctx context.Context, identity string, purpose Purpose, hash string) error {
	stores := make([]TTLStore, 0, 2)
	if m.ttl != nil {
		stores = append(stores, m.ttl)
	}
	if m.fallback != nil {
		stores = append(stores, m.fallback)
	}
	if len(stores) == 0 {
		return fmt.Errorf("%w: no ttl store configured", ErrStorage)
	}

	// A code issued during an outage lives in the fallback, so an
	// unreachable store must not end the search. ErrStorage only when
	// no store gave an answer at all.
	var storeErr error
	answered := false
	for _, store := range stores {
		result, err := store.CompareAndDelete(ctx, identity, purpose, hash)
		if err != nil {
			util.Warn("ttl store unavailable during verification",
				util.String("purpose", string(purpose)), util.ErrorField(err))
			storeErr = err
			continue
		}
		answered = true
		switch result {
		case CompareDeleted:
			return nil
		case CompareMismatch:
			return ErrMismatch
		case CompareNotFound:
		}
	}
	if !answered && storeErr != nil {
		return fmt.Errorf("%w: %v", ErrStorage, storeErr)
	}
	return ErrNotFound
}

// Invalidate discards any active code for (identity, purpose) without
// consuming it.
func (m *Manager) Invalidate(ctx context.Context, identity string, purpose Purpose) error {
	identity = strings.TrimSpace(identity)
	if identity == "" || !purpose.Valid() {
		return fmt.Errorf("%w: bad identity or purpose", ErrInvalidInput)
	}
	if purpose == PurposeSMSLogin {
		var firstErr error
		for _, store := range []TTLStore{m.ttl, m.fallback} {
			if store == nil {
				continue
			}
			if err := store.Delete(ctx, identity, purpose); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("%w: %v", ErrStorage, err)
			}
		}
		return firstErr
	}
	if m.durable == nil {
		return fmt.Errorf("%w: no durable store configured", ErrStorage)
	}
	if err := m.durable.Invalidate(ctx, identity, purpose); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (m *Manager) generate(purpose Purpose) (string, error) {
	switch purpose {
	case PurposeEmailVerify:
		return NewToken()
	case PurposePhoneVerify:
		return NewNumericCode(6)
	case PurposeSMSLogin:
		return NewNumericCode(m.smsCodeLength)
	default:
		return "", fmt.Errorf("%w: unknown purpose %q", ErrInvalidInput, purpose)
	}
}
