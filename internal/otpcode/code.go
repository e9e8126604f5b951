package otpcode

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Purpose partitions codes so a code issued for one flow can never be
// consumed by another.
type Purpose string

const (
	PurposeEmailVerify Purpose = "email-verify"
	PurposePhoneVerify Purpose = "phone-verify"
	PurposeSMSLogin    Purpose = "sms-login"
)

func (p Purpose) Valid() bool {
	switch p {
	case PurposeEmailVerify, PurposePhoneVerify, PurposeSMSLogin:
		return true
	}
	return false
}

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("code not found")
	ErrAlreadyUsed  = errors.New("code already used")
	ErrExpired      = errors.New("code expired")
	ErrMismatch     = errors.New("code mismatch")
	ErrStorage      = errors.New("code storage unavailable")
)

// Entry is a stored verification code. Only the hash of the code is
// persisted; the plaintext exists exactly once, in the Issue return
// value handed to the delivery channel.
type Entry struct {
	ID        uuid.UUID
	Identity  string
	Purpose   Purpose
	CodeHash  string
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
}

func (e Entry) ExpiredAt(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// HashCode is the canonical digest stored and compared for every code.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// NewNumericCode returns a uniformly random decimal code of the given
// length, left-padded with zeros.
func NewNumericCode(length int) (string, error) {
	if length < 4 || length > 10 {
		return "", fmt.Errorf("%w: code length %d", ErrInvalidInput, length)
	}
	max := big.NewInt(1)
	for i := 0; i < length; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

// NewToken returns a 256-bit opaque token in URL-safe encoding, used
// for email verification links.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
