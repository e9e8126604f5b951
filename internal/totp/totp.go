package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strings"
	"time"
)

// Algorithm selects the HMAC hash used for code generation.
type Algorithm string

const (
	AlgorithmSHA1   Algorithm = "SHA1"
	AlgorithmSHA256 Algorithm = "SHA256"
	AlgorithmSHA512 Algorithm = "SHA512"
)

const (
	DefaultDigits = 6
	DefaultPeriod = 30

	secretBytes = 20
)

var (
	ErrEmptySecret   = errors.New("empty secret")
	ErrInvalidSecret = errors.New("secret is not valid base32")
	ErrEmptyAccount  = errors.New("empty account label")
	ErrInvalidDigits = errors.New("digits must be between 6 and 10")
	ErrInvalidPeriod = errors.New("period must be positive")
)

// Options carries the code-stream parameters. The zero value selects
// SHA1, 6 digits and a 30 second period.
type Options struct {
	Algorithm Algorithm
	Digits    int
	Period    int
}

func (o Options) digits() int {
	if o.Digits == 0 {
		return DefaultDigits
	}
	return o.Digits
}

func (o Options) period() int {
	if o.Period == 0 {
		return DefaultPeriod
	}
	return o.Period
}

func (o Options) hashFunc() func() hash.Hash {
	switch o.Algorithm {
	case AlgorithmSHA256:
		return sha256.New
	case AlgorithmSHA512:
		return sha512.New
	default:
		return sha1.New
	}
}

func (o Options) validate() error {
	if d := o.digits(); d < 6 || d > 10 {
		return ErrInvalidDigits
	}
	if o.period() <= 0 {
		return ErrInvalidPeriod
	}
	return nil
}

// GenerateSecret returns a fresh 160-bit shared secret encoded as
// unpadded upper-case base32.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

// decodeSecret accepts upper or lower case base32, with or without
// trailing padding.
func decodeSecret(secret string) ([]byte, error) {
	s := strings.TrimRight(strings.ToUpper(strings.TrimSpace(secret)), "=")
	if s == "" {
		return nil, ErrEmptySecret
	}
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
	if err != nil {
		return nil, ErrInvalidSecret
	}
	return key, nil
}

// GenerateHOTP computes the RFC 4226 code for a counter value.
func GenerateHOTP(secret string, counter uint64, opts Options) (string, error) {
	if err := opts.validate(); err != nil {
		return "", err
	}
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(opts.hashFunc(), key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	// 10^10 does not fit in 32 bits, so reduce in 64.
	digits := opts.digits()
	mod := uint64(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, uint64(code)%mod), nil
}

// GenerateTOTP computes the RFC 6238 code for a moment in time.
func GenerateTOTP(secret string, at time.Time, opts Options) (string, error) {
	counter := uint64(at.Unix() / int64(opts.period()))
	return GenerateHOTP(secret, counter, opts)
}

// Validate checks a candidate code against the current time, accepting
// codes from up to window periods on either side of now.
func Validate(secret, candidate string, window int, opts Options) (bool, error) {
	return ValidateAt(secret, candidate, time.Now(), window, opts)
}

// ValidateAt is Validate with an explicit reference time. Comparison is
// constant time per step; the window search always visits every step.
func ValidateAt(secret, candidate string, at time.Time, window int, opts Options) (bool, error) {
	if err := opts.validate(); err != nil {
		return false, err
	}
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || len(candidate) > opts.digits() {
		return false, nil
	}
	for _, r := range candidate {
		if r < '0' || r > '9' {
			return false, nil
		}
	}
	// Authenticator users sometimes drop leading zeros when typing.
	if pad := opts.digits() - len(candidate); pad > 0 {
		candidate = strings.Repeat("0", pad) + candidate
	}
	if window < 0 {
		window = 0
	}

	counter := at.Unix() / int64(opts.period())
	match := 0
	for delta := -window; delta <= window; delta++ {
		step := counter + int64(delta)
		if step < 0 {
			continue
		}
		expected, err := GenerateHOTP(secret, uint64(step), opts)
		if err != nil {
			return false, err
		}
		match |= subtle.ConstantTimeCompare([]byte(expected), []byte(candidate))
	}
	return match == 1, nil
}

// ProvisioningURI builds the otpauth:// URI that authenticator apps
// consume, typically rendered as a QR code.
func ProvisioningURI(secret, account, issuer string, opts Options) (string, error) {
	if err := opts.validate(); err != nil {
		return "", err
	}
	if strings.TrimSpace(account) == "" {
		return "", ErrEmptyAccount
	}
	if _, err := decodeSecret(secret); err != nil {
		return "", err
	}

	label := quote(account)
	if issuer != "" {
		label = quote(issuer) + ":" + label
	}

	algorithm := opts.Algorithm
	if algorithm == "" {
		algorithm = AlgorithmSHA1
	}

	var b strings.Builder
	b.WriteString("otpauth://totp/")
	b.WriteString(label)
	b.WriteString("?secret=")
	b.WriteString(secret)
	if issuer != "" {
		b.WriteString("&issuer=")
		b.WriteString(quote(issuer))
	}
	b.WriteString("&algorithm=")
	b.WriteString(string(algorithm))
	b.WriteString(fmt.Sprintf("&digits=%d&period=%d", opts.digits(), opts.period()))
	return b.String(), nil
}

// quote percent-encodes everything outside the unreserved set,
// including spaces.
func quote(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
