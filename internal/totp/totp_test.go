package totp

import (
	"encoding/base32"
	"fmt"
	"strings"
	"testing"
	"time"

	pqotp "github.com/pquerna/otp"
	pqtotp "github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b32(ascii string) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(ascii))
}

// Appendix B of RFC 6238.
func TestGenerateTOTP_RFC6238Vectors(t *testing.T) {
	secrets := map[Algorithm]string{
		AlgorithmSHA1:   b32("12345678901234567890"),
		AlgorithmSHA256: b32("12345678901234567890123456789012"),
		AlgorithmSHA512: b32("1234567890123456789012345678901234567890123456789012345678901234"),
	}

	cases := []struct {
		unix   int64
		sha1   string
		sha256 string
		sha512 string
	}{
		{59, "94287082", "46119246", "90693936"},
		{1111111109, "07081804", "68084774", "25091201"},
		{1111111111, "14050471", "67062674", "99943326"},
		{1234567890, "89005924", "91819424", "93441116"},
		{2000000000, "69279037", "90698825", "38618901"},
		{20000000000, "65353130", "77737706", "47863826"},
	}

	for _, tc := range cases {
		at := time.Unix(tc.unix, 0).UTC()
		expected := map[Algorithm]string{
			AlgorithmSHA1:   tc.sha1,
			AlgorithmSHA256: tc.sha256,
			AlgorithmSHA512: tc.sha512,
		}
		for alg, want := range expected {
			code, err := GenerateTOTP(secrets[alg], at, Options{Algorithm: alg, Digits: 8})
			require.NoError(t, err, "alg=%s t=%d", alg, tc.unix)
			assert.Equal(t, want, code, "alg=%s t=%d", alg, tc.unix)
		}
	}
}

// The dynamic truncation value is at most 31 bits, so a ten digit code
// is the whole value zero padded. Its last eight digits must therefore
// match the eight digit code for the same moment, which the Appendix B
// vectors pin down. A 32-bit modulus would corrupt large values here.
func TestGenerateTOTP_TenDigits(t *testing.T) {
	secrets := map[Algorithm]string{
		AlgorithmSHA1:   b32("12345678901234567890"),
		AlgorithmSHA256: b32("12345678901234567890123456789012"),
		AlgorithmSHA512: b32("1234567890123456789012345678901234567890123456789012345678901234"),
	}

	cases := []struct {
		unix   int64
		sha1   string
		sha256 string
		sha512 string
	}{
		{59, "94287082", "46119246", "90693936"},
		{1111111109, "07081804", "68084774", "25091201"},
		{1111111111, "14050471", "67062674", "99943326"},
		{1234567890, "89005924", "91819424", "93441116"},
		{2000000000, "69279037", "90698825", "38618901"},
		{20000000000, "65353130", "77737706", "47863826"},
	}

	for _, tc := range cases {
		at := time.Unix(tc.unix, 0).UTC()
		expected := map[Algorithm]string{
			AlgorithmSHA1:   tc.sha1,
			AlgorithmSHA256: tc.sha256,
			AlgorithmSHA512: tc.sha512,
		}
		for alg, want := range expected {
			code, err := GenerateTOTP(secrets[alg], at, Options{Algorithm: alg, Digits: 10})
			require.NoError(t, err, "alg=%s t=%d", alg, tc.unix)
			assert.Len(t, code, 10, "alg=%s t=%d", alg, tc.unix)
			assert.True(t, strings.HasSuffix(code, want),
				"alg=%s t=%d: %q does not end with %q", alg, tc.unix, code, want)
		}
	}
}

func TestGenerateTOTP_Deterministic(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)

	at := time.Unix(1700000000, 0)
	a, err := GenerateTOTP(secret, at, Options{})
	require.NoError(t, err)
	b, err := GenerateTOTP(secret, at.Add(5*time.Second), Options{})
	require.NoError(t, err)
	assert.Equal(t, a, b, "same period must produce the same code")
}

func TestGenerateSecret_Format(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		secret, err := GenerateSecret()
		require.NoError(t, err)
		assert.Len(t, secret, 32, "20 bytes encode to 32 base32 chars")
		assert.NotContains(t, secret, "=")
		assert.Equal(t, strings.ToUpper(secret), secret)
		assert.False(t, seen[secret], "secrets must not repeat")
		seen[secret] = true
	}
}

func TestValidateAt_Window(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)

	opts := Options{}
	t0 := time.Unix(1700000010, 0)
	code, err := GenerateTOTP(secret, t0, opts)
	require.NoError(t, err)

	cases := []struct {
		name   string
		at     time.Time
		window int
		want   bool
	}{
		{"same period", t0, 0, true},
		{"next period window 0", t0.Add(30 * time.Second), 0, false},
		{"next period window 1", t0.Add(30 * time.Second), 1, true},
		{"previous period window 1", t0.Add(-30 * time.Second), 1, true},
		{"two periods ahead window 1", t0.Add(65 * time.Second), 1, false},
		{"two periods ahead window 2", t0.Add(65 * time.Second), 2, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := ValidateAt(secret, code, tc.at, tc.window, opts)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestValidateAt_RejectsMalformedCandidates(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)
	at := time.Unix(1700000000, 0)

	for _, candidate := range []string{"", "1234567", "abcdef", "12 456", "-12345"} {
		ok, err := ValidateAt(secret, candidate, at, 1, Options{})
		require.NoError(t, err)
		assert.False(t, ok, "candidate %q", candidate)
	}
}

func TestValidateAt_PadsDroppedLeadingZeros(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)

	// Hunt for a moment whose code starts with a zero.
	for i := 0; i < 2000; i++ {
		at := time.Unix(1700000000+int64(30*i), 0)
		code, err := GenerateTOTP(secret, at, Options{})
		require.NoError(t, err)
		if code[0] != '0' {
			continue
		}

		short := strings.TrimLeft(code, "0")
		ok, err := ValidateAt(secret, short, at, 0, Options{})
		require.NoError(t, err)
		assert.True(t, ok, "code %q submitted as %q", code, short)
		return
	}
	t.Fatal("no code with a leading zero in 2000 periods")
}

func TestValidateAt_WrongCode(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)
	at := time.Unix(1700000000, 0)

	code, err := GenerateTOTP(secret, at, Options{})
	require.NoError(t, err)
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	ok, err := ValidateAt(secret, wrong, at, 1, Options{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecodeSecret_Tolerance(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)
	at := time.Unix(1700000000, 0)

	canonical, err := GenerateTOTP(secret, at, Options{})
	require.NoError(t, err)

	for _, variant := range []string{
		strings.ToLower(secret),
		secret + "========",
		"  " + secret + "  ",
	} {
		code, err := GenerateTOTP(variant, at, Options{})
		require.NoError(t, err)
		assert.Equal(t, canonical, code)
	}
}

func TestDecodeSecret_Errors(t *testing.T) {
	_, err := GenerateTOTP("", time.Now(), Options{})
	assert.ErrorIs(t, err, ErrEmptySecret)

	_, err = GenerateTOTP("not!base32", time.Now(), Options{})
	assert.ErrorIs(t, err, ErrInvalidSecret)
}

func TestProvisioningURI(t *testing.T) {
	secret := b32("12345678901234567890")

	uri, err := ProvisioningURI(secret, "alice", "ExampleIssuer", Options{})
	require.NoError(t, err)
	expected := fmt.Sprintf(
		"otpauth://totp/ExampleIssuer:alice?secret=%s&issuer=ExampleIssuer&algorithm=SHA1&digits=6&period=30",
		secret)
	assert.Equal(t, expected, uri)

	key, err := pqotp.NewKeyFromURL(uri)
	require.NoError(t, err, "authenticator libraries must parse our URI")
	assert.Equal(t, secret, key.Secret())
	assert.Equal(t, "ExampleIssuer", key.Issuer())
	assert.Equal(t, "alice", key.AccountName())
}

func TestProvisioningURI_Escaping(t *testing.T) {
	secret := b32("12345678901234567890")

	uri, err := ProvisioningURI(secret, "alice smith", "Issuer & Co", Options{})
	require.NoError(t, err)
	assert.Equal(t,
		"otpauth://totp/Issuer%20%26%20Co:alice%20smith?secret="+secret+
			"&issuer=Issuer%20%26%20Co&algorithm=SHA1&digits=6&period=30",
		uri)
	assert.NotContains(t, uri, "+")
}

func TestProvisioningURI_EmptyAccount(t *testing.T) {
	secret := b32("12345678901234567890")
	_, err := ProvisioningURI(secret, "", "Issuer", Options{})
	assert.ErrorIs(t, err, ErrEmptyAccount)
}

// Cross-check against the pquerna implementation in both directions.
func TestInterop(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)
	at := time.Unix(1700000000, 0)

	ours, err := GenerateTOTP(secret, at, Options{})
	require.NoError(t, err)

	theirs, err := pqtotp.GenerateCodeCustom(secret, at, pqtotp.ValidateOpts{
		Period:    30,
		Digits:    pqotp.DigitsSix,
		Algorithm: pqotp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	assert.Equal(t, theirs, ours)

	ok, err := pqtotp.ValidateCustom(ours, secret, at, pqtotp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    pqotp.DigitsSix,
		Algorithm: pqotp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	mine, err := ValidateAt(secret, theirs, at, 1, Options{})
	require.NoError(t, err)
	assert.True(t, mine)
}

func TestEndToEndScenario(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)

	uri, err := ProvisioningURI(secret, "alice", "ExampleIssuer", Options{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "otpauth://totp/ExampleIssuer:alice?secret="+secret))

	t0 := time.Unix(1700000000, 0)
	code, err := GenerateTOTP(secret, t0, Options{})
	require.NoError(t, err)

	ok, err := ValidateAt(secret, code, t0.Add(5*time.Second), 1, Options{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ValidateAt(secret, code, t0.Add(65*time.Second), 1, Options{})
	require.NoError(t, err)
	assert.False(t, ok)
}
