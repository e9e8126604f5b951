package encryption

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mfa-service/internal/config"
)

func localManager() *Manager {
	return NewManager(&config.Config{KMS: config.KMSConfig{Enabled: false}}, nil)
}

func TestSealOpenRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := localManager()

	secret := "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"
	blob, keyID, err := m.SealSecret(ctx, secret)
	require.NoError(t, err)
	assert.Equal(t, "local", keyID)
	assert.NotContains(t, string(blob), secret, "plaintext must not appear in the blob")

	got, err := m.OpenSecret(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, secret, got)
}

func TestOpenSecret_ColdCache(t *testing.T) {
	ctx := context.Background()
	m := localManager()

	blob, _, err := m.SealSecret(ctx, "topsecret")
	require.NoError(t, err)

	// A fresh manager has no cached data keys, as after a restart.
	m2 := localManager()
	got, err := m2.OpenSecret(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, "topsecret", got)
}

func TestSealSecret_UniqueCiphertexts(t *testing.T) {
	ctx := context.Background()
	m := localManager()

	a, _, err := m.SealSecret(ctx, "same input")
	require.NoError(t, err)
	b, _, err := m.SealSecret(ctx, "same input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenSecret_Malformed(t *testing.T) {
	ctx := context.Background()
	m := localManager()

	_, err := m.OpenSecret(ctx, []byte("not json"))
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = m.OpenSecret(ctx, []byte(`{"v":"!!","dek":"!!","kid":"local","ver":"v1"}`))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestOpenSecret_TamperedCiphertext(t *testing.T) {
	ctx := context.Background()
	m := localManager()

	blob, _, err := m.SealSecret(ctx, "integrity matters")
	require.NoError(t, err)

	var env map[string]string
	require.NoError(t, json.Unmarshal(blob, &env))
	value := []byte(env["v"])
	if value[0] == 'A' {
		value[0] = 'B'
	} else {
		value[0] = 'A'
	}
	env["v"] = string(value)
	tampered, err := json.Marshal(env)
	require.NoError(t, err)

	m.ClearCache()
	_, err = m.OpenSecret(ctx, tampered)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}
