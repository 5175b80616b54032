package secretbox

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = byte(i + 1)
	}
	return k
}

func TestSealOpen(t *testing.T) {
	b, err := New(testKey())
	require.NoError(t, err)

	ct, err := b.Seal("exact client secret")
	require.NoError(t, err)
	assert.Contains(t, ct, "|")

	pt, err := b.Open(ct)
	require.NoError(t, err)
	assert.Equal(t, "exact client secret", pt)

	other, err := b.Seal("exact client secret")
	require.NoError(t, err)
	assert.NotEqual(t, ct, other, "nonce must differ")
}

func TestOpen_DetectsTamper(t *testing.T) {
	b, err := New(testKey())
	require.NoError(t, err)
	ct, err := b.Seal("top secret")
	require.NoError(t, err)

	nonce, body, _ := strings.Cut(ct, "|")
	raw, err := base64.StdEncoding.DecodeString(body)
	require.NoError(t, err)
	raw[0] ^= 0xFF
	_, err = b.Open(nonce + "|" + base64.StdEncoding.EncodeToString(raw))
	require.Error(t, err)

	_, err = b.Open("no-separator")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseKey(t *testing.T) {
	k := testKey()
	for _, enc := range []string{
		base64.StdEncoding.EncodeToString(k),
		base64.RawStdEncoding.EncodeToString(k),
		hex.EncodeToString(k),
	} {
		got, err := ParseKey(enc)
		require.NoError(t, err, enc)
		assert.Equal(t, k, got)
	}
	_, err := ParseKey("short")
	require.Error(t, err)
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvVar, "")
	_, err := FromEnv()
	assert.ErrorIs(t, err, ErrNoKey)

	t.Setenv(EnvVar, base64.StdEncoding.EncodeToString(testKey()))
	b, err := FromEnv()
	require.NoError(t, err)
	require.NotNil(t, b)
}

func TestResolve(t *testing.T) {
	b, err := New(testKey())
	require.NoError(t, err)

	v, err := Resolve(nil, "plain-secret")
	require.NoError(t, err)
	assert.Equal(t, "plain-secret", v)

	sealed, err := b.Seal("s3cr3t")
	require.NoError(t, err)
	v, err = Resolve(b, SealedPrefix+sealed)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", v)

	_, err = Resolve(nil, SealedPrefix+sealed)
	assert.ErrorIs(t, err, ErrNoKey)
}
