package codec

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := New(testSecret)
	require.NoError(t, err)
	return c
}

func TestNewRejectsMissingOrShortKey(t *testing.T) {
	_, err := New("")
	assert.True(t, errors.Is(err, ErrCrypto))

	_, err = New("short")
	assert.True(t, errors.Is(err, ErrCrypto))
}

func TestRoundTrip(t *testing.T) {
	c := newTestCodec(t)

	for _, in := range []string{
		"hello",
		"multi\nline with: colons: inside",
		"unicode ✨ ünïcødé",
		strings.Repeat("x", 64*1024),
		"https://example.com/uploads/abc.png",
	} {
		blob, err := c.Encrypt(in)
		require.NoError(t, err)
		assert.NotEqual(t, in, blob)

		out, err := c.Decrypt(blob)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestFreshNoncePerCall(t *testing.T) {
	c := newTestCodec(t)

	a, err := c.Encrypt("same")
	require.NoError(t, err)
	b, err := c.Encrypt("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, strings.Split(a, ":")[0], strings.Split(b, ":")[0])
}

func TestEmptyPassesThrough(t *testing.T) {
	c := newTestCodec(t)

	blob, err := c.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", blob)

	out, err := c.Decrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestDecryptMalformed(t *testing.T) {
	c := newTestCodec(t)
	valid, err := c.Encrypt("payload")
	require.NoError(t, err)
	nonceHex, ctHex, _ := strings.Cut(valid, ":")

	tampered := []byte(ctHex)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}

	cases := map[string]string{
		"plaintext":       "hello",
		"three segments":  valid + ":00",
		"bad nonce hex":   "zz:" + ctHex,
		"short nonce":     "abcd:" + ctHex,
		"bad cipher hex":  nonceHex + ":not-hex",
		"tampered cipher": nonceHex + ":" + string(tampered),
		"empty cipher":    nonceHex + ":",
	}
	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			out, err := c.Decrypt(blob)
			assert.True(t, errors.Is(err, ErrCrypto), "got %v", err)
			assert.Empty(t, out)
		})
	}
}

func TestDifferentKeyCannotDecrypt(t *testing.T) {
	a := newTestCodec(t)
	b, err := New(strings.Repeat("k", 40))
	require.NoError(t, err)

	blob, err := a.Encrypt("secret")
	require.NoError(t, err)

	_, err = b.Decrypt(blob)
	assert.True(t, errors.Is(err, ErrCrypto))
}

func TestNilCodecFails(t *testing.T) {
	var c *Codec
	_, err := c.Encrypt("x")
	assert.True(t, errors.Is(err, ErrCrypto))
}
