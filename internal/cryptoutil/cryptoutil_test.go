package cryptoutil

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	cases := []struct {
		name      string
		plaintext string
		key       string
	}{
		{"empty plaintext", "", "k1"},
		{"short", "hello", "k1"},
		{"exact block", strings.Repeat("a", 16), "another key"},
		{"multi block unicode", "présence – ünïcode ✓ " + strings.Repeat("x", 40), "k"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ct, err := Encrypt(tc.plaintext, tc.key)
			require.NoError(t, err)
			assert.Contains(t, ct, ":")

			got, err := Decrypt(ct, tc.key)
			require.NoError(t, err)
			assert.Equal(t, tc.plaintext, got)
		})
	}
}

func TestEncrypt_RandomIV(t *testing.T) {
	a, err := Encrypt("same", "key")
	require.NoError(t, err)
	b, err := Encrypt("same", "key")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEncrypt_DefaultSecret(t *testing.T) {
	SetDefaultSecret("configured-secret")
	defer SetDefaultSecret("")

	ct, err := Encrypt("payload", "")
	require.NoError(t, err)

	got, err := Decrypt(ct, "configured-secret")
	require.NoError(t, err)
	assert.Equal(t, "payload", got)
}

func TestDecrypt_Malformed(t *testing.T) {
	for _, in := range []string{
		"",
		"no-separator",
		"zz:00",
		"00112233445566778899aabbccddeeff:nothex",
		"0011:00112233445566778899aabbccddeeff",
		"00112233445566778899aabbccddeeff:0011",
		"00112233445566778899aabbccddeeff:",
	} {
		_, err := Decrypt(in, "key")
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, ErrDecryption), in)
		var de *DecryptionError
		assert.True(t, errors.As(err, &de), in)
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	ct, err := Encrypt("sensitive field", "right")
	require.NoError(t, err)

	got, err := Decrypt(ct, "wrong")
	if err == nil {
		assert.NotEqual(t, "sensitive field", got)
		return
	}
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestHashPassword_Verify(t *testing.T) {
	h, err := HashPassword("correct horse")
	require.NoError(t, err)

	salt, hash, ok := strings.Cut(h, ":")
	require.True(t, ok)
	assert.Len(t, salt, 32)
	assert.Len(t, hash, 128)

	assert.True(t, VerifyPassword("correct horse", h))
	assert.False(t, VerifyPassword("correct horse ", h))
	assert.False(t, VerifyPassword("", h))
}

func TestHashPassword_Salted(t *testing.T) {
	a, err := HashPassword("pw")
	require.NoError(t, err)
	b, err := HashPassword("pw")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.True(t, VerifyPassword("pw", a))
	assert.True(t, VerifyPassword("pw", b))
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	assert.False(t, VerifyPassword("pw", ""))
	assert.False(t, VerifyPassword("pw", "nocolon"))
	assert.False(t, VerifyPassword("pw", "zz:00"))
	assert.False(t, VerifyPassword("pw", "00:0011"))
}
