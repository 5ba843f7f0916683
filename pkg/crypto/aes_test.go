package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("oauth-access-token-value")

	ciphertext, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	assert.NotContains(t, string(ciphertext), string(plaintext))

	decrypted, err := Decrypt(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	key := testKey(t)

	c1, err := Encrypt([]byte("same input"), key)
	require.NoError(t, err)
	c2, err := Encrypt([]byte("same input"), key)
	require.NoError(t, err)

	assert.NotEqual(t, c1, c2)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	key := testKey(t)

	ciphertext, err := Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	ciphertext[len(ciphertext)-1] ^= 0xff
	_, err = Decrypt(ciphertext, key)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	ciphertext, err := Encrypt([]byte("secret"), testKey(t))
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, testKey(t))
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestRejectsBadKeySize(t *testing.T) {
	_, err := Encrypt([]byte("x"), []byte("too short"))
	assert.Error(t, err)

	_, err = Decrypt([]byte("x"), []byte("too short"))
	assert.Error(t, err)
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	_, err := Decrypt([]byte{0x01, 0x02}, testKey(t))
	assert.Error(t, err)
}
