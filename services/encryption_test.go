package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEncryption(t *testing.T) *EncryptionService {
	key := sha256.Sum256([]byte("test-key"))
	block, err := aes.NewCipher(key[:])
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)
	return &EncryptionService{gcm: gcm}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc := newTestEncryption(t)

	ciphertext, err := svc.Encrypt("alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "alice@example.com", ciphertext)

	plaintext, err := svc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", plaintext)
}

func TestEncryptProducesUniqueCiphertexts(t *testing.T) {
	svc := newTestEncryption(t)

	a, err := svc.Encrypt("alice@example.com")
	require.NoError(t, err)
	b, err := svc.Encrypt("alice@example.com")
	require.NoError(t, err)

	// Random nonces make equal plaintexts unlinkable.
	assert.NotEqual(t, a, b)
}

func TestEncryptEmptyPassthrough(t *testing.T) {
	svc := newTestEncryption(t)

	ciphertext, err := svc.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", ciphertext)

	plaintext, err := svc.Decrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", plaintext)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	svc := newTestEncryption(t)

	_, err := svc.Decrypt("not base64!!!")
	assert.Error(t, err)

	_, err = svc.Decrypt("YWJj") // valid base64, shorter than a nonce
	assert.Error(t, err)
}

func TestDecryptRejectsTampering(t *testing.T) {
	svc := newTestEncryption(t)

	ciphertext, err := svc.Encrypt("alice@example.com")
	require.NoError(t, err)

	tampered := []byte(ciphertext)
	tampered[len(tampered)-5] ^= 'x'
	_, err = svc.Decrypt(string(tampered))
	assert.Error(t, err)
}

func TestEmailHashDeterministic(t *testing.T) {
	assert.Equal(t, EmailHash("alice@example.com"), EmailHash("alice@example.com"))
	assert.Len(t, EmailHash("alice@example.com"), 64)
}

func TestEmailHashNormalizes(t *testing.T) {
	assert.Equal(t, EmailHash("alice@example.com"), EmailHash("  Alice@Example.COM "))
	assert.NotEqual(t, EmailHash("alice@example.com"), EmailHash("bob@example.com"))
}
