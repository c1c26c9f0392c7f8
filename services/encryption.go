package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"strings"

	appContext "github.com/alphabatem/common/context"
)

// EncryptionService encrypts personal fields at rest with AES-GCM. The
// key is derived from FIELD_ENCRYPTION_KEY; ciphertexts carry their nonce
// so rows stay self-contained.
type EncryptionService struct {
	appContext.DefaultService

	gcm cipher.AEAD
}

const ENCRYPTION_SVC = "encryption_svc"

func (svc EncryptionService) Id() string {
	return ENCRYPTION_SVC
}

func (svc *EncryptionService) Configure(ctx *appContext.Context) error {
	secret := os.Getenv("FIELD_ENCRYPTION_KEY")
	if secret == "" {
		return errors.New("FIELD_ENCRYPTION_KEY is required")
	}

	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return err
	}
	svc.gcm, err = cipher.NewGCM(block)
	if err != nil {
		return err
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *EncryptionService) Start() error {
	return nil
}

// Encrypt returns base64(nonce || ciphertext). Empty input passes through
// so optional columns stay empty instead of becoming opaque blobs.
func (svc *EncryptionService) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, svc.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := svc.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (svc *EncryptionService) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(sealed) < svc.gcm.NonceSize() {
		return "", errors.New("ciphertext shorter than nonce")
	}

	nonce, ciphertext := sealed[:svc.gcm.NonceSize()], sealed[svc.gcm.NonceSize():]
	plaintext, err := svc.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// EmailHash gives a deterministic lookup key for an encrypted email
// column. Lowercased so lookups are case-insensitive.
func EmailHash(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}
