// Package cryptoutil implements field encryption and password hashing.
//
// Ciphertexts are "iv_hex:ciphertext_hex" (AES-256-CBC, PKCS#7) and password
// hashes are "salt_hex:hash_hex" (PBKDF2-SHA512, 10,000 rounds, 64 bytes).
// Both formats are persisted, so the parameters below must not change
// without a format version.
package cryptoutil

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	ivSize           = aes.BlockSize
	saltSize         = 16
	pbkdf2Iterations = 10000
	pbkdf2KeyLen     = 64
)

// ErrDecryption is matched by every error Decrypt returns.
var ErrDecryption = errors.New("decryption failed")

// DecryptionError describes why a ciphertext could not be opened.
type DecryptionError struct {
	Reason string
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDecryption.Error(), e.Reason)
}

func (e *DecryptionError) Unwrap() error { return ErrDecryption }

var (
	secretMu      sync.RWMutex
	defaultSecret = ""
)

// SetDefaultSecret configures the key used when Encrypt/Decrypt get an empty key.
func SetDefaultSecret(secret string) {
	secretMu.Lock()
	defaultSecret = secret
	secretMu.Unlock()
}

func deriveKey(key string) []byte {
	if key == "" {
		secretMu.RLock()
		key = defaultSecret
		secretMu.RUnlock()
	}
	sum := sha256.Sum256([]byte(key))
	return sum[:]
}

// Encrypt seals plaintext with a fresh random IV.
func Encrypt(plaintext, key string) (string, error) {
	block, err := aes.NewCipher(deriveKey(key))
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. A malformed value or a wrong key yields a
// *DecryptionError; with a wrong key the padding check catches almost every
// case, the remainder decodes to garbage.
func Decrypt(ciphertext, key string) (string, error) {
	ivHex, dataHex, ok := strings.Cut(ciphertext, ":")
	if !ok {
		return "", &DecryptionError{Reason: "missing iv separator"}
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != ivSize {
		return "", &DecryptionError{Reason: "invalid iv"}
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", &DecryptionError{Reason: "invalid ciphertext encoding"}
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", &DecryptionError{Reason: "ciphertext is not a multiple of the block size"}
	}

	block, err := aes.NewCipher(deriveKey(key))
	if err != nil {
		return "", &DecryptionError{Reason: err.Error()}
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)

	plain, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", &DecryptionError{Reason: err.Error()}
	}
	return string(plain), nil
}

// HashPassword returns "salt_hex:hash_hex".
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha512.New)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(hash), nil
}

// VerifyPassword reports whether password matches a HashPassword result.
func VerifyPassword(password, salted string) bool {
	saltHex, hashHex, ok := strings.Cut(salted, ":")
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(hashHex)
	if err != nil || len(want) != pbkdf2KeyLen {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha512.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size {
		return nil, errors.New("invalid padding")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
