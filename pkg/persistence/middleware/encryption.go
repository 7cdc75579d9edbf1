package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/aretw0/menuflow/pkg/ports"
)

const envelopeKey = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

// ParseKey decodes a base64 AES-256 key.
func ParseKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("session key is not base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("session key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

type encryptionMiddleware struct {
	next   ports.SessionStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts captured session
// variables with AES-GCM. Routing fields (menu, version, expiry) stay in the
// clear so the wrapped store can still compare versions and expire sessions.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.SessionStore) ports.SessionStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) seal(s *domain.Session) (*domain.Session, error) {
	plainText, err := json.Marshal(s.Variables)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal variables: %w", err)
	}
	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt variables: %w", err)
	}
	envelope := s.Clone()
	envelope.Variables = map[string]string{
		envelopeKey: base64.StdEncoding.EncodeToString(ciphertext),
	}
	return envelope, nil
}

func (m *encryptionMiddleware) open(envelope *domain.Session) (*domain.Session, error) {
	encryptedStr, ok := envelope.Variables[envelopeKey]
	if !ok {
		// Fail secure: a plain session means encryption was bypassed.
		return nil, errors.New("session is missing encrypted data envelope")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encryptedStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session: %w", err)
	}
	vars := make(map[string]string)
	if err := json.Unmarshal(plainText, &vars); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted variables: %w", err)
	}
	out := envelope.Clone()
	out.Variables = vars
	return out, nil
}

func (m *encryptionMiddleware) Get(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	envelope, err := m.next.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return m.open(envelope)
}

func (m *encryptionMiddleware) Put(ctx context.Context, key domain.SessionKey, session *domain.Session, ttl time.Duration) error {
	envelope, err := m.seal(session)
	if err != nil {
		return err
	}
	return m.next.Put(ctx, key, envelope, ttl)
}

func (m *encryptionMiddleware) Delete(ctx context.Context, key domain.SessionKey) error {
	return m.next.Delete(ctx, key)
}

func (m *encryptionMiddleware) CompareAndSwap(ctx context.Context, key domain.SessionKey, expected uint64, next *domain.Session) error {
	envelope, err := m.seal(next)
	if err != nil {
		return err
	}
	if err := m.next.CompareAndSwap(ctx, key, expected, envelope); err != nil {
		return err
	}
	next.Version = envelope.Version
	return nil
}

func (m *encryptionMiddleware) CompareAndDelete(ctx context.Context, key domain.SessionKey, id string, expected uint64) error {
	return m.next.CompareAndDelete(ctx, key, id, expected)
}

// Sweep forwards to the wrapped store when it needs sweeping.
func (m *encryptionMiddleware) Sweep(ctx context.Context, now time.Time) (int, error) {
	if sweeper, ok := m.next.(ports.Sweeper); ok {
		return sweeper.Sweep(ctx, now)
	}
	return 0, nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}
