package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/menuflow/pkg/adapters/memory"
	"github.com/aretw0/menuflow/pkg/domain"
	"github.com/aretw0/menuflow/pkg/persistence/middleware"
	"github.com/aretw0/menuflow/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

var key = domain.SessionKey{OrganizationID: "acme", Channel: domain.ChannelWhatsApp, CustomerAddress: "5511"}

func newSession() *domain.Session {
	s := domain.NewSession("s1", key, "support", "order-id", time.Now(), time.Hour)
	s.Variables["order"] = "A-1234"
	return s
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ports.RunSessionStoreContract(t, mw(memory.NewStore()))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)

	s := newSession()
	require.NoError(t, secure.CompareAndSwap(ctx, key, 0, s))
	assert.Equal(t, uint64(1), s.Version)
	assert.Equal(t, "A-1234", s.Variables["order"], "caller's session must stay readable")

	stored, err := underlying.Get(ctx, key)
	require.NoError(t, err)
	assert.NotContains(t, stored.Variables, "order")
	assert.Contains(t, stored.Variables, "__encrypted__")
	assert.Equal(t, "order-id", stored.MenuID)

	loaded, err := secure.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "A-1234", loaded.Variables["order"])
	assert.Equal(t, uint64(1), loaded.Version)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)

	secureOld := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)
	require.NoError(t, secureOld.CompareAndSwap(ctx, key, 0, newSession()))

	secureNew := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlying)

	loaded, err := secureNew.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "A-1234", loaded.Variables["order"])

	loaded.Variables["order"] = "B-9"
	require.NoError(t, secureNew.CompareAndSwap(ctx, key, loaded.Version, loaded))

	_, err = secureOld.Get(ctx, key)
	assert.Error(t, err, "old key alone must not open data sealed with the new key")
}

func TestEncryptionMiddleware_RejectsPlainSession(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	require.NoError(t, underlying.CompareAndSwap(ctx, key, 0, newSession()))

	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	_, err := secure.Get(ctx, key)
	assert.ErrorContains(t, err, "envelope")
}

func TestEncryptionMiddleware_SweepForwards(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	underlying := memory.NewStore(memory.WithClock(func() time.Time { return now }))
	secure := middleware.Chain(underlying, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)}))

	require.NoError(t, secure.Put(ctx, key, newSession(), time.Minute))

	n, err := secure.(ports.Sweeper).Sweep(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	})
}

func TestParseKey(t *testing.T) {
	raw := generateKey(t)
	got, err := middleware.ParseKey(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = middleware.ParseKey("not base64!")
	assert.Error(t, err)
	_, err = middleware.ParseKey(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}
