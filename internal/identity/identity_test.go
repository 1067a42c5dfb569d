package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, key *rsa.PrivateKey, claims AccessClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestJWTVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	v := NewJWTVerifier(&key.PublicKey, "auth-service", "music-room", 30*time.Second)
	v.now = func() time.Time { return now }

	base := AccessClaims{
		StandardClaims: jwt.StandardClaims{
			Subject:   "42",
			Issuer:    "auth-service",
			Audience:  "music-room",
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(time.Minute).Unix(),
		},
		Name: "Ann",
	}

	id, err := v.Verify(context.Background(), signToken(t, key, base))
	require.NoError(t, err)
	assert.Equal(t, "42", id.ID)
	assert.Equal(t, "Ann", id.Name)

	expired := base
	expired.ExpiresAt = now.Add(-time.Minute).Unix()
	_, err = v.Verify(context.Background(), signToken(t, key, expired))
	require.ErrorIs(t, err, ErrTokenExpired)

	skewed := base
	skewed.ExpiresAt = now.Add(-10 * time.Second).Unix()
	_, err = v.Verify(context.Background(), signToken(t, key, skewed))
	require.NoError(t, err, "expiry inside clock skew is accepted")

	wrongIss := base
	wrongIss.Issuer = "someone-else"
	_, err = v.Verify(context.Background(), signToken(t, key, wrongIss))
	require.ErrorIs(t, err, ErrInvalidIssuer)

	noSub := base
	noSub.Subject = ""
	_, err = v.Verify(context.Background(), signToken(t, key, noSub))
	require.ErrorIs(t, err, ErrInvalidSubject)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), signToken(t, other, base))
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify(context.Background(), " ")
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestRemoteVerifier_CachesIdentity(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/users/@me", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":"175928847299117063","username":"ann","global_name":"Ann","avatar":"abc"}`))
	}))
	defer srv.Close()

	v := NewRemoteVerifier(RemoteConfig{BaseURL: srv.URL}, srv.Client())

	id, err := v.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "175928847299117063", id.ID)
	assert.Equal(t, "Ann", id.Name)
	assert.Equal(t, "https://cdn.discordapp.com/avatars/175928847299117063/abc.png", id.AvatarURL)

	_, err = v.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	_, err = v.Verify(context.Background(), "bad")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRemoteVerifier_RejectsBadIDAndUpstreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer weird":
			_, _ = w.Write([]byte(`{"id":"not-a-snowflake","username":"x"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	v := NewRemoteVerifier(RemoteConfig{BaseURL: srv.URL}, srv.Client())

	_, err := v.Verify(context.Background(), "weird")
	require.ErrorIs(t, err, ErrInvalidSubject)

	_, err = v.Verify(context.Background(), "down")
	require.ErrorIs(t, err, ErrUpstream)
}

func TestLoadRSAPublicKeyFromPEM(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "public.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	pub, err := LoadRSAPublicKeyFromPEM(path)
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(pub))

	_, err = LoadRSAPublicKeyFromPEM(filepath.Join(t.TempDir(), "missing.pem"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
