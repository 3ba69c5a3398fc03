package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevTokens(t *testing.T) {
	v := &Verifier{Mode: "dev"}
	p, err := v.Verify("t1:Admin")
	require.NoError(t, err)
	assert.Equal(t, Principal{Tenant: "t1", Role: "admin"}, p)
	assert.True(t, p.IsAdmin())
	assert.True(t, p.CanSolve())

	_, err = v.Verify("no-role")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestHMACTokens(t *testing.T) {
	secret := []byte("s3cret")
	now := time.Unix(1_700_000_000, 0)
	v := &Verifier{Mode: "hmac", HMACSecret: secret, TenantClaim: "tenant", RoleClaim: "role", SubjectClaim: "sub", Now: func() time.Time { return now }}

	tok, err := SignHS256(secret, map[string]any{"tenant": "t9", "role": "solver", "sub": "u1", "exp": now.Add(time.Hour).Unix()})
	require.NoError(t, err)
	p, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "t9", p.Tenant)
	assert.Equal(t, RoleSolver, p.Role)
	assert.Equal(t, "u1", p.Subject)
	assert.True(t, p.CanSolve())
	assert.False(t, p.IsAdmin())

	forged, err := SignHS256([]byte("other"), map[string]any{"tenant": "t9"})
	require.NoError(t, err)
	_, err = v.Verify(forged)
	assert.ErrorIs(t, err, ErrSignature)

	expired, _ := SignHS256(secret, map[string]any{"tenant": "t9", "exp": now.Add(-time.Second).Unix()})
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrExpired)

	noTenant, _ := SignHS256(secret, map[string]any{"role": "admin"})
	_, err = v.Verify(noTenant)
	assert.ErrorIs(t, err, ErrNoTenant)

	viewer, _ := SignHS256(secret, map[string]any{"tenant": "t9"})
	p, err = v.Verify(viewer)
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, p.Role)
	assert.False(t, p.CanSolve())

	_, err = v.Verify("a.b")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestUnsupportedMode(t *testing.T) {
	secret := []byte("x")
	tok, _ := SignHS256(secret, map[string]any{"tenant": "t"})
	_, err := (&Verifier{Mode: "oauth"}).Verify(tok)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestJWKSTokens(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "k1",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	v := &Verifier{Mode: "jwks", TenantClaim: "tenant", RoleClaim: "role", SubjectClaim: "sub", keys: newKeySet(srv.URL, srv.Client(), time.Minute)}
	hdr, _ := json.Marshal(map[string]string{"alg": "RS256", "kid": "k1"})
	body, _ := json.Marshal(map[string]any{"tenant": "t2", "role": "admin"})
	input := base64.RawURLEncoding.EncodeToString(hdr) + "." + base64.RawURLEncoding.EncodeToString(body)
	h := sha256.Sum256([]byte(input))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, h[:])
	require.NoError(t, err)

	p, err := v.Verify(input + "." + base64.RawURLEncoding.EncodeToString(sig))
	require.NoError(t, err)
	assert.Equal(t, "t2", p.Tenant)
	assert.True(t, p.IsAdmin())

	_, err = v.Verify(input + "." + base64.RawURLEncoding.EncodeToString([]byte("nope")))
	assert.ErrorIs(t, err, ErrSignature)
}
