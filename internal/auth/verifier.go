// Package auth verifies bearer tokens and extracts the tenant and role of the caller.
package auth

import (
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// Roles understood by the API.
const (
	RoleAdmin  = "admin"
	RoleSolver = "solver"
	RoleViewer = "viewer"
)

var (
	ErrMalformed   = errors.New("malformed token")
	ErrSignature   = errors.New("bad signature")
	ErrExpired     = errors.New("token expired")
	ErrNoTenant    = errors.New("missing tenant claim")
	ErrUnsupported = errors.New("unsupported auth mode")
)

type Principal struct {
	Tenant  string
	Role    string
	Subject string
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// CanSolve reports whether the principal may create instances and start runs.
func (p Principal) CanSolve() bool { return p.Role == RoleAdmin || p.Role == RoleSolver }

// Verifier validates tokens in one of three modes: dev ("tenant:role" tokens, no
// signature), hmac (HS256 JWT) or jwks (RS256 JWT, keys fetched from AUTH_JWKS_URL).
type Verifier struct {
	Mode         string
	HMACSecret   []byte
	JWKSURL      string
	TenantClaim  string
	RoleClaim    string
	SubjectClaim string
	Now          func() time.Time

	keys *keySet
}

func NewVerifierFromEnv() *Verifier {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv("AUTH_MODE")))
	if mode == "" {
		mode = "dev"
	}
	v := &Verifier{
		Mode:         mode,
		HMACSecret:   []byte(os.Getenv("AUTH_HMAC_SECRET")),
		JWKSURL:      os.Getenv("AUTH_JWKS_URL"),
		TenantClaim:  envOr("AUTH_TENANT_CLAIM", "tenant"),
		RoleClaim:    envOr("AUTH_ROLE_CLAIM", "role"),
		SubjectClaim: envOr("AUTH_SUBJECT_CLAIM", "sub"),
	}
	if v.JWKSURL != "" {
		v.keys = newKeySet(v.JWKSURL, &http.Client{Timeout: 5 * time.Second}, 10*time.Minute)
	}
	return v
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *Verifier) Verify(token string) (Principal, error) {
	if v.Mode == "dev" {
		tenant, role, ok := strings.Cut(token, ":")
		if !ok || tenant == "" || role == "" {
			return Principal{}, fmt.Errorf("%w: expected tenant:role", ErrMalformed)
		}
		return Principal{Tenant: tenant, Role: strings.ToLower(role)}, nil
	}
	tok, err := parseJWT(token)
	if err != nil {
		return Principal{}, err
	}
	switch v.Mode {
	case "hmac":
		if tok.alg != "HS256" {
			return Principal{}, fmt.Errorf("%w: alg %s", ErrSignature, tok.alg)
		}
		mac := hmac.New(sha256.New, v.HMACSecret)
		mac.Write(tok.signingInput)
		if !hmac.Equal(mac.Sum(nil), tok.sig) {
			return Principal{}, ErrSignature
		}
	case "jwks":
		if tok.alg != "RS256" || v.keys == nil {
			return Principal{}, fmt.Errorf("%w: alg %s", ErrSignature, tok.alg)
		}
		pub, err := v.keys.lookup(tok.kid)
		if err != nil {
			return Principal{}, err
		}
		h := sha256.Sum256(tok.signingInput)
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, h[:], tok.sig); err != nil {
			return Principal{}, ErrSignature
		}
	default:
		return Principal{}, fmt.Errorf("%w: %s", ErrUnsupported, v.Mode)
	}
	if exp, ok := tok.claims["exp"].(float64); ok && v.now().Unix() >= int64(exp) {
		return Principal{}, ErrExpired
	}
	tenant, _ := tok.claims[v.TenantClaim].(string)
	if tenant == "" {
		return Principal{}, ErrNoTenant
	}
	role, _ := tok.claims[v.RoleClaim].(string)
	if role == "" {
		role = RoleViewer
	}
	sub, _ := tok.claims[v.SubjectClaim].(string)
	return Principal{Tenant: tenant, Role: strings.ToLower(role), Subject: sub}, nil
}

type jwt struct {
	alg, kid     string
	claims       map[string]any
	sig          []byte
	signingInput []byte
}

func parseJWT(token string) (jwt, error) {
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return jwt{}, ErrMalformed
	}
	var raw [3][]byte
	for i, s := range segs {
		b, err := base64.RawURLEncoding.DecodeString(s)
		if err != nil {
			return jwt{}, fmt.Errorf("%w: segment %d: %v", ErrMalformed, i, err)
		}
		raw[i] = b
	}
	var hdr struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(raw[0], &hdr); err != nil {
		return jwt{}, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	t := jwt{alg: hdr.Alg, kid: hdr.Kid, sig: raw[2], signingInput: []byte(segs[0] + "." + segs[1])}
	if err := json.Unmarshal(raw[1], &t.claims); err != nil {
		return jwt{}, fmt.Errorf("%w: claims: %v", ErrMalformed, err)
	}
	return t, nil
}

// SignHS256 issues an HS256 token over claims. Used by tooling and tests.
func SignHS256(secret []byte, claims map[string]any) (string, error) {
	hdr, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	body, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	input := base64.RawURLEncoding.EncodeToString(hdr) + "." + base64.RawURLEncoding.EncodeToString(body)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(input))
	return input + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// keySet caches the RSA keys of a JWKS endpoint.
type keySet struct {
	url  string
	http *http.Client
	ttl  time.Duration

	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	fetched time.Time
}

func newKeySet(url string, c *http.Client, ttl time.Duration) *keySet {
	return &keySet{url: url, http: c, ttl: ttl}
}

func (k *keySet) lookup(kid string) (*rsa.PublicKey, error) {
	k.mu.RLock()
	pub, ok := k.keys[kid]
	stale := time.Since(k.fetched) > k.ttl
	k.mu.RUnlock()
	if ok && !stale {
		return pub, nil
	}
	if err := k.refresh(); err != nil {
		return nil, err
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if pub, ok := k.keys[kid]; ok {
		return pub, nil
	}
	return nil, fmt.Errorf("kid %q not found in JWKS", kid)
}

func (k *keySet) refresh() error {
	resp, err := k.http.Get(k.url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	var doc struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return err
	}
	keys := map[string]*rsa.PublicKey{}
	for _, jk := range doc.Keys {
		if !strings.EqualFold(jk.Kty, "RSA") {
			continue
		}
		n, err := base64.RawURLEncoding.DecodeString(jk.N)
		if err != nil {
			continue
		}
		e, err := base64.RawURLEncoding.DecodeString(jk.E)
		if err != nil {
			continue
		}
		exp := 0
		for _, b := range e {
			exp = exp<<8 | int(b)
		}
		keys[jk.Kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: exp}
	}
	k.mu.Lock()
	k.keys = keys
	k.fetched = time.Now()
	k.mu.Unlock()
	return nil
}
