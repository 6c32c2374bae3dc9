package token

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"
)

// KeyProvider resolves a token's kid header to a verification key.
type KeyProvider interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// StaticKeySet is a fixed KeyProvider.
type StaticKeySet map[string]*rsa.PublicKey

// Key implements KeyProvider.
func (s StaticKeySet) Key(_ context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok := s[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid %q", ErrNoSigningKey, kid)
}

// JSONWebKey is the RSA subset of RFC 7517 the identity providers publish.
type JSONWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg,omitempty"`
	Use string `json:"use,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JSONWebKeySet is a published key set document.
type JSONWebKeySet struct {
	Keys []JSONWebKey `json:"keys"`
}

const minRefreshInterval = 30 * time.Second

// KeySet fetches a remote JWKS document and caches its keys by kid. An
// unknown kid triggers at most one fetch attempt per minRefreshInterval,
// failed attempts included; a throttled call reports the last failure.
type KeySet struct {
	url        string
	httpClient *http.Client
	cache      *ttlcache.Cache[string, *rsa.PublicKey]

	mu          sync.Mutex
	lastRefresh time.Time
	lastErr     error
}

// NewKeySet creates a KeySet for the JWKS document at url.
func NewKeySet(url string, ttl time.Duration, httpClient *http.Client) *KeySet {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &KeySet{
		url:        url,
		httpClient: httpClient,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, *rsa.PublicKey](ttl),
			ttlcache.WithDisableTouchOnHit[string, *rsa.PublicKey](),
		),
	}
}

// Key implements KeyProvider.
func (k *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if item := k.cache.Get(kid); item != nil {
		return item.Value(), nil
	}
	if err := k.refresh(ctx); err != nil {
		return nil, err
	}
	if item := k.cache.Get(kid); item != nil {
		return item.Value(), nil
	}
	return nil, fmt.Errorf("%w: kid %q", ErrNoSigningKey, kid)
}

func (k *KeySet) refresh(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.lastRefresh.IsZero() && time.Since(k.lastRefresh) < minRefreshInterval {
		return k.lastErr
	}
	k.lastRefresh = time.Now()
	k.lastErr = k.fetch(ctx)
	return k.lastErr
}

func (k *KeySet) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return fmt.Errorf("build jwks request: %w", err)
	}
	resp, err := k.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: unexpected status %d", resp.StatusCode)
	}

	var set JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	k.cache.DeleteExpired()
	for _, jwk := range set.Keys {
		pub, err := jwk.RSAPublicKey()
		if err != nil {
			log.Debug().Err(err).Str("kid", jwk.Kid).Msg("skipping unusable jwk")
			continue
		}
		k.cache.Set(jwk.Kid, pub, ttlcache.DefaultTTL)
	}
	return nil
}

// RSAPublicKey decodes the modulus and exponent of an RSA JWK.
func (j JSONWebKey) RSAPublicKey() (*rsa.PublicKey, error) {
	if j.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type %q", j.Kty)
	}
	if j.Kid == "" {
		return nil, errors.New("jwk has no kid")
	}
	n, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() < 3 {
		return nil, errors.New("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}

// NewJSONWebKey encodes pub as an RS256 signing JWK.
func NewJSONWebKey(kid string, pub *rsa.PublicKey) JSONWebKey {
	return JSONWebKey{
		Kid: kid,
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}
