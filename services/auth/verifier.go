// Package authsvc verifies identity provider tokens and implements the identity providers.
package authsvc

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/trezcool/learninghub/core/identity"
)

const (
	defaultLeeway       = 30 * time.Second
	defaultJWKSCacheTTL = 5 * time.Minute
)

var errUnknownKey = errors.New("unknown token key")

type tokenClaims struct {
	jwt.RegisteredClaims
	Email           string   `json:"email,omitempty"`
	Username        string   `json:"username,omitempty"`
	CognitoUsername string   `json:"cognito:username,omitempty"`
	Groups          []string `json:"cognito:groups,omitempty"`
	TokenUse        string   `json:"token_use,omitempty"`
	ClientID        string   `json:"client_id,omitempty"`
}

func (c tokenClaims) identity() identity.Claims {
	return identity.Claims{
		Sub:             c.Subject,
		Email:           c.Email,
		Username:        c.Username,
		CognitoUsername: c.CognitoUsername,
		Groups:          c.Groups,
		TokenUse:        c.TokenUse,
		ClientID:        c.ClientID,
	}
}

// Verifier validates RS256 tokens against a JWKS endpoint.
// Keys are cached until the Cache-Control max-age expires or an unknown kid shows up.
type Verifier struct {
	jwksURL  string
	issuer   string
	clientID string // empty skips the audience check
	leeway   time.Duration
	client   *http.Client

	mu         sync.RWMutex
	keys       map[string]*rsa.PublicKey
	keysExpire time.Time
	refreshes  singleflight.Group
}

var _ identity.Verifier = (*Verifier)(nil)

func NewVerifier(jwksURL, issuer, clientID string, client *http.Client) *Verifier {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Verifier{
		jwksURL:  jwksURL,
		issuer:   issuer,
		clientID: clientID,
		leeway:   defaultLeeway,
		client:   client,
	}
}

func (v *Verifier) Verify(ctx context.Context, token string) (identity.Claims, error) {
	if v.keysExpired() {
		if err := v.refresh(ctx); err != nil {
			return identity.Claims{}, err
		}
	}
	claims, err := v.parse(token)
	if errors.Is(err, errUnknownKey) {
		if err = v.refresh(ctx); err != nil {
			return identity.Claims{}, err
		}
		claims, err = v.parse(token)
	}
	if err != nil {
		return identity.Claims{}, errors.Wrap(identity.ErrInvalidToken, err.Error())
	}
	if err = v.checkAudience(claims); err != nil {
		return identity.Claims{}, errors.Wrap(identity.ErrInvalidToken, err.Error())
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return identity.Claims{}, errors.Wrap(identity.ErrInvalidToken, "token subject missing")
	}
	return claims.identity(), nil
}

func (v *Verifier) parse(token string) (tokenClaims, error) {
	var claims tokenClaims
	keys := v.copyKeys()
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := keys[strings.TrimSpace(kid)]
		if !ok {
			return nil, errUnknownKey
		}
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	return claims, err
}

// checkAudience: ID tokens carry the app client in `aud`, access tokens in `client_id`.
func (v *Verifier) checkAudience(claims tokenClaims) error {
	if v.clientID == "" {
		return nil
	}
	if claims.TokenUse == "access" || claims.ClientID != "" {
		if claims.ClientID != v.clientID {
			return errors.New("token client_id mismatch")
		}
		return nil
	}
	for _, aud := range claims.Audience {
		if aud == v.clientID {
			return nil
		}
	}
	return errors.New("token audience mismatch")
}

func (v *Verifier) keysExpired() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return time.Now().After(v.keysExpire)
}

func (v *Verifier) copyKeys() map[string]*rsa.PublicKey {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]*rsa.PublicKey, len(v.keys))
	for kid, key := range v.keys {
		out[kid] = key
	}
	return out
}

// refresh fetches the key set. Concurrent callers share one request.
func (v *Verifier) refresh(ctx context.Context) error {
	_, err, _ := v.refreshes.Do("jwks", func() (interface{}, error) {
		keys, ttl, err := fetchJWKS(ctx, v.client, v.jwksURL)
		if err != nil {
			return nil, err
		}
		v.mu.Lock()
		v.keys = keys
		v.keysExpire = time.Now().Add(ttl)
		v.mu.Unlock()
		return nil, nil
	})
	return err
}

type (
	jwk struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		Use string `json:"use,omitempty"`
		Alg string `json:"alg,omitempty"`
		N   string `json:"n"`
		E   string `json:"e"`
	}

	jwkSet struct {
		Keys []jwk `json:"keys"`
	}
)

func fetchJWKS(ctx context.Context, client *http.Client, url string) (map[string]*rsa.PublicKey, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, errors.Wrap(err, "building jwks request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, errors.Wrap(err, "fetching jwks")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("fetching jwks: status %d", resp.StatusCode)
	}

	var set jwkSet
	if err = json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, 0, errors.Wrap(err, "decoding jwks")
	}
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		kid := strings.TrimSpace(k.Kid)
		if !strings.EqualFold(k.Kty, "RSA") || kid == "" {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[kid] = pub
	}
	if len(keys) == 0 {
		return nil, 0, errors.New("jwks contains no usable rsa keys")
	}

	ttl := parseCacheMaxAge(resp.Header.Get("Cache-Control"))
	if ttl <= 0 {
		ttl = defaultJWKSCacheTTL
	}
	return keys, ttl, nil
}

func parseRSAPublicKey(nRaw, eRaw string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(nRaw))
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(eRaw))
	if err != nil {
		return nil, err
	}
	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	if n.Sign() <= 0 || !e.IsInt64() || e.Int64() <= 0 {
		return nil, errors.New("invalid rsa key")
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

// publicJWK encodes an RSA public key as a JWK.
func publicJWK(kid string, pub *rsa.PublicKey) jwk {
	return jwk{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: jwt.SigningMethodRS256.Alg(),
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func parseCacheMaxAge(cacheControl string) time.Duration {
	for _, part := range strings.Split(cacheControl, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if !strings.HasPrefix(part, "max-age=") {
			continue
		}
		secs, err := time.ParseDuration(strings.TrimPrefix(part, "max-age=") + "s")
		if err != nil {
			return 0
		}
		return secs
	}
	return 0
}
