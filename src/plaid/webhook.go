package plaid

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/plaid/plaid-go/v41/plaid"
)

// Webhook verification follows https://plaid.com/docs/api/webhooks/webhook-verification/

const maxWebhookAge = 5 * time.Minute

// KeyFetcher returns the verification key Plaid published under kid.
type KeyFetcher func(ctx context.Context, kid string) (*plaid.JWKPublicKey, error)

// WebhookVerifier checks the Plaid-Verification header of incoming webhooks.
type WebhookVerifier struct {
	fetch KeyFetcher
	now   func() time.Time

	mu   sync.Mutex
	keys map[string]*plaid.JWKPublicKey
}

func NewWebhookVerifier(client *plaid.APIClient) *WebhookVerifier {
	return newWebhookVerifier(func(ctx context.Context, kid string) (*plaid.JWKPublicKey, error) {
		req := *plaid.NewWebhookVerificationKeyGetRequest(kid)
		resp, _, err := client.PlaidApi.WebhookVerificationKeyGet(ctx).WebhookVerificationKeyGetRequest(req).Execute()
		if err != nil {
			return nil, err
		}
		key := resp.GetKey()
		return &key, nil
	}, time.Now)
}

func newWebhookVerifier(fetch KeyFetcher, now func() time.Time) *WebhookVerifier {
	return &WebhookVerifier{fetch: fetch, now: now, keys: map[string]*plaid.JWKPublicKey{}}
}

// Verify returns nil when body was signed by Plaid less than five minutes ago.
func (v *WebhookVerifier) Verify(ctx context.Context, header http.Header, body []byte) error {
	tokenString := header.Get("Plaid-Verification")
	if tokenString == "" {
		return errors.New("missing Plaid-Verification header")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}), jwt.WithoutClaimsValidation())
	unverified, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return fmt.Errorf("parse unverified token: %w", err)
	}
	if unverified.Method.Alg() != jwt.SigningMethodES256.Alg() {
		return fmt.Errorf("unexpected alg %q (want ES256)", unverified.Method.Alg())
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return errors.New("missing kid in JWT header")
	}

	jwk, err := v.key(ctx, kid)
	if err != nil {
		return fmt.Errorf("get JWK: %w", err)
	}
	pubKey, err := jwkToECDSAPublicKey(jwk)
	if err != nil {
		return fmt.Errorf("jwk->ecdsa: %w", err)
	}

	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return pubKey, nil
	})
	if err != nil || !token.Valid {
		return fmt.Errorf("invalid token: %w", err)
	}

	iat, ok := claims["iat"].(float64)
	if !ok {
		return errors.New("missing iat")
	}
	if v.now().Sub(time.Unix(int64(iat), 0)) > maxWebhookAge {
		return errors.New("token too old (>5m)")
	}

	wantHash, ok := claims["request_body_sha256"].(string)
	if !ok || wantHash == "" {
		return errors.New("missing request_body_sha256")
	}
	sum := sha256.Sum256(body)
	gotHex := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(gotHex), []byte(strings.ToLower(wantHash))) != 1 {
		return errors.New("body hash mismatch")
	}
	return nil
}

func (v *WebhookVerifier) key(ctx context.Context, kid string) (*plaid.JWKPublicKey, error) {
	v.mu.Lock()
	cached, ok := v.keys[kid]
	v.mu.Unlock()
	if ok {
		return cached, nil
	}

	key, err := v.fetch(ctx, kid)
	if err != nil {
		return nil, err
	}
	if key.Kid == kid {
		v.mu.Lock()
		v.keys[kid] = key
		v.mu.Unlock()
	}
	return key, nil
}

func jwkToECDSAPublicKey(jwk *plaid.JWKPublicKey) (*ecdsa.PublicKey, error) {
	if jwk == nil || jwk.X == "" || jwk.Y == "" || jwk.Kty != "EC" || jwk.Crv != "P-256" {
		return nil, errors.New("invalid/unsupported JWK")
	}
	xBytes, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil {
		return nil, fmt.Errorf("decode x: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(jwk.Y)
	if err != nil {
		return nil, fmt.Errorf("decode y: %w", err)
	}
	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}
