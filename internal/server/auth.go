package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tradeproof/pkg/types"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// TokenVerifier turns a bearer token into the caller's user id.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// JWKSVerifier checks token signatures against a published key set and
// takes the caller id from the subject claim.
type JWKSVerifier struct {
	keys   func(ctx context.Context) (jwk.Set, error)
	issuer string
}

// NewJWKSVerifier registers jwksURL with a refreshing cache. The first fetch
// happens here so a bad URL fails at startup.
func NewJWKSVerifier(ctx context.Context, jwksURL, issuer string) (*JWKSVerifier, error) {
	cache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jwk cache: %w", err)
	}

	if err := cache.Register(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("failed to register jwks url with cache: %w", err)
	}

	return &JWKSVerifier{
		keys: func(ctx context.Context) (jwk.Set, error) {
			return cache.Lookup(ctx, jwksURL)
		},
		issuer: issuer,
	}, nil
}

// NewStaticVerifier verifies against a fixed key set.
func NewStaticVerifier(set jwk.Set, issuer string) *JWKSVerifier {
	return &JWKSVerifier{
		keys:   func(context.Context) (jwk.Set, error) { return set, nil },
		issuer: issuer,
	}
}

func (v *JWKSVerifier) Verify(ctx context.Context, raw string) (string, error) {
	set, err := v.keys(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch jwks: %w", err)
	}

	opts := []jwt.ParseOption{
		jwt.WithKeySet(set),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(30 * time.Second),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.Parse([]byte(raw), opts...)
	if err != nil {
		return "", fmt.Errorf("parse jwt: %w", err)
	}

	userID, ok := token.Subject()
	if !ok || userID == "" {
		return "", fmt.Errorf("jwt has no subject claim")
	}

	return userID, nil
}

func bearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", types.ErrUnauthorized
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", types.ErrUnauthorized
	}
	return token, nil
}
