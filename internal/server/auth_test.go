package server

import (
	"context"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://auth.example.test"

func signingKey(t *testing.T) (jwk.Key, jwk.Set) {
	t.Helper()

	key, err := jwk.ParseKey([]byte(`{"kty":"oct","kid":"test-key","alg":"HS256","k":"c2VjcmV0LXNpZ25pbmcta2V5LWZvci10ZXN0cy0xMjM0NTY"}`))
	require.NoError(t, err)

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(key))
	return key, set
}

func signToken(t *testing.T, key jwk.Key, subject, issuer string, expires time.Time) string {
	t.Helper()

	tok := jwt.New()
	require.NoError(t, tok.Set(jwt.SubjectKey, subject))
	require.NoError(t, tok.Set(jwt.IssuerKey, issuer))
	require.NoError(t, tok.Set(jwt.ExpirationKey, expires))

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256(), key))
	require.NoError(t, err)
	return string(signed)
}

func TestJWKSVerifier(t *testing.T) {
	key, set := signingKey(t)
	verifier := NewStaticVerifier(set, testIssuer)
	ctx := context.Background()

	userID, err := verifier.Verify(ctx, signToken(t, key, testUserID, testIssuer, time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, testUserID, userID)

	_, err = verifier.Verify(ctx, signToken(t, key, testUserID, testIssuer, time.Now().Add(-time.Hour)))
	assert.Error(t, err, "expired")

	_, err = verifier.Verify(ctx, signToken(t, key, testUserID, "https://other.example.test", time.Now().Add(time.Hour)))
	assert.Error(t, err, "wrong issuer")

	_, err = verifier.Verify(ctx, "not-a-jwt")
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tok, err := bearerToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)

	tok, err = bearerToken("bearer   xyz")
	require.NoError(t, err)
	assert.Equal(t, "xyz", tok)

	for _, header := range []string{"", "Bearer", "Bearer ", "Token abc"} {
		_, err := bearerToken(header)
		assert.Error(t, err, header)
	}
}
