package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/tokenbridge/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-signing-key")

// fixedClock は常に同じ時刻を返す時計。
func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func aliceClaims() model.SessionClaims {
	return model.SessionClaims{
		ID:    "u1",
		Role:  model.RoleMember,
		Email: "a@x.io",
		Name:  "Alice",
	}
}

func TestNewIssuer_EmptyKey(t *testing.T) {
	issuer, err := NewIssuer(nil, AlgorithmHS256)
	assert.ErrorIs(t, err, model.ErrSigningKeyMissing)
	assert.Nil(t, issuer)

	issuer, err = NewIssuer([]byte{}, AlgorithmHS256)
	assert.ErrorIs(t, err, model.ErrSigningKeyMissing)
	assert.Nil(t, issuer)
}

func TestNewIssuer_UnsupportedAlgorithm(t *testing.T) {
	for _, alg := range []string{"", "none", "RS256", "hs256"} {
		_, err := NewIssuer(testKey, alg)
		assert.Error(t, err, "アルゴリズム: %q", alg)
	}
}

func TestIssuer_Issue_SetsTimes(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 600, time.UTC)
	issuer, err := NewIssuer(testKey, AlgorithmHS256, WithClock(fixedClock(now)))
	require.NoError(t, err)

	token, issued, err := issuer.Issue(aliceClaims(), time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	wantIat := now.Truncate(time.Second)
	assert.Equal(t, wantIat, issued.IssuedAt)
	assert.Equal(t, wantIat.Add(time.Hour), issued.ExpiresAt)
	assert.Equal(t, "u1", issued.ID)
	assert.Equal(t, model.RoleMember, issued.Role)
}

func TestIssuer_Issue_PayloadFields(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	issuer, err := NewIssuer(testKey, AlgorithmHS384, WithClock(fixedClock(now)))
	require.NoError(t, err)

	token, _, err := issuer.Issue(aliceClaims(), 30*time.Minute)
	require.NoError(t, err)

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	require.NoError(t, err)
	assert.Equal(t, "HS384", parsed.Header["alg"])

	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "u1", claims["id"])
	assert.Equal(t, "MEMBER", claims["role"])
	assert.Equal(t, "a@x.io", claims["email"])
	assert.Equal(t, "Alice", claims["name"])
	assert.EqualValues(t, now.Unix(), claims["iat"])
	assert.EqualValues(t, now.Add(30*time.Minute).Unix(), claims["exp"])
}

func TestIssuer_Issue_NonPositiveTTL(t *testing.T) {
	issuer, err := NewIssuer(testKey, AlgorithmHS256)
	require.NoError(t, err)

	_, _, err = issuer.Issue(aliceClaims(), 0)
	assert.Error(t, err)
	_, _, err = issuer.Issue(aliceClaims(), -time.Minute)
	assert.Error(t, err)
}
