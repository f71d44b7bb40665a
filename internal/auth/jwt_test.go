package auth

import (
	"testing"
	"time"

	"clubimpact/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.JWTConfig {
	return &config.JWTConfig{AccessSecret: "test-secret", AccessExpiry: time.Hour, Issuer: "clubimpact"}
}

func TestTokenRoundTrip(t *testing.T) {
	cfg := testConfig()
	token, err := GenerateAccessToken(cfg, "user-1", "ADMIN")
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "ADMIN", claims.Role)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestParseRejects(t *testing.T) {
	cfg := testConfig()
	good, err := GenerateAccessToken(cfg, "user-1", "MEMBER")
	require.NoError(t, err)

	expiredCfg := *cfg
	expiredCfg.AccessExpiry = -time.Minute
	expired, err := GenerateAccessToken(&expiredCfg, "user-1", "MEMBER")
	require.NoError(t, err)

	otherSecret := *cfg
	otherSecret.AccessSecret = "nope"

	otherIssuer := *cfg
	otherIssuer.Issuer = "someone-else"

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "user-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := []struct {
		name  string
		cfg   *config.JWTConfig
		token string
	}{
		{"garbage", cfg, "not-a-token"},
		{"expired", cfg, expired},
		{"wrong secret", &otherSecret, good},
		{"wrong issuer", &otherIssuer, good},
		{"unsigned", cfg, none},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAccessToken(tc.cfg, tc.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err = GenerateAccessToken(cfg, "", "MEMBER")
	assert.Error(t, err)
}
