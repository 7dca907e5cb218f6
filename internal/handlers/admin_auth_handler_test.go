package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"route-aggregator/internal/config"
)

var testSecret = []byte("test-admin-secret")

func TestAdminJWTRoundTrip(t *testing.T) {
	token, err := GenerateAdminJWTToken(testSecret, "alice", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateAdminJWTToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice", claims.Subject)
	assert.True(t, claims.IsAdmin())
}

func TestAdminJWTRejections(t *testing.T) {
	valid, err := GenerateAdminJWTToken(testSecret, "alice", time.Hour)
	require.NoError(t, err)

	expired, err := GenerateAdminJWTToken(testSecret, "alice", -time.Minute)
	require.NoError(t, err)

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminJWTClaims{
		Username: "mallory",
		Role:     adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    "someone-else",
		},
	}).SignedString(testSecret)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminJWTClaims{
		Username:         "mallory",
		Role:             adminRole,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: adminIssuer},
	}).SignedString(testSecret)
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret []byte
		token  string
	}{
		{"wrong secret", []byte("other"), valid},
		{"expired", testSecret, expired},
		{"foreign issuer", testSecret, foreign},
		{"missing expiry", testSecret, noExpiry},
		{"garbage", testSecret, "not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateAdminJWTToken(tt.secret, tt.token)
			assert.Error(t, err)
		})
	}
}

func TestAdminJWTNeedsSecret(t *testing.T) {
	_, err := GenerateAdminJWTToken(nil, "alice", time.Hour)
	assert.ErrorIs(t, err, ErrAdminAuthDisabled)

	_, err = ValidateAdminJWTToken(nil, "whatever")
	assert.ErrorIs(t, err, ErrAdminAuthDisabled)
}

func TestIsAdminChecksRole(t *testing.T) {
	assert.False(t, (&AdminJWTClaims{Role: "viewer"}).IsAdmin())
}

func newLoginEngine(t *testing.T, cfg config.AdminConfig) *gin.Engine {
	t.Helper()
	r := gin.New()
	r.POST("/login", NewAdminAuthHandler(cfg, quietLogger()).AdminLoginHandler)
	return r
}

func loginConfig(t *testing.T) config.AdminConfig {
	t.Helper()
	key, err := GenerateTOTPKey("ops@test")
	require.NoError(t, err)
	return config.AdminConfig{
		JWTSecret:  string(testSecret),
		TokenTTL:   30,
		Username:   "admin",
		Password:   "hunter2",
		TOTPSecret: key.Secret(),
	}
}

func TestAdminLoginIssuesToken(t *testing.T) {
	cfg := loginConfig(t)
	code, err := totp.GenerateCode(cfg.TOTPSecret, time.Now())
	require.NoError(t, err)

	w, body := postJSON(t, newLoginEngine(t, cfg), "/login", AdminLoginRequest{
		Username: "admin",
		Password: "hunter2",
		TOTPCode: code,
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	token, _ := body["token"].(string)
	claims, err := ValidateAdminJWTToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), claims.ExpiresAt.Time, time.Minute)
}

func TestAdminLoginRejections(t *testing.T) {
	cfg := loginConfig(t)
	code, err := totp.GenerateCode(cfg.TOTPSecret, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name    string
		req     AdminLoginRequest
		message string
	}{
		{"unknown user", AdminLoginRequest{Username: "root", Password: "hunter2", TOTPCode: code}, "Invalid credentials"},
		{"wrong password", AdminLoginRequest{Username: "admin", Password: "hunter3", TOTPCode: code}, "Invalid credentials"},
		{"wrong code", AdminLoginRequest{Username: "admin", Password: "hunter2", TOTPCode: "000000x"}, "Invalid TOTP code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := postJSON(t, newLoginEngine(t, cfg), "/login", tt.req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tt.message, body["message"])
			assert.Nil(t, body["token"])
		})
	}
}

func TestAdminLoginDisabledWithoutTOTPSecret(t *testing.T) {
	cfg := loginConfig(t)
	cfg.TOTPSecret = ""

	w, _ := postJSON(t, newLoginEngine(t, cfg), "/login", AdminLoginRequest{
		Username: "admin",
		Password: "hunter2",
		TOTPCode: "123456",
	})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
