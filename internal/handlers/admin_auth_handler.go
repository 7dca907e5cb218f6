package handlers

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"

	"route-aggregator/internal/config"
)

const (
	adminRole   = "admin"
	adminIssuer = "route-aggregator-admin"
)

// ErrAdminAuthDisabled is returned when no admin JWT secret is configured.
var ErrAdminAuthDisabled = errors.New("admin authentication is not configured")

// AdminJWTClaims operator token claims
type AdminJWTClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateAdminJWTToken signs an HS256 operator token valid for ttl.
func GenerateAdminJWTToken(secret []byte, username string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrAdminAuthDisabled
	}
	now := time.Now()
	claims := AdminJWTClaims{
		Username: username,
		Role:     adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    adminIssuer,
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateAdminJWTToken parses an operator token and checks its signature, expiry and issuer.
func ValidateAdminJWTToken(secret []byte, tokenString string) (*AdminJWTClaims, error) {
	if len(secret) == 0 {
		return nil, ErrAdminAuthDisabled
	}

	token, err := jwt.ParseWithClaims(tokenString, &AdminJWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(adminIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*AdminJWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// IsAdmin reports whether the claims carry the operator role.
func (c *AdminJWTClaims) IsAdmin() bool {
	return c.Role == adminRole
}

// ============================================================================
// Interactive login
// ============================================================================

// AdminAuthHandler exchanges password + TOTP credentials for an operator token
type AdminAuthHandler struct {
	jwtSecret  []byte
	username   string
	password   string
	totpSecret string
	ttl        time.Duration
	logger     *logrus.Logger
}

// AdminLoginRequest admin login request
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code" binding:"required"`
}

// AdminLoginResponse admin login response
type AdminLoginResponse struct {
	Success   bool       `json:"success"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Message   string     `json:"message"`
}

// NewAdminAuthHandler creates the login handler. Login is refused until password and TOTP secret are configured.
func NewAdminAuthHandler(cfg config.AdminConfig, logger *logrus.Logger) *AdminAuthHandler {
	if cfg.JWTSecret != "" && (cfg.Password == "" || cfg.TOTPSecret == "") {
		logger.Warn("⚠️ ADMIN_PASSWORD or ADMIN_TOTP_SECRET not set, admin login is disabled (use routectl admin-token)")
	}
	return &AdminAuthHandler{
		jwtSecret:  []byte(cfg.JWTSecret),
		username:   cfg.Username,
		password:   cfg.Password,
		totpSecret: cfg.TOTPSecret,
		ttl:        time.Duration(cfg.TokenTTL) * time.Minute,
		logger:     logger,
	}
}

// AdminLoginHandler POST /api/v1/admin/auth/login
func (h *AdminAuthHandler) AdminLoginHandler(c *gin.Context) {
	if len(h.jwtSecret) == 0 || h.password == "" || h.totpSecret == "" {
		c.JSON(http.StatusServiceUnavailable, AdminLoginResponse{
			Success: false,
			Message: "Admin login is not configured",
		})
		return
	}

	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, AdminLoginResponse{
			Success: false,
			Message: fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	// same message for unknown user and wrong password
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.password)) == 1
	if !userOK || !passOK {
		h.logger.WithFields(logrus.Fields{
			"username":  req.Username,
			"client_ip": c.ClientIP(),
		}).Warn("Admin login failed - invalid credentials")
		c.JSON(http.StatusUnauthorized, AdminLoginResponse{
			Success: false,
			Message: "Invalid credentials",
		})
		return
	}

	if !totp.Validate(req.TOTPCode, h.totpSecret) {
		h.logger.WithFields(logrus.Fields{
			"username":  req.Username,
			"client_ip": c.ClientIP(),
		}).Warn("Admin login failed - invalid TOTP code")
		c.JSON(http.StatusUnauthorized, AdminLoginResponse{
			Success: false,
			Message: "Invalid TOTP code",
		})
		return
	}

	token, err := GenerateAdminJWTToken(h.jwtSecret, req.Username, h.ttl)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate admin token")
		c.JSON(http.StatusInternalServerError, AdminLoginResponse{
			Success: false,
			Message: "Failed to generate token",
		})
		return
	}
	expires := time.Now().Add(h.ttl).UTC()

	h.logger.WithField("username", req.Username).Info("✅ Admin logged in")
	c.JSON(http.StatusOK, AdminLoginResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: &expires,
		Message:   "Login successful",
	})
}

// GenerateTOTPKey creates a new TOTP secret for admin login enrolment.
func GenerateTOTPKey(account string) (*otp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "Route Aggregator Admin",
		AccountName: account,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}
	return key, nil
}
