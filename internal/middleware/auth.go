// Package middleware provides HTTP middleware for the rewards service.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/rafflehub/rewards/internal/errors"
	"github.com/rafflehub/rewards/internal/httputil"
	"github.com/rafflehub/rewards/internal/logging"
	"github.com/rafflehub/rewards/pkg/logger"
)

// RoleAdmin marks sessions allowed to decide tokens and run draws.
const RoleAdmin = "admin"

// Claims represents admin session JWT claims.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AdminAuth issues and validates HS256 admin session tokens.
type AdminAuth struct {
	secret       []byte
	username     string
	passwordHash string // bcrypt
	tokenTTL     time.Duration
	log          *logger.Logger
}

// NewAdminAuth creates admin authentication middleware. passwordHash is a
// bcrypt hash; the plaintext never reaches configuration.
func NewAdminAuth(secret []byte, username, passwordHash string, tokenTTL time.Duration, log *logger.Logger) *AdminAuth {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	if log == nil {
		log = logger.NewDefault("admin-auth")
	}
	return &AdminAuth{secret: secret, username: username, passwordHash: passwordHash, tokenTTL: tokenTTL, log: log}
}

// Login verifies credentials and returns a signed session token.
func (a *AdminAuth) Login(username, password string) (string, error) {
	if username != a.username {
		return "", apperrors.Unauthorized("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password)); err != nil {
		return "", apperrors.Unauthorized("invalid credentials")
	}

	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: username,
		Role:   RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
		},
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", apperrors.Internal("sign session token", err)
	}
	return signed, nil
}

// Handler validates the admin session and stores identity on the context.
func (a *AdminAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			a.respondError(w, r, apperrors.Unauthorized("missing Authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			a.respondError(w, r, apperrors.Unauthorized("invalid Authorization header format"))
			return
		}

		claims, err := a.validateToken(parts[1])
		if err != nil {
			a.respondError(w, r, err)
			return
		}
		if claims.Role != RoleAdmin {
			a.respondError(w, r, apperrors.Forbidden("admin role required"))
			return
		}

		ctx := context.WithValue(r.Context(), logging.UserIDKey, claims.UserID)
		ctx = context.WithValue(ctx, logging.RoleKey, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *AdminAuth) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.InvalidToken(nil).WithDetails("method", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, apperrors.InvalidToken(err)
	}
	if !token.Valid {
		return nil, apperrors.InvalidToken(nil)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, apperrors.InvalidToken(nil).WithDetails("reason", "invalid claims type")
	}
	return claims, nil
}

func (a *AdminAuth) respondError(w http.ResponseWriter, r *http.Request, err error) {
	a.log.WithError(err).
		WithField("path", r.URL.Path).
		WithField("method", r.Method).
		Warn("admin authentication failed")
	httputil.WriteError(w, err)
}

// GetUserID extracts the authenticated identity from context.
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// GetUserRole extracts the authenticated role from context.
func GetUserRole(ctx context.Context) string {
	return logging.GetRole(ctx)
}
