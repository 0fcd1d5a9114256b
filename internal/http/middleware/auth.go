// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer authentication for the admin surface. Tokens are
// HS256 JWTs minted by the admin console; a request is let through only when
// the signature verifies, the token is unexpired, and the "role" claim is
// "admin". The token subject becomes the actor recorded in status history.
package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ctxKeyActor is the Gin context key holding the authenticated admin subject.
const ctxKeyActor = "actor"

// RoleAdmin is the only role accepted by AdminAuth.
const RoleAdmin = "admin"

// AdminClaims is the JWT payload accepted on admin routes.
type AdminClaims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

var (
	errMissingToken = errors.New("missing bearer token")
	errNotAdmin     = errors.New("admin role required")
)

// AdminAuth verifies the Authorization bearer token with secret. An empty
// secret rejects every request so an unconfigured deployment never exposes
// the admin routes.
func AdminAuth(secret string) gin.HandlerFunc {
	key := []byte(secret)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	return func(c *gin.Context) {
		if len(key) == 0 {
			abortAuth(c, http.StatusUnauthorized, "admin authentication is not configured")
			return
		}
		claims, err := parseAdmin(parser, key, c.GetHeader("Authorization"))
		switch {
		case errors.Is(err, errNotAdmin):
			abortAuth(c, http.StatusForbidden, err.Error())
			return
		case err != nil:
			LoggerFrom(c).Debug().Err(err).Msg("admin token rejected")
			abortAuth(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		c.Set(ctxKeyActor, actorOf(claims))
		c.Next()
	}
}

func parseAdmin(p *jwt.Parser, key []byte, header string) (*AdminClaims, error) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return nil, errMissingToken
	}
	claims := &AdminClaims{}
	if _, err := p.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return key, nil }); err != nil {
		return nil, err
	}
	if claims.Role != RoleAdmin {
		return nil, errNotAdmin
	}
	return claims, nil
}

func actorOf(c *AdminClaims) string {
	if c.Email != "" {
		return c.Email
	}
	if c.Subject != "" {
		return c.Subject
	}
	return RoleAdmin
}

// Actor returns the authenticated admin, or "" on public routes.
func Actor(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyActor); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SignAdminToken mints an admin token valid for ttl. It backs the CLI token
// command and tests.
func SignAdminToken(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AdminClaims{
		Role:  RoleAdmin,
		Email: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func abortAuth(c *gin.Context, status int, msg string) {
	code := "unauthorized"
	if status == http.StatusForbidden {
		code = "forbidden"
	} else {
		c.Header("WWW-Authenticate", `Bearer realm="admin"`)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
