package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jengzang/trackmap/pkg/response"
)

// SubjectKey is the context key holding the authenticated token subject
const SubjectKey = "subject"

// Auth middleware requires a bearer token signed with secret (HS256).
// An empty secret disables the check.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			response.Abort(c, http.StatusUnauthorized, "missing bearer token")
			return
		}

		subject, err := ParseToken(raw, secret)
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, "invalid token")
			return
		}

		c.Set(SubjectKey, subject)
		c.Next()
	}
}

// ParseToken validates a token and returns its subject
func ParseToken(raw, secret string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}
	return claims.Subject, nil
}

// IssueToken signs a token for subject, used by operators to mint API credentials
func IssueToken(subject, secret string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = subject
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
