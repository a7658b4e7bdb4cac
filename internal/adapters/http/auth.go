package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Dispatch/internal/adapters/signal"
)

var ErrNoSubject = errors.New("token has no subject")

// ParseSubject verifies an HS256 token and returns its subject.
func ParseSubject(raw string, secret []byte) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", ErrNoSubject
	}
	return sub, nil
}

// TokenAuthMiddleware requires a signed token in the query parameter or the
// Authorization header. Its subject is the only identity the socket may join as.
func TokenAuthMiddleware(secret []byte, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query(param)
		if raw == "" {
			raw = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		sub, err := ParseSubject(raw, secret)
		if err != nil {
			log.Debug().Err(err).Str("module", "adapters.http").Msg("token rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(signal.AuthSubjectKey, sub)
		c.Next()
	}
}
