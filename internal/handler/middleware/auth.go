package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	jwtpkg "fotobox/eventhub/pkg/jwt"
	"fotobox/eventhub/pkg/response"
)

const ContextKeyUserClaims = "user_claims"

var (
	errNoHeader     = errors.New("missing authorization header")
	errBadFormat    = errors.New("invalid authorization format")
	errBadToken     = errors.New("invalid or expired token")
	errBadTokenType = errors.New("invalid token type")
)

func bearerClaims(c *gin.Context, jwtManager *jwtpkg.Manager) (*jwtpkg.Claims, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, errNoHeader
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, errBadFormat
	}

	claims, err := jwtManager.Validate(parts[1])
	if err != nil {
		return nil, errBadToken
	}

	if claims.TokenType != jwtpkg.TokenTypeAccess {
		return nil, errBadTokenType
	}
	return claims, nil
}

func JWTAuth(jwtManager *jwtpkg.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := bearerClaims(c, jwtManager)
		if err != nil {
			response.Unauthorized(c, err.Error())
			c.Abort()
			return
		}

		c.Set(ContextKeyUserClaims, claims)
		c.Next()
	}
}

// OptionalJWTAuth sets the claims when a valid access token is present and
// lets anonymous requests through untouched.
func OptionalJWTAuth(jwtManager *jwtpkg.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, err := bearerClaims(c, jwtManager); err == nil {
			c.Set(ContextKeyUserClaims, claims)
		}
		c.Next()
	}
}
