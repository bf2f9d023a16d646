package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/libraryops/patron-blocks/pkg/logger"
)

const (
	capabilitiesKey = "capabilities"
	subjectKey      = "subject"
)

var (
	// ErrInvalidToken is returned for malformed or badly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned for tokens past their exp claim.
	ErrExpiredToken = errors.New("token expired")
)

// Claims is the token payload carrying the staff user's capabilities.
type Claims struct {
	jwt.RegisteredClaims
	Permissions []string `json:"permissions"`
}

// Capabilities is the permission set of the current user.
type Capabilities map[string]bool

// NewCapabilities builds a set from a permission list.
func NewCapabilities(perms ...string) Capabilities {
	caps := make(Capabilities, len(perms))
	for _, p := range perms {
		caps[p] = true
	}
	return caps
}

// HasPermission reports whether perm was granted.
func (c Capabilities) HasPermission(perm string) bool {
	return c[perm]
}

// TokenVerifier verifies HS256 capability tokens.
type TokenVerifier struct {
	secretKey []byte
}

// NewTokenVerifier creates a verifier for tokens signed with secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secretKey: []byte(secret)}
}

// Verify parses and validates a token.
func (v *TokenVerifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// Sign issues a token for subject. Used by tooling and tests.
func (v *TokenVerifier) Sign(claims *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secretKey)
}

// CapabilityAuth requires a bearer token and stores its subject and capabilities
// in the gin context.
func CapabilityAuth(verifier *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			abortWithError(c, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := verifier.Verify(tokenString)
		if err != nil {
			logger.Log.Warn("Rejected capability token",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path),
			)
			abortWithError(c, http.StatusUnauthorized, err.Error())
			return
		}

		if claims.Subject == "" {
			abortWithError(c, http.StatusUnauthorized, "token has no subject")
			return
		}

		c.Set(subjectKey, claims.Subject)
		c.Set(capabilitiesKey, NewCapabilities(claims.Permissions...))
		c.Next()
	}
}

// GetSubject returns the authenticated user id, or "".
func GetSubject(c *gin.Context) string {
	return c.GetString(subjectKey)
}

// GetCapabilities returns the current user's capabilities. Without CapabilityAuth
// the set is empty.
func GetCapabilities(c *gin.Context) Capabilities {
	if v, exists := c.Get(capabilitiesKey); exists {
		if caps, ok := v.(Capabilities); ok {
			return caps
		}
	}
	return Capabilities{}
}
