package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mtarasov/notable/internal/token"
)

const identityContextKey = "auth_identity"

// RequestIdentity is the minimal identity attached to a request after the
// bearer token has been verified. It never carries the raw token.
type RequestIdentity struct {
	UserID   string
	Email    string
	Username string
}

// RequireAuth verifies the bearer access token and attaches the resolved
// identity to the request context. Failure short-circuits the request with a
// uniform 401; the expired-vs-invalid distinction is never exposed here.
func RequireAuth(tokens *token.Service) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		authorizationHeader := contextGin.GetHeader("Authorization")
		parts := strings.Split(authorizationHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authorization required"})
			return
		}
		claims, verifyErr := tokens.VerifyAccessToken(parts[1])
		if verifyErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid or expired token"})
			return
		}
		contextGin.Set(identityContextKey, RequestIdentity{
			UserID:   claims.Subject,
			Email:    claims.Email,
			Username: claims.Username,
		})
		contextGin.Next()
	}
}

func identityFrom(contextGin *gin.Context) (RequestIdentity, bool) {
	value, found := contextGin.Get(identityContextKey)
	if !found {
		return RequestIdentity{}, false
	}
	identity, ok := value.(RequestIdentity)
	if !ok || identity.UserID == "" {
		return RequestIdentity{}, false
	}
	return identity, true
}
