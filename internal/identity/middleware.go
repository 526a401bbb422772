package identity

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

const ctxCallerClaims = "govledger_caller_claims"

// RequireCaller returns a Gin middleware that enforces a valid Bearer caller
// token. On success it injects the *CallerClaims into the context.
func RequireCaller(tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
			})
			return
		}

		claims, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}

		c.Set(ctxCallerClaims, claims)
		c.Next()
	}
}

// ClaimsFromCtx retrieves the claims injected by RequireCaller.
func ClaimsFromCtx(c *gin.Context) *CallerClaims {
	v, _ := c.Get(ctxCallerClaims)
	claims, _ := v.(*CallerClaims)
	return claims
}

// CallerFromCtx retrieves the authenticated caller address. ok is false when
// the request did not pass through RequireCaller.
func CallerFromCtx(c *gin.Context) (common.Address, bool) {
	claims := ClaimsFromCtx(c)
	if claims == nil {
		return common.Address{}, false
	}
	return claims.Caller(), true
}
