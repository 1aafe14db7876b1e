package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/docintake/utils"
)

// ContextOperatorKey stores the authenticated operator name in the gin context.
const ContextOperatorKey = "operator"

// OperatorRequired guards operator endpoints with an HS256 bearer token
// signed with secret. An empty secret leaves the endpoints open.
func OperatorRequired(secret string) gin.HandlerFunc {
	if secret == "" {
		return func(ctx *gin.Context) { ctx.Next() }
	}
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			utils.Error(ctx, http.StatusUnauthorized, "unauthorized", "authorization header missing")
			ctx.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			utils.Error(ctx, http.StatusUnauthorized, "unauthorized", "invalid authorization header format")
			ctx.Abort()
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			utils.Error(ctx, http.StatusUnauthorized, "unauthorized", "empty bearer token")
			ctx.Abort()
			return
		}

		claims, err := utils.ParseOperatorToken(secret, tokenString)
		if err != nil {
			utils.Error(ctx, http.StatusUnauthorized, "unauthorized", "invalid token")
			ctx.Abort()
			return
		}

		ctx.Set(ContextOperatorKey, claims.Operator)
		ctx.Next()
	}
}
