package middleware

import (
	"net/http"
	"strings"

	"github.com/duochat/server/config"
	"github.com/duochat/server/model"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const UsernameKey = "username"

// Auth validates the Bearer JWT token and re-resolves the account.
// Tokens carry no server-side session state; a token is rejected only when
// the signature fails or the account no longer exists.
func Auth(sec config.SecurityConfig, db *gorm.DB) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")

		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}

		var acc model.Account
		if err := db.Where("username = ?", claims.Username).First(&acc).Error; err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}

		ctx.Set(UsernameKey, acc.Username)
		ctx.Next()
	}
}

// GetUsername retrieves the authenticated username from the Gin context.
func GetUsername(c *gin.Context) string {
	if v, exists := c.Get(UsernameKey); exists {
		return v.(string)
	}
	return ""
}
