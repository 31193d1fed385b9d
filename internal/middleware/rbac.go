package middleware

import (
	"net/http"

	"github.com/blinkportal/backend/internal/policy"
	"github.com/gin-gonic/gin"
)

// RequireAdmin turns away non-admin callers before the admin handlers run.
// The services behind those routes still make their own policy decision.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := GetActor(c)
		if !policy.Decide(actor, policy.User, policy.Read, policy.Facts{}).Allowed() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": 40301, "message": "permission denied", "data": nil})
			return
		}
		c.Next()
	}
}
