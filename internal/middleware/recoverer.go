package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/blinkportal/backend/internal/logs"
	"github.com/gin-gonic/gin"
)

// Recoverer turns a handler panic into a 500 envelope and logs the stack.
func Recoverer() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				reqid := GetRequestID(c)
				logs.Logger.Errorf("panic: %v reqid=%s uri=%s method=%s\nstack:\n%s",
					rec, reqid, c.Request.RequestURI, c.Request.Method, string(debug.Stack()))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":    50001,
					"message": "unexpected server error (see logs by reqid)",
					"data":    gin.H{"reqid": reqid},
				})
			}
		}()
		c.Next()
	}
}
