package proxy

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// requireBearer 车辆接口必须携带 Bearer token
func requireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		if bearerToken(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No access token"})
			return
		}
		c.Next()
	}
}
