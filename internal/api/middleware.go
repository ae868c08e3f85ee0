package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/luke-wagner/PlantCare-Monitor/internal/apiresp"
	"github.com/luke-wagner/PlantCare-Monitor/utils"
)

// DeviceKeyHeader header the ESP32 authenticates with
const DeviceKeyHeader = "X-Device-Key"

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, "+DeviceKeyHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// authMiddleware admin JWT from "Authorization: Bearer <token>"
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			apiresp.Abort(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		claims, err := utils.VerifyJWT(token)
		if err != nil {
			apiresp.Abort(c, http.StatusUnauthorized, "invalid token")
			return
		}
		c.Set("device_id", claims["device_id"])
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// deviceKeyMiddleware shared-key check for display routes; open when no key is configured
func (s *Server) deviceKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.cfgMu.RLock()
		want := strings.TrimSpace(s.config.Auth.DisplayKey)
		s.cfgMu.RUnlock()
		if want == "" {
			c.Next()
			return
		}
		got := strings.TrimSpace(c.GetHeader(DeviceKeyHeader))
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			apiresp.Abort(c, http.StatusUnauthorized, "invalid device key")
			return
		}
		c.Next()
	}
}
