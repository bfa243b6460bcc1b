package middleware

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows the configured origins; "*" or an empty list allows any origin
func CORS(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders: []string{"Content-Disposition"},
	}

	allowAll := len(origins) == 0
	var allowed []string
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			allowAll = true
			break
		}
		if origin != "" {
			allowed = append(allowed, origin)
		}
	}

	if allowAll || len(allowed) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowed
		config.AllowCredentials = true
	}

	return cors.New(config)
}
