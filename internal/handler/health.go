package handler

import (
	"github.com/gin-gonic/gin"
)

// HandleHealth handles health check requests
func HandleHealth(c *gin.Context) {
	respondOK(c, gin.H{
		"status":  "healthy",
		"message": "MITRE ATT&CK application is running",
		"endpoints": []string{
			"/api/feedback",
			"/api/procedure",
			"/api/techniques",
		},
	})
}
