package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Detail any `json:"detail"`
}

func respondError(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Detail: detail})
}

func respondValidation(c *gin.Context, err *ValidationError) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, ErrorResponse{Detail: err.Problems})
}

func respondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
