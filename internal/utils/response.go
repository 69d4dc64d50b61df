package utils

import "github.com/gin-gonic/gin"

// ErrorResponse is the body of every failed booking API call.
func ErrorResponse(message string) gin.H {
	return gin.H{"error": message}
}
