package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/opencampus/thesis-match-api/internal/middleware"
	"github.com/opencampus/thesis-match-api/internal/models"
)

// claimsFromContext extracts the authenticated user's claims, if present.
func claimsFromContext(c *gin.Context) (*models.JWTClaims, bool) {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	return claims, ok
}
