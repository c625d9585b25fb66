package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/opencampus/thesis-match-api/internal/models"
	appErrors "github.com/opencampus/thesis-match-api/pkg/errors"
	"github.com/opencampus/thesis-match-api/pkg/response"
)

// RoleSelf grants access when the :id path parameter matches the caller.
const RoleSelf models.UserRole = "SELF"

// RBAC restricts a route to the listed roles. Including RoleSelf also
// admits a caller whose user ID equals the :id path parameter.
func RBAC(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	allowSelf := false
	for _, role := range roles {
		if role == RoleSelf {
			allowSelf = true
			continue
		}
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		value, ok := c.Get(ContextUserKey)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := value.(*models.JWTClaims)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowed[claims.Role]; ok {
			c.Next()
			return
		}
		if allowSelf && c.Param("id") == claims.UserID {
			c.Next()
			return
		}

		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions"))
		c.Abort()
	}
}
