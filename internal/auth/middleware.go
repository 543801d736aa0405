package auth

import (
	"github.com/gin-gonic/gin"

	svcErr "github.com/oggyb/tweetheart/internal/errors"
)

const userIDContextKey = "tweetheart_user_id"

// Middleware rejects requests without a valid session and stores the
// authenticated user id on the gin context.
func Middleware(sessions *Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := sessions.Authenticate(c.Request)
		if err != nil {
			svcErr.Abort(c, svcErr.Unauthenticated("authentication required"))
			return
		}
		c.Set(userIDContextKey, userID)
		c.Next()
	}
}

// UserID returns the id stored by Middleware.
func UserID(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(userIDContextKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok && id != 0
}

// SetUserID is used by handlers that authenticate outside Middleware.
func SetUserID(c *gin.Context, userID uint64) {
	c.Set(userIDContextKey, userID)
}

// RequireUserID is UserID for handlers; it aborts with 401 when missing.
func RequireUserID(c *gin.Context) (uint64, bool) {
	id, ok := UserID(c)
	if !ok {
		svcErr.Abort(c, svcErr.Unauthenticated("authentication required"))
	}
	return id, ok
}
