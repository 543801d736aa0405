package accounts

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oggyb/tweetheart/internal/auth"
	svcErr "github.com/oggyb/tweetheart/internal/errors"
)

type handler struct {
	svc      *Service
	sessions *auth.Sessions
}

func (h *handler) signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		svcErr.Abort(c, svcErr.InvalidArgument("invalid signup payload"))
		return
	}
	session, err := h.svc.Signup(c.Request.Context(), req)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	http.SetCookie(c.Writer, h.sessions.SessionCookie(session.Token, session.ExpiresAt))
	c.JSON(http.StatusCreated, session)
}

func (h *handler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		svcErr.Abort(c, svcErr.InvalidArgument("email and password are required"))
		return
	}
	session, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	http.SetCookie(c.Writer, h.sessions.SessionCookie(session.Token, session.ExpiresAt))
	c.JSON(http.StatusOK, session)
}

func (h *handler) logout(c *gin.Context) {
	http.SetCookie(c.Writer, h.sessions.ExpiredCookie())
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *handler) me(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	me, err := h.svc.Me(c.Request.Context(), userID)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": me})
}
