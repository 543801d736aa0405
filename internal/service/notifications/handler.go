package notifications

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oggyb/tweetheart/internal/auth"
	svcErr "github.com/oggyb/tweetheart/internal/errors"
	"github.com/oggyb/tweetheart/internal/utils/params"
)

type handler struct {
	svc *Service
}

func (h *handler) list(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	includeDismissed, err := params.QueryBool(c, "include_dismissed")
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	limit, err := params.QueryInt(c, "limit", defaultListLimit)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}

	items, err := h.svc.List(c.Request.Context(), userID, includeDismissed, limit)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	unread, err := h.svc.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items, "unread_count": unread})
}

func (h *handler) unreadCount(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	n, err := h.svc.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *handler) markAllRead(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	n, err := h.svc.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "updated": n})
}

func (h *handler) markRead(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	id, err := params.PathID(c, "id")
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	if err := h.svc.MarkRead(c.Request.Context(), userID, id); err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *handler) dismiss(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	id, err := params.PathID(c, "id")
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	if err := h.svc.Dismiss(c.Request.Context(), userID, id); err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
