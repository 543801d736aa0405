package likes

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

type interactionRequest struct {
	LikedID uint64 `json:"liked_id" binding:"required"`
	Type    string `json:"type" binding:"required"`
}

func (h *handler) recordInteraction(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	var req interactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		svcErr.Abort(c, svcErr.InvalidArgument("liked_id and type are required"))
		return
	}
	res, err := h.svc.RecordInteraction(c.Request.Context(), userID, req.LikedID, req.Type)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) listMatches(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	includeChats, err := params.QueryBool(c, "include_chats")
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	matches, err := h.svc.ListMatches(c.Request.Context(), userID, includeChats)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

func (h *handler) listReceived(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	onlyNew, err := params.QueryBool(c, "new")
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	limit, err := params.QueryInt(c, "limit", defaultLikersLimit)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	token := params.QueryString(c, "pagination_token")

	list := h.svc.ListLikedYou
	if onlyNew {
		list = h.svc.ListNewLikedYou
	}
	page, err := list(c.Request.Context(), userID, token, limit)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *handler) count(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	n, err := h.svc.CountLikedYou(c.Request.Context(), userID)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *handler) unmatch(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	otherID, err := params.PathID(c, "id")
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	if err := h.svc.Unmatch(c.Request.Context(), userID, otherID); err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
