package chats

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oggyb/tweetheart/internal/auth"
	"github.com/oggyb/tweetheart/internal/chatref"
	svcErr "github.com/oggyb/tweetheart/internal/errors"
	"github.com/oggyb/tweetheart/internal/utils/params"
)

type handler struct {
	svc *Service
}

type createChatRequest struct {
	UserID uint64 `json:"user_id" binding:"required"`
}

type sendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// chatRefParam reads :chatId, which is either a chat id or a preparation key.
func chatRefParam(c *gin.Context) (chatref.Ref, error) {
	ref, err := chatref.Parse(c.Param("chatId"))
	if err != nil {
		return chatref.Ref{}, svcErr.InvalidArgument("invalid chat id")
	}
	return ref, nil
}

func (h *handler) listChats(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	chats, err := h.svc.ListChats(c.Request.Context(), userID)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (h *handler) createChat(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		svcErr.Abort(c, svcErr.InvalidArgument("user_id is required"))
		return
	}
	chat, created, err := h.svc.CreateChat(c.Request.Context(), userID, req.UserID)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"chat": chat, "created": created})
}

func (h *handler) listMessages(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	ref, err := chatRefParam(c)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	limit, err := params.QueryInt(c, "limit", defaultMessagesLimit)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	page, err := h.svc.ListMessages(c.Request.Context(), userID, ref, params.QueryString(c, "pagination_token"), limit)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *handler) sendMessage(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	ref, err := chatRefParam(c)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		svcErr.Abort(c, svcErr.InvalidArgument("content is required"))
		return
	}
	res, err := h.svc.SendMessage(c.Request.Context(), userID, ref, req.Content)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *handler) markRead(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	ids, err := h.svc.MarkRead(c.Request.Context(), userID, c.Param("chatId"))
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": c.Param("chatId"), "message_ids": ids})
}

func (h *handler) deleteChat(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteChat(c.Request.Context(), userID, c.Param("chatId")); err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
