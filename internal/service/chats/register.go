package chats

import (
	"github.com/gin-gonic/gin"
)

// Registrar ties the chat routes into the HTTP server
type Registrar struct {
	svc *Service
}

// NewRegistrar shares svc with the socket endpoint so both transports run
// the same workflow.
func NewRegistrar(svc *Service) *Registrar {
	return &Registrar{svc: svc}
}

// Register attaches the chat endpoints to an authenticated group
func (r *Registrar) Register(g *gin.RouterGroup) {
	h := &handler{svc: r.svc}
	g.GET("/api/chats", h.listChats)
	g.POST("/api/chats", h.createChat)
	g.GET("/api/chats/:chatId/messages", h.listMessages)
	g.POST("/api/chats/:chatId/messages", h.sendMessage)
	g.PUT("/api/chats/:chatId/read", h.markRead)
	g.DELETE("/api/chats/:chatId", h.deleteChat)
}
