package notifications

import (
	"github.com/gin-gonic/gin"

	"github.com/oggyb/tweetheart/internal/app"
)

// Registrar ties the notification routes into the HTTP server
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the notification endpoints to an authenticated group
func (r *Registrar) Register(g *gin.RouterGroup) {
	h := &handler{svc: NewNotificationService(r.appCtx)}
	g.GET("/notifications", h.list)
	g.GET("/notifications/unread-count", h.unreadCount)
	g.PUT("/notifications/read-all", h.markAllRead)
	g.PUT("/notifications/:id/read", h.markRead)
	g.POST("/notifications/:id/dismiss", h.dismiss)
}
