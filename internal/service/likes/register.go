package likes

import (
	"github.com/gin-gonic/gin"

	"github.com/oggyb/tweetheart/internal/app"
)

// Registrar ties the likes service into the HTTP server
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the likes service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the likes endpoints to an authenticated group
func (r *Registrar) Register(g *gin.RouterGroup) {
	h := &handler{svc: NewLikeService(r.appCtx)}
	g.POST("/likes", h.recordInteraction)
	g.GET("/likes/matches", h.listMatches)
	g.GET("/likes/received", h.listReceived)
	g.GET("/likes/count", h.count)
	g.DELETE("/likes/unmatch/:id", h.unmatch)
}
