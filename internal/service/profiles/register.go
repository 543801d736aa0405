package profiles

import (
	"github.com/gin-gonic/gin"

	"github.com/oggyb/tweetheart/internal/app"
)

// Registrar ties the profile and discovery routes into the HTTP server
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the profile endpoints to an authenticated group
func (r *Registrar) Register(g *gin.RouterGroup) {
	h := &handler{svc: NewProfileService(r.appCtx)}
	g.GET("/users/me", h.getMe)
	g.PUT("/users/me", h.updateMe)
	g.GET("/users/:id", h.getProfile)
	g.GET("/discover", h.discover)
}
