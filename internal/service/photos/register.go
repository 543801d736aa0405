package photos

import (
	"github.com/gin-gonic/gin"

	"github.com/oggyb/tweetheart/internal/app"
)

// Registrar ties the photo routes into the HTTP server
type Registrar struct {
	appCtx  *app.AppContext
	resizer Resizer
}

func NewRegistrar(appCtx *app.AppContext, resizer Resizer) *Registrar {
	return &Registrar{appCtx: appCtx, resizer: resizer}
}

// Register attaches the photo endpoints to an authenticated group
func (r *Registrar) Register(g *gin.RouterGroup) {
	h := &handler{svc: NewPhotoService(r.appCtx, r.resizer)}
	g.GET("/users/me/photos", h.list)
	g.POST("/users/me/photos", h.upload)
	g.PUT("/users/me/photos/order", h.reorder)
	g.DELETE("/users/me/photos/:photoId", h.remove)
}
