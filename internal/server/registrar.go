package server

import (
	"github.com/gin-gonic/gin"

	"github.com/oggyb/tweetheart/internal/app"
	"github.com/oggyb/tweetheart/internal/service/accounts"
	"github.com/oggyb/tweetheart/internal/service/chats"
	"github.com/oggyb/tweetheart/internal/service/likes"
	"github.com/oggyb/tweetheart/internal/service/notifications"
	"github.com/oggyb/tweetheart/internal/service/photos"
	"github.com/oggyb/tweetheart/internal/service/profiles"
)

// Registrar is a common interface for all HTTP service registrars.
// Routes are attached to a group that already requires a session.
type Registrar interface {
	Register(g *gin.RouterGroup)
}

// PublicRegistrar is implemented by registrars that also expose routes
// reachable without a session.
type PublicRegistrar interface {
	RegisterPublic(g *gin.RouterGroup)
}

// ServiceRegistrars lists every HTTP service. chatSvc is shared with the
// socket endpoint.
func ServiceRegistrars(appCtx *app.AppContext, chatSvc *chats.Service, resizer photos.Resizer) []Registrar {
	return []Registrar{
		accounts.NewRegistrar(appCtx),
		profiles.NewRegistrar(appCtx),
		photos.NewRegistrar(appCtx, resizer),
		likes.NewRegistrar(appCtx),
		chats.NewRegistrar(chatSvc),
		notifications.NewRegistrar(appCtx),
	}
}
