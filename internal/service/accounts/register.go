package accounts

import (
	"github.com/gin-gonic/gin"

	"github.com/oggyb/tweetheart/internal/app"
)

// Registrar ties the auth routes into the HTTP server. Signup, login and
// logout are public; /auth/me needs a session.
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

func (r *Registrar) handler() *handler {
	return &handler{svc: NewAccountService(r.appCtx), sessions: r.appCtx.Sessions}
}

// RegisterPublic attaches the endpoints that work without a session
func (r *Registrar) RegisterPublic(g *gin.RouterGroup) {
	h := r.handler()
	g.POST("/auth/signup", h.signup)
	g.POST("/auth/login", h.login)
	g.POST("/auth/logout", h.logout)
}

// Register attaches the endpoints that need a session
func (r *Registrar) Register(g *gin.RouterGroup) {
	h := r.handler()
	g.GET("/auth/me", h.me)
}
