package server

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-chi/httprate"

	"github.com/oggyb/tweetheart/internal/app"
	"github.com/oggyb/tweetheart/internal/auth"
	"github.com/oggyb/tweetheart/internal/logger"
	"github.com/oggyb/tweetheart/internal/realtime"
	"github.com/oggyb/tweetheart/internal/storage"
)

var (
	errMissingAppContext = errors.New("app context dependency required")
	errMissingSessions   = errors.New("sessions dependency required")
)

// Dependencies wires the HTTP surface.
type Dependencies struct {
	App        *app.AppContext
	Socket     *realtime.SocketHandler
	Registrars []Registrar
}

// NewHTTPHandler builds the gin engine: public routes, the authenticated
// group with every registrar and the socket endpoint, wrapped in the
// per-IP rate limiter when one is configured.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.App == nil {
		return nil, errMissingAppContext
	}
	if deps.App.Sessions == nil {
		return nil, errMissingSessions
	}
	cfg := deps.App.Config

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(deps.App.Logger))
	router.Use(cors.New(corsConfig(cfg.HTTP.AllowedOrigins)))

	router.GET("/healthz", healthHandler(deps.App))
	if mem, ok := deps.App.Storage.(*storage.MemoryStore); ok && mem.Served() {
		router.GET(storage.MemoryObjectsPath+"/*key", gin.WrapH(http.StripPrefix(storage.MemoryObjectsPath, mem)))
	}

	public := router.Group("/")
	protected := router.Group("/")
	protected.Use(auth.Middleware(deps.App.Sessions))

	for _, r := range deps.Registrars {
		if p, ok := r.(PublicRegistrar); ok {
			p.RegisterPublic(public)
		}
		r.Register(protected)
	}
	if deps.Socket != nil {
		deps.Socket.Register(protected)
	}

	if cfg.HTTP.RatePerMinute <= 0 {
		return router, nil
	}
	limit := httprate.Limit(
		cfg.HTTP.RatePerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
	)
	return limit(router), nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	// credentials cannot be combined with a wildcard origin
	if len(origins) == 0 || slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

// requestLogger logs one line per request and puts a request-scoped logger
// into the request context.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqLog := log.With("method", c.Request.Method, "path", c.FullPath())
		c.Request = c.Request.WithContext(logger.IntoContext(c.Request.Context(), reqLog))

		c.Next()

		args := []any{"status", c.Writer.Status(), "latency", time.Since(start)}
		if userID, ok := auth.UserID(c); ok {
			args = append(args, "user_id", userID)
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			reqLog.Error("http request", args...)
		default:
			reqLog.Debug("http request", args...)
		}
	}
}

func healthHandler(appCtx *app.AppContext) gin.HandlerFunc {
	check := HealthCheck(appCtx)
	return func(c *gin.Context) {
		if err := check(c.Request.Context()); err != nil {
			appCtx.Logger.Warn("health check failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
