package profiles

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/oggyb/tweetheart/internal/auth"
	svcErr "github.com/oggyb/tweetheart/internal/errors"
	"github.com/oggyb/tweetheart/internal/utils/params"
)

type handler struct {
	svc *Service
}

func (h *handler) getMe(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	p, err := h.svc.GetMe(c.Request.Context(), userID)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handler) updateMe(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		svcErr.Abort(c, svcErr.InvalidArgument("invalid request body"))
		return
	}
	p, err := h.svc.UpdateMe(c.Request.Context(), userID, req)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handler) getProfile(c *gin.Context) {
	viewerID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	userID, err := params.PathID(c, "id")
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	p, err := h.svc.GetProfile(c.Request.Context(), viewerID, userID)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handler) discover(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}

	var (
		f   = Filter{Gender: c.Query("gender")}
		err error
	)
	for name, dst := range map[string]*int{
		"min_age": &f.MinAge,
		"max_age": &f.MaxAge,
		"page":    &f.Page,
		"limit":   &f.Limit,
	} {
		if *dst, err = params.QueryInt(c, name, 0); err != nil {
			svcErr.Abort(c, err)
			return
		}
	}
	if raw := c.Query("max_distance_km"); raw != "" {
		if f.MaxDistanceKm, err = strconv.ParseFloat(raw, 64); err != nil || f.MaxDistanceKm < 0 {
			svcErr.Abort(c, svcErr.InvalidArgument("max_distance_km must be a positive number"))
			return
		}
	}

	page, err := h.svc.Discover(c.Request.Context(), userID, f)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}
