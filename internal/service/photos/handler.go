package photos

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oggyb/tweetheart/internal/auth"
	svcErr "github.com/oggyb/tweetheart/internal/errors"
	"github.com/oggyb/tweetheart/internal/utils/params"
)

// multipart overhead allowed on top of the photo size limit
const formOverhead = 1 << 20

type handler struct {
	svc *Service
}

type reorderRequest struct {
	PhotoIDs []uint64 `json:"photo_ids" binding:"required"`
}

func (h *handler) list(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	photos, err := h.svc.List(c.Request.Context(), userID)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"photos": photos})
}

func (h *handler) upload(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.svc.maxBytes()+formOverhead)

	header, err := c.FormFile("photo")
	if err != nil {
		svcErr.Abort(c, svcErr.InvalidArgument("multipart field \"photo\" is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		svcErr.Abort(c, svcErr.InvalidArgument("could not read upload"))
		return
	}
	defer file.Close()

	photo, err := h.svc.Upload(c.Request.Context(), userID, file)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, photo)
}

func (h *handler) remove(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	photoID, err := params.PathID(c, "photoId")
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), userID, photoID); err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *handler) reorder(c *gin.Context) {
	userID, ok := auth.RequireUserID(c)
	if !ok {
		return
	}
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		svcErr.Abort(c, svcErr.InvalidArgument("photo_ids is required"))
		return
	}
	photos, err := h.svc.Reorder(c.Request.Context(), userID, req.PhotoIDs)
	if err != nil {
		svcErr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"photos": photos})
}
