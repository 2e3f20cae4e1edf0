package handler

import (
	"net/http"

	"opsconsole/internal/middleware"
	"opsconsole/internal/model"
	"opsconsole/internal/service"
	"opsconsole/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type SnapshotHandler struct {
	snapshotService service.SnapshotService
	auth            *middleware.Auth
}

func NewSnapshotHandler(snapshotService service.SnapshotService, auth *middleware.Auth) *SnapshotHandler {
	return &SnapshotHandler{snapshotService: snapshotService, auth: auth}
}

func (h *SnapshotHandler) RegisterRoutes(router *gin.RouterGroup) {
	snaps := router.Group("/api/snapshots")
	snaps.Use(h.auth.RequireRole(model.RoleAdmin))
	{
		snaps.GET("/:roleId", h.Capture)
		snaps.POST("/:roleId/paste", h.Paste)
		snaps.POST("/copy", h.Copy)
	}
}

type copyRequest struct {
	FromRoleID uuid.UUID `json:"from_role_id" binding:"required"`
	ToRoleID   uuid.UUID `json:"to_role_id" binding:"required"`
}

// Capture returns the role's slice of the matrix; the console keeps it as its clipboard
// @Summary      Capture a role snapshot
// @Tags         snapshots
// @Security     BearerAuth
// @Produce      json
// @Param        roleId  path      string  true  "Role ID"
// @Success      200     {object}  response.Response{data=object}
// @Router       /api/snapshots/{roleId} [get]
func (h *SnapshotHandler) Capture(c *gin.Context) {
	roleID, ok := pathID(c, "roleId")
	if !ok {
		return
	}

	snap, err := h.snapshotService.Capture(c.Request.Context(), roleID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, snap))
}

// Paste applies a previously captured snapshot (the request body) onto roleId
func (h *SnapshotHandler) Paste(c *gin.Context) {
	roleID, ok := pathID(c, "roleId")
	if !ok {
		return
	}
	var snap service.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		badRequest(c, "Invalid snapshot: "+err.Error())
		return
	}

	res, err := h.snapshotService.Paste(c.Request.Context(), snap, roleID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

func (h *SnapshotHandler) Copy(c *gin.Context) {
	var req copyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	res, err := h.snapshotService.Copy(c.Request.Context(), req.FromRoleID, req.ToRoleID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}
