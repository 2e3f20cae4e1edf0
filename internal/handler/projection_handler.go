package handler

import (
	"errors"
	"net/http"

	"opsconsole/internal/middleware"
	"opsconsole/internal/model"
	"opsconsole/internal/service"
	"opsconsole/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ProjectionHandler serves the end-user notification and subscription pages.
// A caller works on its own role's pages only; administrators may open any role's.
type ProjectionHandler struct {
	notifications service.NotificationService
	subscriptions service.SubscriptionService
	roleService   service.RoleService
	auth          *middleware.Auth
	roles         []string
}

// NewProjectionHandler lets every role in roles (by code) read and toggle projections
func NewProjectionHandler(notifications service.NotificationService, subscriptions service.SubscriptionService, roleService service.RoleService, auth *middleware.Auth, roles []string) *ProjectionHandler {
	return &ProjectionHandler{notifications: notifications, subscriptions: subscriptions, roleService: roleService, auth: auth, roles: roles}
}

func (h *ProjectionHandler) RegisterRoutes(router *gin.RouterGroup) {
	anyRole := h.auth.RequireRole(h.roles...)

	notifications := router.Group("/api/notifications")
	notifications.Use(anyRole)
	{
		notifications.GET("/:roleId", h.ListNotifications)
		notifications.PATCH("/:roleId", h.ToggleNotification)
	}

	subscriptions := router.Group("/api/subscriptions")
	subscriptions.Use(anyRole)
	{
		subscriptions.GET("/:roleId", h.ListSubscriptions)
		subscriptions.PATCH("/:roleId", h.ToggleSubscription)
	}
}

// ownRole parses :roleId and checks it against the role claim of the token
func (h *ProjectionHandler) ownRole(c *gin.Context) (uuid.UUID, bool) {
	roleID, ok := pathID(c, "roleId")
	if !ok {
		return uuid.Nil, false
	}

	code := c.GetString(middleware.ContextRole)
	if code == model.RoleAdmin {
		return roleID, true
	}
	role, err := h.roleService.GetRoleByCode(c.Request.Context(), code)
	if err != nil && !errors.Is(err, service.ErrNotFound) {
		writeError(c, err)
		return uuid.Nil, false
	}
	if err != nil || role.ID != roleID.String() {
		c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: settings belong to another role"))
		return uuid.Nil, false
	}
	return roleID, true
}

type toggleNotificationRequest struct {
	OperationID     uuid.UUID `json:"operation_id" binding:"required"`
	ReceivingRoleID uuid.UUID `json:"receiving_role_id" binding:"required"`
	Enabled         *bool     `json:"enabled" binding:"required"`
}

type toggleSubscriptionRequest struct {
	OperationID uuid.UUID `json:"operation_id" binding:"required"`
	Enabled     *bool     `json:"enabled" binding:"required"`
}

// ListNotifications derives the notification rows produced by a role
// @Summary      Notification settings of a role
// @Tags         projections
// @Security     BearerAuth
// @Produce      json
// @Param        roleId  path      string  true  "Producing role ID"
// @Success      200     {object}  response.Response{data=[]service.NotificationEntry}
// @Router       /api/notifications/{roleId} [get]
func (h *ProjectionHandler) ListNotifications(c *gin.Context) {
	roleID, ok := h.ownRole(c)
	if !ok {
		return
	}

	rows, err := h.notifications.List(c.Request.Context(), roleID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rows))
}

// ToggleNotification answers 409 when the administrator locked the cell
// @Summary      Toggle a notification
// @Tags         projections
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        roleId   path      string  true  "Producing role ID"
// @Success      200      {object}  response.Response{data=service.NotificationEntry}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/notifications/{roleId} [patch]
func (h *ProjectionHandler) ToggleNotification(c *gin.Context) {
	roleID, ok := h.ownRole(c)
	if !ok {
		return
	}
	var req toggleNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	row, err := h.notifications.Toggle(c.Request.Context(), req.OperationID, roleID, req.ReceivingRoleID, *req.Enabled)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, row))
}

func (h *ProjectionHandler) ListSubscriptions(c *gin.Context) {
	roleID, ok := h.ownRole(c)
	if !ok {
		return
	}

	rows, err := h.subscriptions.List(c.Request.Context(), roleID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rows))
}

func (h *ProjectionHandler) ToggleSubscription(c *gin.Context) {
	roleID, ok := h.ownRole(c)
	if !ok {
		return
	}
	var req toggleSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	row, err := h.subscriptions.Toggle(c.Request.Context(), req.OperationID, roleID, *req.Enabled)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, row))
}
