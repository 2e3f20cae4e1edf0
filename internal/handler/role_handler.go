package handler

import (
	"net/http"

	"opsconsole/internal/middleware"
	"opsconsole/internal/service"
	"opsconsole/pkg/response"

	"github.com/gin-gonic/gin"
)

type RoleHandler struct {
	roleService service.RoleService
	auth        *middleware.Auth
	roles       []string
}

func NewRoleHandler(roleService service.RoleService, auth *middleware.Auth, roles []string) *RoleHandler {
	return &RoleHandler{roleService: roleService, auth: auth, roles: roles}
}

func (h *RoleHandler) RegisterRoutes(router *gin.RouterGroup) {
	roles := router.Group("/api/roles")
	roles.Use(h.auth.RequireRole(h.roles...))
	{
		roles.GET("", h.ListRoles)
		roles.GET("/:id", h.GetRole)
	}
}

// ListRoles returns the role enumeration in display order
func (h *RoleHandler) ListRoles(c *gin.Context) {
	roles, err := h.roleService.ListRoles(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, roles))
}

// GetRole returns a single role by ID
func (h *RoleHandler) GetRole(c *gin.Context) {
	if _, ok := pathID(c, "id"); !ok {
		return
	}

	role, err := h.roleService.GetRole(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, role))
}
