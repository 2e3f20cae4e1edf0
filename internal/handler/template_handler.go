package handler

import (
	"net/http"

	"opsconsole/internal/middleware"
	"opsconsole/internal/model"
	"opsconsole/internal/service"
	"opsconsole/pkg/response"

	"github.com/gin-gonic/gin"
)

type TemplateHandler struct {
	templateService service.TemplateService
	auth            *middleware.Auth
}

func NewTemplateHandler(templateService service.TemplateService, auth *middleware.Auth) *TemplateHandler {
	return &TemplateHandler{templateService: templateService, auth: auth}
}

func (h *TemplateHandler) RegisterRoutes(router *gin.RouterGroup) {
	admin := h.auth.RequireRole(model.RoleAdmin)

	byOperation := router.Group("/api/operations/:id/templates")
	byOperation.Use(admin)
	{
		byOperation.GET("", h.ListTemplates)
		byOperation.POST("", h.CreateTemplate)
	}

	tpls := router.Group("/api/templates")
	tpls.Use(admin)
	{
		tpls.GET("/:id", h.GetTemplate)
		tpls.PUT("/:id", h.UpdateTemplate)
		tpls.DELETE("/:id", h.DeleteTemplate)
		tpls.PATCH("/:id/status", h.SetTemplateStatus)
	}
}

func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	opID, ok := pathID(c, "id")
	if !ok {
		return
	}

	tpls, err := h.templateService.ListTemplates(c.Request.Context(), opID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tpls))
}

// CreateTemplate attaches a template to an operation
// @Summary      Create template
// @Tags         templates
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                 true  "Operation ID"
// @Param        request  body      service.TemplateDraft  true  "Template draft"
// @Success      201      {object}  response.Response{data=service.TemplateResponse}
// @Failure      422      {object}  response.Response
// @Router       /api/operations/{id}/templates [post]
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	opID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var draft service.TemplateDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	tpl, err := h.templateService.CreateTemplate(c.Request.Context(), opID, draft)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, tpl))
}

func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	tpl, err := h.templateService.GetTemplate(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tpl))
}

func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var draft service.TemplateDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	tpl, err := h.templateService.UpdateTemplate(c.Request.Context(), id, draft)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tpl))
}

func (h *TemplateHandler) SetTemplateStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	tpl, err := h.templateService.SetTemplateStatus(c.Request.Context(), id, *req.Enabled)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tpl))
}

func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.templateService.DeleteTemplate(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Template deleted successfully"}))
}
