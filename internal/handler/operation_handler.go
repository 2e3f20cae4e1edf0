package handler

import (
	"net/http"

	"opsconsole/internal/middleware"
	"opsconsole/internal/model"
	"opsconsole/internal/service"
	"opsconsole/pkg/pagination"
	"opsconsole/pkg/response"

	"github.com/gin-gonic/gin"
)

type OperationHandler struct {
	operationService service.OperationService
	auth             *middleware.Auth
}

func NewOperationHandler(operationService service.OperationService, auth *middleware.Auth) *OperationHandler {
	return &OperationHandler{operationService: operationService, auth: auth}
}

func (h *OperationHandler) RegisterRoutes(router *gin.RouterGroup) {
	ops := router.Group("/api/operations")
	ops.Use(h.auth.RequireRole(model.RoleAdmin))
	{
		ops.GET("", h.ListOperations)
		ops.POST("", h.CreateOperation)
		ops.GET("/:id", h.GetOperation)
		ops.PUT("/:id", h.UpdateOperation)
		ops.PATCH("/:id/status", h.SetOperationStatus)
	}
}

// ListOperations returns one page of the catalog, most recently updated first
// @Summary      List operations
// @Tags         operations
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=object}
// @Router       /api/operations [get]
func (h *OperationHandler) ListOperations(c *gin.Context) {
	p := pagination.Parse(c)

	ops, total, err := h.operationService.ListOperations(c.Request.Context(), p.Page, p.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"operations": ops,
		"total":      total,
		"page":       p.Page,
		"limit":      p.Limit,
	}))
}

func (h *OperationHandler) GetOperation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	op, err := h.operationService.GetOperation(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, op))
}

// CreateOperation registers a new operation and seeds its matrix cells
// @Summary      Create operation
// @Tags         operations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      service.OperationDraft  true  "Operation draft"
// @Success      201      {object}  response.Response{data=service.OperationResponse}
// @Failure      422      {object}  response.Response
// @Router       /api/operations [post]
func (h *OperationHandler) CreateOperation(c *gin.Context) {
	draft, ok := bindOperationDraft(c)
	if !ok {
		return
	}

	op, err := h.operationService.CreateOperation(c.Request.Context(), draft)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, op))
}

func (h *OperationHandler) UpdateOperation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	draft, ok := bindOperationDraft(c)
	if !ok {
		return
	}

	op, err := h.operationService.UpdateOperation(c.Request.Context(), id, draft)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, op))
}

func (h *OperationHandler) SetOperationStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	op, err := h.operationService.SetOperationStatus(c.Request.Context(), id, *req.Enabled)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, op))
}

// bindOperationDraft decodes the body loosely so wrongly typed fields surface as
// field errors instead of a bare 400
func bindOperationDraft(c *gin.Context) (service.OperationDraft, bool) {
	var raw map[string]interface{}
	if err := c.ShouldBindJSON(&raw); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return service.OperationDraft{}, false
	}
	return service.ParseOperationDraft(raw), true
}
