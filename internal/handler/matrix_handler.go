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

type MatrixHandler struct {
	matrixService service.MatrixService
	auth          *middleware.Auth
}

func NewMatrixHandler(matrixService service.MatrixService, auth *middleware.Auth) *MatrixHandler {
	return &MatrixHandler{matrixService: matrixService, auth: auth}
}

func (h *MatrixHandler) RegisterRoutes(router *gin.RouterGroup) {
	matrix := router.Group("/api/matrix")
	matrix.Use(h.auth.RequireRole(model.RoleAdmin))
	{
		matrix.GET("", h.Tree)
		matrix.GET("/entry", h.GetEntry)
		matrix.PATCH("/entry", h.SetEntry)
		matrix.POST("/columns", h.SelectColumn)
	}
}

type entryQuery struct {
	ProducingRoleID string `form:"producing_role_id" json:"producing_role_id" binding:"required,uuid"`
	OperationID     string `form:"operation_id" json:"operation_id" binding:"required,uuid"`
	ReceivingRoleID string `form:"receiving_role_id" json:"receiving_role_id" binding:"omitempty,uuid"`
}

func (q entryQuery) key() model.PermissionKey {
	key := model.ProducerKey(uuid.MustParse(q.ProducingRoleID), uuid.MustParse(q.OperationID))
	if q.ReceivingRoleID != "" {
		recv := uuid.MustParse(q.ReceivingRoleID)
		key.ReceivingRoleID = &recv
	}
	return key
}

type setEntryRequest struct {
	entryQuery
	Field string `json:"field" binding:"required,oneof=enabled configurable"`
	Value *bool  `json:"value" binding:"required"`
}

// Tree returns roles -> operations -> receiving roles. Receivers of a disabled
// producer cell are omitted.
// @Summary      Permission matrix tree
// @Tags         matrix
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]service.RoleNode}
// @Router       /api/matrix [get]
func (h *MatrixHandler) Tree(c *gin.Context) {
	tree, err := h.matrixService.Tree(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tree))
}

func (h *MatrixHandler) GetEntry(c *gin.Context) {
	var q entryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "Invalid query: "+err.Error())
		return
	}

	entry, err := h.matrixService.Get(c.Request.Context(), q.key())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, entry))
}

func (h *MatrixHandler) SetEntry(c *gin.Context) {
	var req setEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	var (
		entry *service.EntryResponse
		err   error
	)
	if service.MatrixField(req.Field) == service.FieldConfigurable {
		entry, err = h.matrixService.SetConfigurable(c.Request.Context(), req.key(), *req.Value)
	} else {
		entry, err = h.matrixService.SetEnabled(c.Request.Context(), req.key(), *req.Value)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, entry))
}

// SelectColumn applies select all (value=true) or clear (value=false) to a displayed column
// @Summary      Select all / clear a matrix column
// @Tags         matrix
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      service.ColumnSelector  true  "Column selector"
// @Success      200      {object}  response.Response{data=service.BulkResult}
// @Failure      422      {object}  response.Response
// @Router       /api/matrix/columns [post]
func (h *MatrixHandler) SelectColumn(c *gin.Context) {
	var sel service.ColumnSelector
	if err := c.ShouldBindJSON(&sel); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	res, err := h.matrixService.SelectColumn(c.Request.Context(), sel)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}
