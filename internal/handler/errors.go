package handler

import (
	"errors"
	"net/http"

	"opsconsole/internal/service"
	"opsconsole/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// writeError maps engine errors onto HTTP statuses
func writeError(c *gin.Context, err error) {
	if fields, ok := service.AsFieldErrors(err); ok {
		c.JSON(http.StatusUnprocessableEntity, response.ValidationError(http.StatusUnprocessableEntity, "Validation failed", fields.Map()))
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrNotEditable), errors.Is(err, service.ErrLastActive):
		status = http.StatusConflict
	}
	c.JSON(status, response.Error(status, err.Error()))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, msg))
}

// pathID parses a uuid route parameter, answering 400 when it is malformed
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "Invalid "+name+": "+c.Param(name))
		return uuid.Nil, false
	}
	return id, true
}

// statusRequest toggles operations and templates
type statusRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}
