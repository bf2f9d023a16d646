// Package handler provides HTTP request handlers for the application.
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/libraryops/patron-blocks/internal/models"
	"github.com/libraryops/patron-blocks/internal/panel"
	"github.com/libraryops/patron-blocks/internal/service"
	"github.com/libraryops/patron-blocks/pkg/logger"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 1000
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, models.ErrorResponse{
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Timestamp: time.Now(),
		Path:      c.Request.URL.Path,
	})
}

func handleError(c *gin.Context, err error) {
	var (
		valErr  *service.ValidationError
		procErr *service.ProcessingError
	)

	switch {
	case errors.As(err, &valErr):
		logger.Log.Warn("Validation error",
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
		)
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrBlockNotFound),
		errors.Is(err, service.ErrNoActiveRecord),
		errors.Is(err, panel.ErrPanelNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, panel.ErrNotOwner):
		respondError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, panel.ErrPanelClosed):
		respondError(c, http.StatusGone, err.Error())
	case errors.As(err, &procErr):
		logger.Log.Error("Processing error",
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
		)
		respondError(c, http.StatusInternalServerError, procErr.Message)
	default:
		logger.Log.Error("Unexpected error",
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
		)
		respondError(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}

// queryInt reads a non-negative integer query parameter, clamped to max when max > 0.
func queryInt(c *gin.Context, name string, def, max int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &service.ValidationError{Message: "invalid " + name + " parameter"}
	}
	if max > 0 && n > max {
		n = max
	}
	return n, nil
}
