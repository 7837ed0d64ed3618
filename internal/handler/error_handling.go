package handler

import (
	"errors"
	"net/http"

	"storyroom-server/shared/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func handleServiceError(c *gin.Context, err error) {
	var statusCode int
	var errResp models.ErrorResponse

	switch {
	case errors.Is(err, models.ErrInvalid):
		statusCode = http.StatusBadRequest
		errResp = models.ErrorResponse{Code: "invalid", Message: err.Error()}
	case errors.Is(err, models.ErrUnauthorized):
		statusCode = http.StatusUnauthorized
		errResp = models.ErrorResponse{Code: "unauthorized", Message: "Unauthorized"}
	case errors.Is(err, models.ErrForbidden):
		statusCode = http.StatusForbidden
		errResp = models.ErrorResponse{Code: "forbidden", Message: err.Error()}
	case errors.Is(err, models.ErrNotFound):
		statusCode = http.StatusNotFound
		errResp = models.ErrorResponse{Code: "not_found", Message: err.Error()}
	case errors.Is(err, models.ErrConflict):
		statusCode = http.StatusConflict
		errResp = models.ErrorResponse{Code: "conflict", Message: err.Error()}
	case errors.Is(err, models.ErrExpired):
		statusCode = http.StatusGone
		errResp = models.ErrorResponse{Code: "expired", Message: err.Error()}
	default:
		zap.L().Error("Unhandled internal error in handleServiceError", zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResp = models.ErrorResponse{Code: "internal_error", Message: "An unexpected internal error occurred"}
	}

	c.AbortWithStatusJSON(statusCode, errResp)
}
