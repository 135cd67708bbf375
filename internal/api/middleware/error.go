package middleware

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"bess-impact/internal/api/models"
	"bess-impact/internal/model"
	"bess-impact/internal/repository"
)

// ErrorHandler middleware handles panics
func ErrorHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		slog.Error("panic in handler", "path", c.Request.URL.Path, "recovered", recovered)
		if err, ok := recovered.(string); ok {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error: models.ErrorDetail{Code: "INTERNAL_ERROR", Message: err},
			})
		} else {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error: models.ErrorDetail{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"},
			})
		}
		c.Abort()
	})
}

// StatusOf maps an error to its HTTP status: config and data errors are the
// caller's fault, a merit order that cannot be fitted is unprocessable, and
// optimization failures are ours.
func StatusOf(err error) int {
	if notFound(err) {
		return http.StatusNotFound
	}
	class, ok := model.ClassOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch class {
	case model.ClassConfig, model.ClassData:
		return http.StatusBadRequest
	case model.ClassModelFit:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Detail renders err in the response envelope.
func Detail(err error) models.ErrorDetail {
	var e *model.Error
	if errors.As(err, &e) {
		return models.ErrorDetail{
			Code:    e.Code,
			Message: err.Error(),
			Details: map[string]interface{}{"class": e.Class},
		}
	}
	if notFound(err) {
		return models.ErrorDetail{Code: "NOT_FOUND", Message: err.Error()}
	}
	return models.ErrorDetail{Code: "INTERNAL_ERROR", Message: err.Error()}
}

// notFound covers unknown runs and unknown dataset files.
func notFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

// AbortWithError writes err with its status and stops the chain.
func AbortWithError(c *gin.Context, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.AbortWithStatusJSON(status, models.ErrorResponse{Error: Detail(err)})
}

// BadRequest reports a malformed request body or query.
func BadRequest(c *gin.Context, code string, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
		Error: models.ErrorDetail{Code: code, Message: err.Error()},
	})
}
