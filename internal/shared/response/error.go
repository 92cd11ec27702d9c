package response

import (
	"errors"

	"github.com/gin-gonic/gin"

	apperrors "github.com/artboard/server/internal/shared/errors"
)

// Error sends an error response with the given status code and machine code.
func Error(c *gin.Context, status int, code, message string) {
	c.JSON(status, apperrors.ErrorResponse{
		Error: apperrors.ErrorDetail{Code: code, Message: message},
	})
}

// AppError sends the response described by an application error.
func AppError(c *gin.Context, err *apperrors.AppError) {
	c.JSON(err.StatusCode, err.ToResponse())
}

// Abort sends the response described by an application error and stops the chain.
func Abort(c *gin.Context, err *apperrors.AppError) {
	c.AbortWithStatusJSON(err.StatusCode, err.ToResponse())
}

// BadRequest sends a 400 Bad Request response.
func BadRequest(c *gin.Context, message string) {
	AppError(c, apperrors.BadRequest(message))
}

// Unauthorized sends a 401 Unauthorized response.
func Unauthorized(c *gin.Context, message string) {
	AppError(c, apperrors.Unauthorized(message))
}

// NotFound sends a 404 Not Found response.
func NotFound(c *gin.Context, resource string) {
	AppError(c, apperrors.NotFound(resource))
}

// InternalError sends a 500 Internal Server Error response.
func InternalError(c *gin.Context) {
	AppError(c, apperrors.Internal("", nil))
}

// ErrorMapping maps domain errors to HTTP status codes.
type ErrorMapping struct {
	Err     error
	Status  int
	Code    string
	Message string
}

// HandleError handles an error using the provided mappings.
// Returns true if the error was handled, false otherwise.
func HandleError(c *gin.Context, err error, mappings []ErrorMapping) bool {
	for _, m := range mappings {
		if errors.Is(err, m.Err) {
			msg := m.Message
			if msg == "" {
				msg = m.Err.Error()
			}
			Error(c, m.Status, m.Code, msg)
			return true
		}
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		AppError(c, appErr)
		return true
	}
	return false
}

// HandleErrorWithDefault handles an error with a 500 fallback.
func HandleErrorWithDefault(c *gin.Context, err error, mappings []ErrorMapping) {
	if !HandleError(c, err, mappings) {
		_ = c.Error(err)
		InternalError(c)
	}
}
