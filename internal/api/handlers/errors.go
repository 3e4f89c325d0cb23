package handlers

import (
	"errors"

	"github.com/dhima/mysql-connector/internal/api/response"
	"github.com/dhima/mysql-connector/internal/logging"
	"github.com/dhima/mysql-connector/internal/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeSessionError maps a session error onto an HTTP response.
func writeSessionError(c *gin.Context, logger logging.Logger, err error, operation string) {
	var driverErr *session.DriverError
	switch {
	case errors.Is(err, session.ErrNotInitialized):
		response.ServiceUnavailable(c, err.Error())
	case errors.Is(err, session.ErrConnectionUnavailable),
		errors.Is(err, session.ErrDuplicateImport),
		errors.Is(err, session.ErrCursorClosed):
		response.Conflict(c, err.Error(), nil)
	case errors.Is(err, session.ErrNoRows),
		errors.Is(err, session.ErrTableNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, session.ErrInvalidTableName):
		response.BadRequest(c, err.Error(), nil)
	case errors.As(err, &driverErr):
		logger.Warn(operation+" rejected by database",
			zap.Error(err),
			zap.String("request_id", response.GetRequestID(c)),
		)
		response.BadGateway(c, err.Error())
	default:
		logger.Error(operation+" failed",
			zap.Error(err),
			zap.String("request_id", response.GetRequestID(c)),
		)
		response.InternalServerError(c, "internal server error")
	}
}
