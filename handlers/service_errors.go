package handlers

import (
	"errors"
	"net/http"

	"github.com/sanazindustrial/PROFGINE-sub004/services"
	"github.com/sanazindustrial/PROFGINE-sub004/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	message := publicMessage(err)

	var writeErr error
	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, message)

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, message, details)

	case services.IsUnauthorizedError(err):
		writeErr = utils.WriteUnauthorized(w, message)

	case services.IsForbiddenError(err):
		writeErr = utils.WriteForbidden(w, message)

	case services.IsConflictError(err):
		writeErr = utils.WriteConflict(w, message, details)

	case services.IsUnavailableError(err):
		writeErr = utils.WriteServiceUnavailable(w, message, details)

	case services.IsExternalError(err):
		writeErr = utils.WriteBadGateway(w, message, details)

	case services.IsTimeoutError(err):
		writeErr = utils.WriteGatewayTimeout(w, message)

	case services.IsCanceledError(err):
		// Nobody is listening; status is for access logs
		logger.Debug("request cancelled by client", zap.Error(err))
		writeErr = utils.WriteError(w, utils.StatusClientClosedRequest, message, nil)

	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// publicMessage returns the domain message without the wrapped cause
func publicMessage(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
