package handler

import (
	"errors"
	"net/http"

	"github.com/dreschagin/process-detector/internal/application/usecase"
	"github.com/dreschagin/process-detector/internal/domain/service"
	"github.com/dreschagin/process-detector/internal/interfaces/http/middleware"
	"github.com/dreschagin/process-detector/pkg/logger"
)

// writeUseCaseError переводит ошибку use case в HTTP статус.
// Внутренние ошибки логируются, клиенту уходит только общий текст.
func writeUseCaseError(w http.ResponseWriter, log *logger.Logger, err error, msg string, args ...interface{}) {
	var schemaErr *service.SchemaError
	switch {
	case errors.As(err, &schemaErr):
		middleware.WriteJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":           schemaErr.Error(),
			"missing_columns": schemaErr.Missing,
		})
	case errors.Is(err, usecase.ErrInvalidCommand):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, usecase.ErrPolicyNotFound):
		middleware.WriteError(w, http.StatusNotFound, "policy not found")
	default:
		log.Error(msg, err, args...)
		middleware.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
